package persist

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragma is a connection setting the journal depends on, with the value
// SQLite reports back once it is applied.
type pragma struct {
	name string
	set  string
	want string
}

// journalPragmas are applied on every Open. WAL lets replay and trace read
// a journal while a run is still appending to it.
var journalPragmas = []pragma{
	{name: "journal_mode", set: "WAL", want: "wal"},
	{name: "synchronous", set: "NORMAL", want: "1"},
	{name: "busy_timeout", set: "5000", want: "5000"},
	{name: "foreign_keys", set: "ON", want: "1"},
}

// migration upgrades a journal written by an older build. Position in
// journalMigrations is the user_version it produces, minus one.
type migration struct {
	name string
	stmt string
}

var journalMigrations = []migration{
	{
		// Replay filters registration commits out by kind.
		name: "index dispatches by kind",
		stmt: `CREATE INDEX IF NOT EXISTS idx_dispatches_kind ON dispatches(session_id, kind)`,
	},
}

// Store is the SQLite journal of reactor sessions: one row per session,
// one per state-changing commit, and periodic snapshots of the app state.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating it when missing. Every call
// applies the journal pragmas and brings the schema up to date, so
// reopening an existing journal is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal %s: %w", path, err)
	}

	// One connection: the journal has a single writer and pragmas are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range journalPragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.set)
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", stmt, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the journal. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate runs the migrations newer than the journal's user_version in a
// single transaction.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read journal version: %w", err)
	}
	if version >= len(journalMigrations) {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i := version; i < len(journalMigrations); i++ {
		m := journalMigrations[i]
		if _, err := tx.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate journal to v%d (%s): %w", i+1, m.name, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(journalMigrations))); err != nil {
		return fmt.Errorf("set journal version: %w", err)
	}
	return tx.Commit()
}

// pragmaValue reads the current value of a pragma.
func (s *Store) pragmaValue(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
