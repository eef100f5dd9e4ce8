package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/queryir"
	"github.com/roach88/nucleus/internal/querysql"
	"github.com/roach88/nucleus/internal/reactor"
)

// ErrNotFound is returned when a session or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// ReadSession retrieves a session by id.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var optsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, program, program_hash, options
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Program, &sess.ProgramHash, &optsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	if sess.Options, err = unmarshalOptions(optsJSON); err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session. UUIDv7 ids sort in creation order.
//
// Returns an empty slice (not nil) if there are no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	query, params, err := querysql.Compile(queryir.Select{From: queryir.TableSessions})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var optsJSON string
		if err := rows.Scan(&sess.ID, &sess.Program, &sess.ProgramHash, &optsJSON); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.Options, err = unmarshalOptions(optsJSON); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently created session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions ORDER BY id COLLATE BINARY DESC LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("latest session: %w", ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("latest session: %w", err)
	}
	return s.ReadSession(ctx, id)
}

// ReadDispatches returns the journal of a session after afterSeq, in
// commit order. Pass 0 to read the whole journal.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ReadDispatches(ctx context.Context, sessionID string, afterSeq int64) ([]DispatchRecord, error) {
	return s.QueryDispatches(ctx, queryir.Where(
		queryir.Equals{Field: "session_id", Value: immutable.String(sessionID)},
		queryir.After{Field: "seq", Value: afterSeq},
	), 0)
}

// QueryDispatches returns the journal records matching filter, ordered by
// session and seq. A limit of 0 returns every match.
func (s *Store) QueryDispatches(ctx context.Context, filter queryir.Predicate, limit int) ([]DispatchRecord, error) {
	query, params, err := querysql.Compile(queryir.Select{
		From:   queryir.TableDispatches,
		Filter: filter,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	records := []DispatchRecord{}
	for rows.Next() {
		var rec DispatchRecord
		var kind, payloadJSON, dirtyJSON string
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &kind, &rec.ActionType, &payloadJSON, &dirtyJSON); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		rec.Kind = reactor.CommitKind(kind)
		if rec.Payload, err = unmarshalValue(payloadJSON); err != nil {
			return nil, fmt.Errorf("dispatch %d: unmarshal payload: %w", rec.Seq, err)
		}
		if rec.Dirty, err = unmarshalDirty(dirtyJSON); err != nil {
			return nil, fmt.Errorf("dispatch %d: %w", rec.Seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return records, nil
}

// LatestSnapshot returns the snapshot with the highest seq in a session.
func (s *Store) LatestSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	var snap Snapshot
	var stateJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, seq, state, hash
		FROM snapshots
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID).Scan(&snap.SessionID, &snap.Seq, &stateJSON, &snap.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("snapshot for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.State, err = unmarshalValue(stateJSON); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %d: unmarshal state: %w", snap.Seq, err)
	}
	return snap, nil
}
