package persist

import (
	"context"
	"fmt"
)

// CreateSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	optsJSON, err := marshalOptions(sess.Options)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, program, program_hash, options)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Program, sess.ProgramHash, optsJSON)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// WriteDispatch appends a journal record. The payload is stored as
// canonical JSON, so it must be a structural value.
//
// Writing the same (session, seq) twice is a no-op.
func (s *Store) WriteDispatch(ctx context.Context, rec DispatchRecord) error {
	payloadJSON, err := marshalValue(rec.Payload)
	if err != nil {
		return fmt.Errorf("write dispatch %d: marshal payload: %w", rec.Seq, err)
	}
	dirtyJSON, err := marshalDirty(rec.Dirty)
	if err != nil {
		return fmt.Errorf("write dispatch %d: %w", rec.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatches (session_id, seq, kind, action_type, payload, dirty)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, rec.SessionID, rec.Seq, string(rec.Kind), rec.ActionType, payloadJSON, dirtyJSON)
	if err != nil {
		return fmt.Errorf("write dispatch %d: %w", rec.Seq, err)
	}
	return nil
}

// WriteSnapshot stores a snapshot. A later snapshot at the same seq
// replaces the earlier one.
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	stateJSON, err := marshalValue(snap.State)
	if err != nil {
		return fmt.Errorf("write snapshot %d: marshal state: %w", snap.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, seq, state, hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO UPDATE SET state = excluded.state, hash = excluded.hash
	`, snap.SessionID, snap.Seq, stateJSON, snap.Hash)
	if err != nil {
		return fmt.Errorf("write snapshot %d: %w", snap.Seq, err)
	}
	return nil
}
