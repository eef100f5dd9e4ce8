package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
)

// ErrDivergence is returned when a replayed journal does not reproduce the
// recorded dispatch ids or snapshot hash.
var ErrDivergence = errors.New("replay diverged")

// ReplayResult summarizes a replay.
type ReplayResult struct {
	SessionID    string
	Applied      int   // journal records re-applied
	LastSeq      int64 // dispatch id after the last record
	Hash         string
	SnapshotSeq  int64 // 0 when the session has no snapshot
	SnapshotHash string
	Verified     bool // the snapshot hash was reproduced
}

// Replay re-applies a session's journal onto r from the beginning.
//
// r must be a fresh reactor with the session's program registered, and
// must not journal into the same session. Every record must reproduce its
// dispatch id, and the state at the latest snapshot must reproduce its
// hash; otherwise Replay returns an error wrapping ErrDivergence.
func Replay(ctx context.Context, s *Store, sessionID string, r *reactor.Reactor) (*ReplayResult, error) {
	records, err := s.ReadDispatches(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	result := &ReplayResult{SessionID: sessionID}
	snap, err := s.LatestSnapshot(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("replay: %w", err)
	default:
		result.SnapshotSeq = snap.Seq
		result.SnapshotHash = snap.Hash
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := apply(r, rec); err != nil {
			return result, fmt.Errorf("replay seq %d: %w", rec.Seq, err)
		}
		if got := int64(r.DispatchID()); got != rec.Seq {
			return result, fmt.Errorf("replay seq %d: dispatch id %d: %w", rec.Seq, got, ErrDivergence)
		}
		result.Applied++
		result.LastSeq = rec.Seq

		if result.SnapshotSeq == rec.Seq {
			hash, err := stateHash(r)
			if err != nil {
				return result, fmt.Errorf("replay seq %d: %w", rec.Seq, err)
			}
			if hash != snap.Hash {
				return result, fmt.Errorf("replay seq %d: snapshot hash %s, got %s: %w", rec.Seq, snap.Hash, hash, ErrDivergence)
			}
			result.Verified = true
		}
	}

	hash, err := stateHash(r)
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}
	result.Hash = hash
	return result, nil
}

// Restore loads a session's latest snapshot into r and re-applies the
// journal records after it. Without a snapshot the whole journal is
// applied. Dispatch ids are not checked: loading a snapshot is a single
// commit on r.
func Restore(ctx context.Context, s *Store, sessionID string, r *reactor.Reactor) (*ReplayResult, error) {
	result := &ReplayResult{SessionID: sessionID}

	var after int64
	snap, err := s.LatestSnapshot(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("restore: %w", err)
	default:
		if err := r.LoadState(snap.Record()); err != nil {
			return nil, fmt.Errorf("restore: load snapshot %d: %w", snap.Seq, err)
		}
		after = snap.Seq
		result.SnapshotSeq = snap.Seq
		result.SnapshotHash = snap.Hash
	}

	records, err := s.ReadDispatches(ctx, sessionID, after)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if rec.Kind == reactor.CommitRegister {
			continue
		}
		if err := apply(r, rec); err != nil {
			return result, fmt.Errorf("restore seq %d: %w", rec.Seq, err)
		}
		result.Applied++
		result.LastSeq = rec.Seq
	}

	if result.Hash, err = stateHash(r); err != nil {
		return result, fmt.Errorf("restore: %w", err)
	}
	return result, nil
}

func apply(r *reactor.Reactor, rec DispatchRecord) error {
	switch rec.Kind {
	case reactor.CommitRegister:
		// The replay reactor registered the program itself.
		return nil
	case reactor.CommitDispatch:
		return r.Dispatch(rec.ActionType, immutable.ToGo(rec.Payload))
	case reactor.CommitReset:
		return r.Reset()
	case reactor.CommitLoad:
		record, ok := immutable.ToGo(rec.Payload).(map[string]any)
		if !ok {
			return fmt.Errorf("load record is %T, want an object", immutable.ToGo(rec.Payload))
		}
		return r.LoadState(record)
	default:
		return fmt.Errorf("unknown commit kind %q", rec.Kind)
	}
}

func stateHash(r *reactor.Reactor) (string, error) {
	return immutable.ContentHash(immutable.DomainSnapshot, immutable.FromGo(r.Serialize()))
}
