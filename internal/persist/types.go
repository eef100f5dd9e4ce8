package persist

import (
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
)

// Session identifies one reactor run.
type Session struct {
	ID          string
	Program     string
	ProgramHash string
	Options     reactor.Options
}

// DispatchRecord is one committed transaction that changed state.
type DispatchRecord struct {
	SessionID  string
	Seq        int64 // reactor dispatch id after the commit
	Kind       reactor.CommitKind
	ActionType string
	Payload    immutable.Value
	Dirty      []string
}

// Snapshot is the serialized app state at a dispatch id.
type Snapshot struct {
	SessionID string
	Seq       int64
	State     immutable.Value
	Hash      string
}

// NewSnapshot hashes the output of Reactor.Serialize.
func NewSnapshot(sessionID string, seq int64, serialized map[string]any) (Snapshot, error) {
	state := immutable.FromGo(serialized)
	hash, err := immutable.ContentHash(immutable.DomainSnapshot, state)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{SessionID: sessionID, Seq: seq, State: state, Hash: hash}, nil
}

// Record returns the snapshot state in the form Reactor.LoadState accepts.
func (s Snapshot) Record() map[string]any {
	record, _ := immutable.ToGo(s.State).(map[string]any)
	if record == nil {
		record = map[string]any{}
	}
	return record
}
