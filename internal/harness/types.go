package harness

// Trace event types.
const (
	EventDispatch  = "dispatch"
	EventBatch     = "batch"
	EventReset     = "reset"
	EventRoundtrip = "serialize_roundtrip"
	EventCommit    = "commit"
	EventNotify    = "notify"
)

// TraceEvent is one step or reactor report in the trace.
type TraceEvent struct {
	Type       string   `json:"type"`
	Action     string   `json:"action,omitempty"`
	Payload    any      `json:"payload,omitempty"`
	Kind       string   `json:"kind,omitempty"`        // commit kind
	DispatchID uint64   `json:"dispatch_id,omitempty"` // commit
	Dirty      []string `json:"dirty,omitempty"`       // commit
	Getter     string   `json:"getter,omitempty"`      // notify
	Value      any      `json:"value,omitempty"`       // notify
	Stores     []string `json:"stores,omitempty"`      // serialize_roundtrip
	Seq        int64    `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace holds every event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final Reactor.Serialize output.
	State map[string]any `json:"state,omitempty"`

	// DispatchID is the reactor's final dispatch id.
	DispatchID uint64 `json:"dispatch_id"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
