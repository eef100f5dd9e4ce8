package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventDispatch:
				fmt.Fprintf(&buf, "  [%d] dispatch %s %v\n", event.Seq, event.Action, event.Payload)
			case EventNotify:
				fmt.Fprintf(&buf, "  [%d] notify %s = %v\n", event.Seq, event.Getter, event.Value)
			case EventCommit:
				fmt.Fprintf(&buf, "  [%d] commit %s #%d %v\n", event.Seq, event.Kind, event.DispatchID, event.Dirty)
			default:
				fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Type)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains a dispatch of the
// action whose payload matches (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventDispatch && event.Action == assertion.Action {
			if matchValue(immutable.FromGo(assertion.Payload), immutable.FromGo(event.Payload)) {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("dispatch %s with payload %v", assertion.Action, assertion.Payload),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions are dispatched in the specified
// order. Actions don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected action, 1-indexed.
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventDispatch {
			continue
		}
		for _, expected := range assertion.Actions {
			if event.Action == expected && positions[expected] == 0 {
				positions[expected] = i + 1
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks the number of dispatches of an action, or of
// notifications for a getter label.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	subject := assertion.Action
	for _, event := range trace {
		if assertion.Getter != "" {
			if event.Type == EventNotify && event.Getter == assertion.Getter {
				count++
			}
			continue
		}
		if event.Type == EventDispatch && event.Action == assertion.Action {
			count++
		}
	}
	if assertion.Getter != "" {
		subject = "notifications of " + assertion.Getter
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, subject),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState reads the keypath from the reactor's current state and
// compares it with the expected value. Maps match as a subset.
func assertFinalState(r *reactor.Reactor, assertion Assertion) error {
	path := immutable.Keypath(assertion.Keypath)
	if err := path.Validate(); err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	actual, ok := r.State().GetIn(path)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("value at %s", path),
			Actual:   "keypath not found",
		}
	}

	if !matchValue(immutable.FromGo(assertion.Expect), actual) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", path, assertion.Expect),
			Actual:   fmt.Sprintf("%s = %v", path, immutable.ToGo(actual)),
		}
	}
	return nil
}

// matchValue reports whether actual matches expected. A map matches when
// every expected key is present with a matching value; extra keys are
// ignored. A nil expectation matches anything.
func matchValue(expected, actual immutable.Value) bool {
	if _, ok := expected.(immutable.Null); ok || expected == nil {
		return true
	}
	em, ok := expected.(immutable.Map)
	if !ok {
		return immutable.Equal(expected, actual)
	}
	am, ok := actual.(immutable.Map)
	if !ok {
		return false
	}
	match := true
	em.Range(func(key string, ev immutable.Value) bool {
		av, exists := am.Get(key)
		if !exists || !matchValue(ev, av) {
			match = false
		}
		return match
	})
	return match
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Reactor *reactor.Reactor
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// final_state assertions read from actx.Reactor.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Reactor == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a reactor", i)
			} else {
				err = assertFinalState(actx.Reactor, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
