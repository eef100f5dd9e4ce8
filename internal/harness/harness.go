package harness

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/nucleus/internal/compiler"
	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/persist"
	"github.com/roach88/nucleus/internal/reactor"
	"github.com/roach88/nucleus/internal/testutil"
)

// Harness executes one scenario against a fresh reactor.
type Harness struct {
	program *compiler.Program
	reactor *reactor.Reactor
	opts    reactor.Options
	seq     *testutil.Sequence
	logger  *slog.Logger
	journal *persist.Journal
	result  *Result
}

// Option configures a run.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	journal *persist.Journal
}

// WithLogger sets the reactor's logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithJournal records every commit of the run into j and takes a
// snapshot when the run ends.
func WithJournal(j *persist.Journal) Option {
	return func(c *config) {
		c.journal = j
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the program and register it with a fresh reactor
//  2. Observe the scenario's deps
//  3. Execute steps, stopping at the first unexpected failure
//  4. Evaluate assertions against the trace and final state
//
// Step and assertion failures are reported in the result. The returned
// error is for scenarios that cannot run at all.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: testutil.DiscardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	program, err := compiler.CompileDir(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to compile program: %w", err)
	}

	h := &Harness{
		program: program,
		opts:    reactor.DevOptions(),
		seq:     testutil.NewSequence(),
		logger:  cfg.logger,
		journal: cfg.journal,
		result:  NewResult(),
	}
	if scenario.Options != nil {
		h.opts = *scenario.Options
	}
	h.reactor = reactor.New(
		reactor.WithOptions(h.opts),
		reactor.WithLogger(h.logger),
		reactor.WithCommitHook(h.onCommit),
	)
	if h.journal != nil {
		h.journal.Attach(h.reactor)
	}
	if err := program.Register(h.reactor); err != nil {
		return nil, fmt.Errorf("failed to register program: %w", err)
	}

	for i, ref := range scenario.Observe {
		dep, label, err := h.resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("observe[%d]: %w", i, err)
		}
		if _, err := h.reactor.Observe(dep, h.notifier(label)); err != nil {
			return nil, fmt.Errorf("observe[%d]: %w", i, err)
		}
	}

	if err := h.runSteps("steps", scenario.Steps); err != nil {
		h.result.AddError(err.Error())
	}

	actx := &AssertionContext{Reactor: h.reactor}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	h.result.State = h.reactor.Serialize()
	h.result.DispatchID = h.reactor.DispatchID()

	if h.journal != nil {
		if _, err := h.journal.Snapshot(); err != nil {
			return h.result, fmt.Errorf("final snapshot: %w", err)
		}
	}
	return h.result, nil
}

func (h *Harness) onCommit(c reactor.Commit) error {
	h.result.add(TraceEvent{
		Type:       EventCommit,
		Kind:       string(c.Kind),
		DispatchID: c.State.DispatchID(),
		Dirty:      c.Dirty,
		Seq:        h.seq.Next(),
	})
	if h.journal != nil {
		return h.journal.Hook(c)
	}
	return nil
}

func (h *Harness) notifier(label string) func(any) error {
	return func(v any) error {
		h.result.add(TraceEvent{Type: EventNotify, Getter: label, Value: v, Seq: h.seq.Next()})
		return nil
	}
}

// resolve maps a ref to a dep and its trace label.
func (h *Harness) resolve(ref DepRef) (getter.Dep, string, error) {
	if ref.IsKeypath() {
		dep := getter.Path(ref.Keypath...)
		return dep, getter.Describe(dep), nil
	}
	g, ok := h.program.Getter(ref.Getter)
	if !ok {
		return nil, "", fmt.Errorf("unknown getter %q", ref.Getter)
	}
	return g, ref.Getter, nil
}

func (h *Harness) runSteps(field string, steps []Step) error {
	for i, step := range steps {
		name := fmt.Sprintf("%s[%d]", field, i)
		err := h.runStep(name, step)
		if step.Error != "" {
			if err == nil {
				return fmt.Errorf("%s: expected error containing %q, got none", name, step.Error)
			}
			if !strings.Contains(err.Error(), step.Error) {
				return fmt.Errorf("%s: expected error containing %q, got: %v", name, step.Error, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (h *Harness) runStep(name string, step Step) error {
	switch {
	case step.Dispatch != nil:
		h.result.add(TraceEvent{Type: EventDispatch, Action: *step.Dispatch, Payload: step.Payload, Seq: h.seq.Next()})
		return h.reactor.Dispatch(*step.Dispatch, step.Payload)
	case step.Batch != nil:
		h.result.add(TraceEvent{Type: EventBatch, Seq: h.seq.Next()})
		return h.reactor.Batch(func() error {
			return h.runSteps(name+".batch", step.Batch)
		})
	case step.Reset:
		h.result.add(TraceEvent{Type: EventReset, Seq: h.seq.Next()})
		return h.reactor.Reset()
	case step.SerializeRoundtrip:
		return h.roundtrip()
	case step.Expect != nil:
		return h.expect(*step.Expect)
	default:
		return fmt.Errorf("empty step")
	}
}

// roundtrip loads the serialized state into a fresh reactor and checks
// that it serializes back to the same record.
func (h *Harness) roundtrip() error {
	record := h.reactor.Serialize()
	stores := make([]string, 0, len(record))
	for id := range record {
		stores = append(stores, id)
	}
	slices.Sort(stores)
	h.result.add(TraceEvent{Type: EventRoundtrip, Stores: stores, Seq: h.seq.Next()})

	fresh := reactor.New(reactor.WithOptions(h.opts), reactor.WithLogger(h.logger))
	if err := h.program.Register(fresh); err != nil {
		return err
	}
	if err := fresh.LoadState(record); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if got := fresh.Serialize(); !immutable.Equal(immutable.FromGo(record), immutable.FromGo(got)) {
		return fmt.Errorf("serialize roundtrip mismatch: got %v, want %v", got, record)
	}
	return nil
}

func (h *Harness) expect(e ExpectClause) error {
	dep, label, err := h.resolve(e.Ref())
	if err != nil {
		return err
	}
	got, err := h.reactor.Evaluate(dep)
	if err != nil {
		return err
	}
	if !immutable.Equal(immutable.FromGo(e.Value), immutable.FromGo(got)) {
		return fmt.Errorf("expect %s: got %v, want %v", label, got, e.Value)
	}
	return nil
}
