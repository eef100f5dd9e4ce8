package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
)

// Scenario is a scripted run of a program with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the program directory. Relative paths are resolved
	// against the scenario file's directory.
	Program string `yaml:"program"`

	// Options overrides the reactor options. Defaults to DevOptions.
	Options *reactor.Options `yaml:"options,omitempty"`

	// Observe lists the deps observed for the whole run. Notifications
	// appear in the trace.
	Observe []DepRef `yaml:"observe,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DepRef names a dependency in YAML: a scalar is a getter name, a
// sequence is a keypath.
type DepRef struct {
	Getter  string
	Keypath []any // nil unless the ref is a keypath; empty for the whole state
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DepRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&d.Getter)
	case yaml.SequenceNode:
		var keys []any
		if err := node.Decode(&keys); err != nil {
			return err
		}
		if keys == nil {
			keys = []any{}
		}
		d.Keypath = keys
		return nil
	default:
		return fmt.Errorf("line %d: dependency must be a getter name or a keypath list", node.Line)
	}
}

// IsKeypath reports whether the ref is a keypath.
func (d DepRef) IsKeypath() bool {
	return d.Keypath != nil
}

// Step is one scenario instruction. Exactly one of Dispatch (with
// Payload), Batch, Reset, SerializeRoundtrip or Expect is set.
type Step struct {
	Dispatch           *string       `yaml:"dispatch,omitempty"`
	Payload            any           `yaml:"payload,omitempty"`
	Batch              []Step        `yaml:"batch,omitempty"`
	Reset              bool          `yaml:"reset,omitempty"`
	SerializeRoundtrip bool          `yaml:"serialize_roundtrip,omitempty"`
	Expect             *ExpectClause `yaml:"expect,omitempty"`

	// Error, when set, expects the step to fail with an error containing
	// this text (an error code such as CONTRACT_VIOLATION works).
	Error string `yaml:"error,omitempty"`
}

// ExpectClause checks the current value of a getter or keypath.
type ExpectClause struct {
	Getter  string `yaml:"getter,omitempty"`
	Keypath []any  `yaml:"keypath,omitempty"`
	Value   any    `yaml:"value"`
}

// Ref returns the clause's dependency.
func (e ExpectClause) Ref() DepRef {
	if e.Getter != "" {
		return DepRef{Getter: e.Getter}
	}
	if e.Keypath == nil {
		return DepRef{Keypath: []any{}}
	}
	return DepRef{Keypath: e.Keypath}
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action is the dispatched action type (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Payload is matched as a subset (trace_contains).
	Payload any `yaml:"payload,omitempty"`

	// Getter counts notifications instead of dispatches (trace_count).
	Getter string `yaml:"getter,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected dispatch order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Keypath selects the value to check (final_state).
	Keypath []any `yaml:"keypath,omitempty"`

	// Expect is the expected value (final_state). Maps match as a subset.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. The program path is
// resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the program path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	scenario, err := decodeScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) && basePath != "" {
		scenario.Program = filepath.Join(basePath, scenario.Program)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// LoadScript reads a run script: scenario YAML whose program is supplied
// by the caller. Name defaults to the file name and description is
// optional.
func LoadScript(path, programDir string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	scenario, err := decodeScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Program != "" {
		return nil, fmt.Errorf("invalid script: program is given on the command line, not in the script")
	}
	scenario.Program = programDir
	if scenario.Name == "" {
		base := filepath.Base(path)
		scenario.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if scenario.Description == "" {
		scenario.Description = "script " + path
	}
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return scenario, nil
}

func decodeScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if info, err := os.Stat(s.Program); err != nil || !info.IsDir() {
		return fmt.Errorf("program directory not found: %s", s.Program)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, ref := range s.Observe {
		if ref.IsKeypath() {
			if err := immutable.Keypath(ref.Keypath).Validate(); err != nil {
				return fmt.Errorf("observe[%d]: %w", i, err)
			}
		} else if ref.Getter == "" {
			return fmt.Errorf("observe[%d]: getter name is empty", i)
		}
	}

	if err := validateSteps("steps", s.Steps); err != nil {
		return err
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(field string, steps []Step) error {
	for i, step := range steps {
		name := fmt.Sprintf("%s[%d]", field, i)
		set := 0
		if step.Dispatch != nil {
			set++
		}
		if step.Batch != nil {
			set++
			if err := validateSteps(name+".batch", step.Batch); err != nil {
				return err
			}
		}
		if step.Reset {
			set++
		}
		if step.SerializeRoundtrip {
			set++
		}
		if step.Expect != nil {
			set++
			if step.Expect.Getter != "" && step.Expect.Keypath != nil {
				return fmt.Errorf("%s.expect: getter and keypath are exclusive", name)
			}
		}
		if set != 1 {
			return fmt.Errorf("%s: exactly one of dispatch, batch, reset, serialize_roundtrip or expect is required", name)
		}
		if step.Payload != nil && step.Dispatch == nil {
			return fmt.Errorf("%s: payload is only valid with dispatch", name)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" && a.Getter == "" {
			return fmt.Errorf("assertions[%d]: action or getter is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Keypath == nil {
			return fmt.Errorf("assertions[%d]: keypath is required for final_state", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
