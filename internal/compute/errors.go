package compute

import (
	"errors"
	"fmt"
)

// EvaluationError captures the engine and source alongside a compile or
// run failure.
type EvaluationError struct {
	Engine string
	Expr   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("compute: %s engine expr=%q: %v", e.Engine, e.Expr, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapError(engine, source string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	return &EvaluationError{Engine: engine, Expr: source, Err: err}
}

func emptySource(engine string) error {
	return &EvaluationError{Engine: engine, Err: errors.New("expression must not be empty")}
}
