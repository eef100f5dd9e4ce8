package cli

import (
	"errors"
	"strings"

	"github.com/roach88/nucleus/internal/compiler"
)

// loadedProgram is a program directory that parsed, validated and built.
type loadedProgram struct {
	Dir       string
	FileCount int
	Spec      *compiler.Spec
	Program   *compiler.Program
	Hash      string
}

// loadProgram loads and compiles the program in dir. A directory that
// cannot be loaded is reported as err; a program that loads but does not
// compile is reported as validation errors, all of them when possible.
func loadProgram(dir string) (*loadedProgram, []compiler.ValidationError, error) {
	res, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	spec, err := compiler.Parse(res.Value)
	if err != nil {
		return nil, []compiler.ValidationError{toValidationError(err)}, nil
	}
	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		return nil, verrs, nil
	}
	program, err := compiler.Build(spec)
	if err != nil {
		return nil, []compiler.ValidationError{toValidationError(err)}, nil
	}

	hash, err := spec.Hash()
	if err != nil {
		return nil, nil, err
	}
	return &loadedProgram{
		Dir:       dir,
		FileCount: res.FileCount,
		Spec:      spec,
		Program:   program,
		Hash:      hash,
	}, nil, nil
}

// toValidationError converts a parse or build failure.
func toValidationError(err error) compiler.ValidationError {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		return compiler.ValidationError{Field: "program", Message: err.Error(), Code: compiler.ErrCodeGeneric}
	}
	ve := compiler.ValidationError{
		Field:   ce.Field,
		Message: ce.Message,
		Code:    codeForField(ce.Field),
	}
	if ce.Pos.IsValid() {
		ve.Line = ce.Pos.Line()
	}
	return ve
}

// codeForField maps a compile error field to a validation error code.
func codeForField(field string) string {
	switch {
	case strings.HasSuffix(field, ".lang"):
		return compiler.ErrUnknownLang
	case strings.HasSuffix(field, ".compute"),
		strings.HasSuffix(field, ".reset"),
		strings.Contains(field, ".on."):
		return compiler.ErrBadSource
	default:
		return compiler.ErrCodeGeneric
	}
}

// loadErrorCode returns the code of a load failure.
func loadErrorCode(err error) string {
	var le *compiler.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return compiler.ErrCodeGeneric
}
