package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/nucleus/internal/compute"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateName     = "E101" // store or getter declared twice
	ErrUnknownGetterRef  = "E102" // dependency names an undeclared getter
	ErrGetterCycle       = "E103" // getters reference each other in a cycle
	ErrParamsArity       = "E104" // params count differs from deps count
	ErrEmptyCompute      = "E105" // getter has no compute source
	ErrUnknownLang       = "E106" // unknown compute engine
	ErrEmptyHandler      = "E107" // reducer source is empty
	ErrEmptyDeps         = "E108" // getter has no dependencies
	ErrUnknownStoreInDep = "E109" // keypath's leading key is not a declared store
	ErrBadSource         = "E110" // reducer or compute source does not compile
)

// ValidationError represents a program validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a parsed program. Returns all errors found (does not
// fail fast).
func Validate(spec *Spec) []ValidationError {
	var errs []ValidationError

	storeIDs := make(map[string]bool, len(spec.Stores))
	for _, s := range spec.Stores {
		field := "store." + s.ID
		if storeIDs[s.ID] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate store", Code: ErrDuplicateName, Line: s.Pos.Line()})
		}
		storeIDs[s.ID] = true
		errs = append(errs, validateLang(field, s.Lang, spec.Lang, s.Pos.Line())...)
		for _, h := range s.Handlers {
			if h.Source == "" {
				errs = append(errs, ValidationError{
					Field:   field + ".on." + h.Action,
					Message: "reducer source is empty",
					Code:    ErrEmptyHandler,
					Line:    h.Pos.Line(),
				})
			}
		}
	}

	getterNames := make(map[string]bool, len(spec.Getters))
	for _, g := range spec.Getters {
		if getterNames[g.Name] {
			errs = append(errs, ValidationError{Field: "getter." + g.Name, Message: "duplicate getter", Code: ErrDuplicateName, Line: g.Pos.Line()})
		}
		getterNames[g.Name] = true
	}

	for _, g := range spec.Getters {
		errs = append(errs, validateGetter(g, spec.Lang, storeIDs, getterNames)...)
	}

	for _, c := range AnalyzeCycles(spec.Getters) {
		errs = append(errs, ValidationError{
			Field:   "getter." + c.Path[0],
			Message: c.Message,
			Code:    ErrGetterCycle,
		})
	}
	return errs
}

func validateGetter(g GetterSpec, defaultLang string, storeIDs, getterNames map[string]bool) []ValidationError {
	var errs []ValidationError
	field := "getter." + g.Name
	line := g.Pos.Line()

	if len(g.Deps) == 0 {
		errs = append(errs, ValidationError{Field: field + ".deps", Message: "at least one dependency is required", Code: ErrEmptyDeps, Line: line})
	}
	if g.Compute == "" {
		errs = append(errs, ValidationError{Field: field + ".compute", Message: "compute is required", Code: ErrEmptyCompute, Line: line})
	}
	if len(g.Params) != len(g.Deps) {
		errs = append(errs, ValidationError{
			Field:   field + ".params",
			Message: fmt.Sprintf("%d params for %d deps", len(g.Params), len(g.Deps)),
			Code:    ErrParamsArity,
			Line:    line,
		})
	}
	errs = append(errs, validateLang(field, g.Lang, defaultLang, line)...)

	for i, d := range g.Deps {
		depField := fmt.Sprintf("%s.deps[%d]", field, i)
		if d.Ref != "" {
			if !getterNames[d.Ref] {
				errs = append(errs, ValidationError{
					Field:   depField,
					Message: fmt.Sprintf("unknown getter %q", d.Ref),
					Code:    ErrUnknownGetterRef,
					Line:    line,
				})
			}
			continue
		}
		if len(d.Keypath) == 0 {
			continue
		}
		if id, ok := d.Keypath[0].(string); !ok || !storeIDs[id] {
			errs = append(errs, ValidationError{
				Field:   depField,
				Message: fmt.Sprintf("keypath %s does not start with a declared store", d.Keypath),
				Code:    ErrUnknownStoreInDep,
				Line:    line,
			})
		}
	}
	return errs
}

func validateLang(field, lang, defaultLang string, line int) []ValidationError {
	if lang == "" {
		lang = defaultLang
	}
	if lang == "" || slices.Contains(compute.Engines(), lang) {
		return nil
	}
	return []ValidationError{{
		Field:   field + ".lang",
		Message: fmt.Sprintf("unknown compute engine %q (available: %v)", lang, compute.Engines()),
		Code:    ErrUnknownLang,
		Line:    line,
	}}
}
