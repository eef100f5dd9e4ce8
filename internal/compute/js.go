package compute

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/store"
)

type jsEngine struct {
	cache ProgramCache
}

// NewJS returns the goja engine. Source is a JavaScript expression; each
// call runs in a fresh runtime.
func NewJS(opts ...Option) Engine {
	cfg := applyOptions(opts)
	return &jsEngine{cache: cfg.cache}
}

func (e *jsEngine) Name() string { return "js" }

func (e *jsEngine) Compile(source string, params []string) (getter.ComputeFunc, error) {
	program, err := e.loadOrCompile(source, params)
	if err != nil {
		return nil, err
	}
	return func(args ...any) (any, error) {
		if len(args) != len(params) {
			_, err := bindArgs("js", source, params, args)
			return nil, err
		}
		plainArgs := make([]any, len(args))
		for i, a := range args {
			plainArgs[i] = plain(a)
		}
		out, _, err := e.call(source, program, plainArgs)
		return out, err
	}, nil
}

func (e *jsEngine) CompileReducer(source string) (store.Reducer, error) {
	program, err := e.loadOrCompile(source, []string{"state", "payload"})
	if err != nil {
		return nil, err
	}
	return func(state immutable.Value, payload any) (immutable.Value, error) {
		out, defined, err := e.call(source, program, []any{plain(state), plain(payload)})
		if err != nil || !defined {
			return nil, err
		}
		return immutable.FromGo(out), nil
	}, nil
}

// call runs the compiled function. defined is false when the script
// returned undefined.
func (e *jsEngine) call(source string, program *goja.Program, args []any) (out any, defined bool, err error) {
	vm := goja.New()
	fnValue, err := vm.RunProgram(program)
	if err != nil {
		return nil, false, wrapError("js", source, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, false, wrapError("js", source, fmt.Errorf("program did not produce a function"))
	}
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = vm.ToValue(a)
	}
	result, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, false, wrapError("js", source, err)
	}
	if goja.IsUndefined(result) {
		return nil, false, nil
	}
	if goja.IsNull(result) {
		return nil, true, nil
	}
	return result.Export(), true, nil
}

func (e *jsEngine) loadOrCompile(source string, params []string) (*goja.Program, error) {
	if source == "" {
		return nil, emptySource("js")
	}
	key := cacheKey("js", source, params)
	if cached, ok := e.cache.Get(key); ok {
		if program, ok := cached.(*goja.Program); ok {
			return program, nil
		}
	}
	wrapped := fmt.Sprintf("(function(%s){ return (%s); })", strings.Join(params, ", "), source)
	program, err := goja.Compile("", wrapped, false)
	if err != nil {
		return nil, wrapError("js", source, err)
	}
	e.cache.Set(key, program)
	return program, nil
}
