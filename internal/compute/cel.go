package compute

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/store"
)

type celEngine struct {
	cache ProgramCache
}

// NewCEL returns the cel-go engine. Every parameter is declared dyn.
func NewCEL(opts ...Option) Engine {
	cfg := applyOptions(opts)
	return &celEngine{cache: cfg.cache}
}

func (e *celEngine) Name() string { return "cel" }

func (e *celEngine) Compile(source string, params []string) (getter.ComputeFunc, error) {
	program, err := e.loadOrCompile(source, params)
	if err != nil {
		return nil, err
	}
	return func(args ...any) (any, error) {
		activation, err := bindArgs("cel", source, params, args)
		if err != nil {
			return nil, err
		}
		out, _, err := program.Eval(activation)
		if err != nil {
			return nil, wrapError("cel", source, err)
		}
		return celNative(out), nil
	}, nil
}

func (e *celEngine) CompileReducer(source string) (store.Reducer, error) {
	program, err := e.loadOrCompile(source, []string{"state", "payload"})
	if err != nil {
		return nil, err
	}
	return func(state immutable.Value, payload any) (immutable.Value, error) {
		out, _, err := program.Eval(reducerEnv(state, payload))
		if err != nil {
			return nil, wrapError("cel", source, err)
		}
		return immutable.FromGo(celNative(out)), nil
	}, nil
}

func (e *celEngine) loadOrCompile(source string, params []string) (celgo.Program, error) {
	if source == "" {
		return nil, emptySource("cel")
	}
	key := cacheKey("cel", source, params)
	if cached, ok := e.cache.Get(key); ok {
		if program, ok := cached.(celgo.Program); ok {
			return program, nil
		}
	}

	opts := make([]celgo.EnvOption, 0, len(params))
	for _, name := range params {
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, wrapError("cel", source, err)
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, wrapError("cel", source, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapError("cel", source, err)
	}
	e.cache.Set(key, program)
	return program, nil
}

// celNative converts a CEL result to plain Go data, unpacking lists and
// maps element by element.
func celNative(v ref.Val) any {
	switch val := v.(type) {
	case types.Null:
		return nil
	case traits.Mapper:
		out := make(map[string]any)
		it := val.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			out[fmt.Sprint(k.Value())] = celNative(val.Get(k))
		}
		return out
	case traits.Lister:
		n, _ := val.Size().(types.Int)
		out := make([]any, int(n))
		for i := range out {
			out[i] = celNative(val.Get(types.Int(i)))
		}
		return out
	default:
		return val.Value()
	}
}
