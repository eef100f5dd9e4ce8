package compute

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/store"
)

type exprEngine struct {
	cache ProgramCache
}

// NewExpr returns the expr-lang engine.
func NewExpr(opts ...Option) Engine {
	cfg := applyOptions(opts)
	return &exprEngine{cache: cfg.cache}
}

func (e *exprEngine) Name() string { return "expr" }

func (e *exprEngine) Compile(source string, params []string) (getter.ComputeFunc, error) {
	program, err := e.loadOrCompile(source, params)
	if err != nil {
		return nil, err
	}
	return func(args ...any) (any, error) {
		env, err := bindArgs("expr", source, params, args)
		if err != nil {
			return nil, err
		}
		out, err := exprlang.Run(program, env)
		if err != nil {
			return nil, wrapError("expr", source, err)
		}
		return out, nil
	}, nil
}

func (e *exprEngine) CompileReducer(source string) (store.Reducer, error) {
	program, err := e.loadOrCompile(source, []string{"state", "payload"})
	if err != nil {
		return nil, err
	}
	return func(state immutable.Value, payload any) (immutable.Value, error) {
		out, err := exprlang.Run(program, reducerEnv(state, payload))
		if err != nil {
			return nil, wrapError("expr", source, err)
		}
		return immutable.FromGo(out), nil
	}, nil
}

func (e *exprEngine) loadOrCompile(source string, params []string) (*exprvm.Program, error) {
	if source == "" {
		return nil, emptySource("expr")
	}
	key := cacheKey("expr", source, params)
	if cached, ok := e.cache.Get(key); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return program, nil
		}
	}

	program, err := exprlang.Compile(source,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, wrapError("expr", source, err)
	}
	e.cache.Set(key, program)
	return program, nil
}
