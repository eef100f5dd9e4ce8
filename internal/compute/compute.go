// Package compute compiles getter compute functions and store reducers
// from expression source. Three engines are available: "expr"
// (github.com/expr-lang/expr, the default), "cel" (github.com/google/cel-go)
// and "js" (github.com/dop251/goja).
//
// Compiled getters receive their dependency values bound to the declared
// parameter names; reducers see "state" and "payload". Immutable values are
// converted to plain Go data on the way in and results are converted back
// with immutable.FromGo.
package compute

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/store"
)

// DefaultEngine is used when a program does not name a language.
const DefaultEngine = "expr"

// Engine compiles source into compute functions and reducers.
type Engine interface {
	// Name returns the engine's language name.
	Name() string

	// Compile returns a compute function binding positional arguments to
	// params.
	Compile(source string, params []string) (getter.ComputeFunc, error)

	// CompileReducer returns a reducer evaluating source with "state" and
	// "payload" bound.
	CompileReducer(source string) (store.Reducer, error)
}

// ProgramCache stores compiled programs keyed by source.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// NewProgramCache returns an in-memory ProgramCache safe for concurrent use.
func NewProgramCache() ProgramCache {
	return &memoryCache{entries: make(map[string]any)}
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *memoryCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Option configures an engine.
type Option func(*config)

type config struct {
	cache ProgramCache
}

// WithProgramCache shares cache between engines. Keys are namespaced per
// engine.
func WithProgramCache(cache ProgramCache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

func applyOptions(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.cache == nil {
		cfg.cache = NewProgramCache()
	}
	return cfg
}

var constructors = map[string]func(...Option) Engine{
	"expr": NewExpr,
	"cel":  NewCEL,
	"js":   NewJS,
}

// Lookup returns the engine registered under name. The empty name selects
// DefaultEngine.
func Lookup(name string, opts ...Option) (Engine, error) {
	if name == "" {
		name = DefaultEngine
	}
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown compute engine %q (available: %v)", name, Engines())
	}
	return ctor(opts...), nil
}

// Engines lists the registered engine names, sorted.
func Engines() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// plain converts immutable values to Go data and leaves others alone.
func plain(v any) any {
	if iv, ok := v.(immutable.Value); ok {
		return immutable.ToGo(iv)
	}
	return v
}

func bindArgs(engine, source string, params []string, args []any) (map[string]any, error) {
	if len(args) != len(params) {
		return nil, &EvaluationError{
			Engine: engine,
			Expr:   source,
			Err:    fmt.Errorf("got %d arguments for %d params", len(args), len(params)),
		}
	}
	env := make(map[string]any, len(params))
	for i, name := range params {
		env[name] = plain(args[i])
	}
	return env, nil
}

func reducerEnv(state immutable.Value, payload any) map[string]any {
	return map[string]any{
		"state":   plain(state),
		"payload": plain(payload),
	}
}

func cacheKey(engine, source string, params []string) string {
	return fmt.Sprintf("%s\x00%q\x00%s", engine, params, source)
}
