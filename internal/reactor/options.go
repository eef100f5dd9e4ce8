package reactor

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by OptionsFromEnv.
const EnvPrefix = "NUCLEUS_"

// Options is the flat set of strictness and logging switches.
type Options struct {
	// Debug emits a debug record for every observer evaluated during
	// notification.
	Debug bool `env:"DEBUG" yaml:"debug" json:"debug"`

	// LogDispatches logs every action and the resulting dispatch id.
	LogDispatches bool `env:"LOG_DISPATCHES" yaml:"log_dispatches" json:"log_dispatches"`

	// LogAppState logs the serialized state after each transaction.
	LogAppState bool `env:"LOG_APP_STATE" yaml:"log_app_state" json:"log_app_state"`

	// LogDirtyStores logs the ids of the stores each transaction changed.
	LogDirtyStores bool `env:"LOG_DIRTY_STORES" yaml:"log_dirty_stores" json:"log_dirty_stores"`

	// ThrowOnUndefinedActionType rejects dispatches with an empty action type.
	ThrowOnUndefinedActionType bool `env:"THROW_ON_UNDEFINED_ACTION_TYPE" yaml:"throw_on_undefined_action_type" json:"throw_on_undefined_action_type"`

	// ThrowOnUndefinedStoreReturnValue rejects a nil Value returned by a
	// store handler. When off, nil is stored as immutable.Null.
	ThrowOnUndefinedStoreReturnValue bool `env:"THROW_ON_UNDEFINED_STORE_RETURN_VALUE" yaml:"throw_on_undefined_store_return_value" json:"throw_on_undefined_store_return_value"`

	// ThrowOnNonImmutableStore rejects initial and reset values that are
	// not structural trees.
	ThrowOnNonImmutableStore bool `env:"THROW_ON_NON_IMMUTABLE_STORE" yaml:"throw_on_non_immutable_store" json:"throw_on_non_immutable_store"`

	// ThrowOnDispatchInDispatch controls how a rejected nested Dispatch or
	// Batch is reported. The call always fails with a reentrancy error;
	// when off it is also logged as a warning.
	ThrowOnDispatchInDispatch bool `env:"THROW_ON_DISPATCH_IN_DISPATCH" yaml:"throw_on_dispatch_in_dispatch" json:"throw_on_dispatch_in_dispatch"`
}

// DevOptions turns every switch on.
func DevOptions() Options {
	return Options{
		Debug:                            true,
		LogDispatches:                    true,
		LogAppState:                      true,
		LogDirtyStores:                   true,
		ThrowOnUndefinedActionType:       true,
		ThrowOnUndefinedStoreReturnValue: true,
		ThrowOnNonImmutableStore:         true,
		ThrowOnDispatchInDispatch:        true,
	}
}

// ProdOptions turns everything off except nested dispatch errors.
func ProdOptions() Options {
	return Options{ThrowOnDispatchInDispatch: true}
}

// OptionsFromEnv overlays NUCLEUS_* environment variables on base.
// Unset variables keep base's value.
func OptionsFromEnv(base Options) (Options, error) {
	opts := base
	if err := env.ParseWithOptions(&opts, env.Options{Prefix: EnvPrefix}); err != nil {
		return Options{}, fmt.Errorf("parse env: %w", err)
	}
	return opts, nil
}

// LogValue implements slog.LogValuer.
func (o Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("debug", o.Debug),
		slog.Bool("log_dispatches", o.LogDispatches),
		slog.Bool("log_app_state", o.LogAppState),
		slog.Bool("log_dirty_stores", o.LogDirtyStores),
		slog.Bool("throw_on_undefined_action_type", o.ThrowOnUndefinedActionType),
		slog.Bool("throw_on_undefined_store_return_value", o.ThrowOnUndefinedStoreReturnValue),
		slog.Bool("throw_on_non_immutable_store", o.ThrowOnNonImmutableStore),
		slog.Bool("throw_on_dispatch_in_dispatch", o.ThrowOnDispatchInDispatch),
	)
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithOptions replaces the reactor's switches (default: ProdOptions).
func WithOptions(o Options) Option {
	return func(r *Reactor) {
		r.opts = o
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCommitHook installs a hook called after every committed transaction.
func WithCommitHook(h CommitHook) Option {
	return func(r *Reactor) {
		r.commitHook = h
	}
}
