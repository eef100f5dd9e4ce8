package persist

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
)

// marshalValue converts a Value to canonical JSON TEXT for storage.
func marshalValue(v immutable.Value) (string, error) {
	data, err := immutable.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalValue parses canonical JSON TEXT. Integral numbers come back as
// immutable.Int so large integers keep their precision.
func unmarshalValue(data string) (immutable.Value, error) {
	if data == "" {
		return immutable.Null{}, nil
	}
	return immutable.ParseJSON([]byte(data))
}

func marshalDirty(dirty []string) (string, error) {
	keys := make([]any, len(dirty))
	for i, id := range dirty {
		keys[i] = id
	}
	data, err := marshalValue(immutable.FromGo(keys))
	if err != nil {
		return "", fmt.Errorf("marshal dirty: %w", err)
	}
	return data, nil
}

func unmarshalDirty(data string) ([]string, error) {
	dirty := []string{}
	if data == "" {
		return dirty, nil
	}
	if err := json.Unmarshal([]byte(data), &dirty); err != nil {
		return nil, fmt.Errorf("unmarshal dirty: %w", err)
	}
	return dirty, nil
}

// marshalOptions stores reactor options as JSON. Options is a flat struct
// of booleans, so encoding/json field order is already deterministic.
func marshalOptions(opts reactor.Options) (string, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	return string(data), nil
}

func unmarshalOptions(data string) (reactor.Options, error) {
	var opts reactor.Options
	if data == "" || data == "{}" {
		return opts, nil
	}
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		return reactor.Options{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return opts, nil
}
