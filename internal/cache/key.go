package cache

import (
	"encoding/json"
	"fmt"
)

// Key identifies a cached result: an operation plus its canonical arguments
type Key struct {
	Operation string
	Args      string
}

// NewKey encodes args deterministically. Callers pass a struct with defaults
// already applied and strings normalized; struct fields encode in declaration
// order and map keys are sorted, so equal queries produce equal keys.
func NewKey(operation string, args any) (Key, error) {
	if args == nil {
		return Key{Operation: operation}, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Key{}, fmt.Errorf("canonicalize %s args: %w", operation, err)
	}
	return Key{Operation: operation, Args: string(data)}, nil
}

func (k Key) String() string {
	if k.Args == "" {
		return k.Operation
	}
	return k.Operation + " " + k.Args
}
