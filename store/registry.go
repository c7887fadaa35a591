package store

import (
	"context"
	"fmt"
)

// Factory constructs a Store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (Store, error)

var registry = make(map[string]Factory)

// Register adds a backend factory under a name. Backends call this from init.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create builds the backend registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
