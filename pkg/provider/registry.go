package provider

import (
	"context"
	"fmt"
)

// Factory constructs a configured provider for one task attempt.
type Factory func(ctx context.Context, cfg Config, deps Deps) (Provider, error)

// registry stores each provider kind's factory function. New calls the
// appropriate factory to yield a fresh instance of that provider.
var registry = map[Kind]Factory{}

// Register is called in each provider implementation's init() function
// to make its factory resolvable by kind.
func Register(kind Kind, factory Factory) {
	registry[kind] = factory
}

// New returns a configured provider instance, resolving the factory
// from the registry by the config's kind.
func New(ctx context.Context, cfg Config, deps Deps) (Provider, error) {
	factory, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind: %s", cfg.Kind)
	}
	return factory(ctx, cfg, deps)
}

// Registered reports whether a factory exists for the given kind.
func Registered(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}
