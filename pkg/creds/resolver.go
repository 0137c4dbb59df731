package creds

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Credentials are decrypted login material for a single attempt. They
// live in memory only; nothing in this package persists them.
type Credentials struct {
	Username string
	Password string
}

// Resolver turns an opaque credential reference into usable
// credentials. References, not raw secrets, are what appear in config
// and logs.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (Credentials, error)
}

// EnvResolver resolves references of the form "env:PREFIX" from
// PREFIX_USERNAME / PREFIX_PASSWORD environment variables. Pairs with
// godotenv loading in the CLI.
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (r *EnvResolver) Resolve(ctx context.Context, ref string) (Credentials, error) {
	prefix, ok := strings.CutPrefix(ref, "env:")
	if !ok {
		return Credentials{}, fmt.Errorf("credential ref %q: expected env:PREFIX form", ref)
	}
	user, userOK := os.LookupEnv(prefix + "_USERNAME")
	pass, passOK := os.LookupEnv(prefix + "_PASSWORD")
	if !userOK || !passOK {
		return Credentials{}, fmt.Errorf("credential ref %q: %s_USERNAME or %s_PASSWORD not set", ref, prefix, prefix)
	}
	return Credentials{Username: user, Password: pass}, nil
}

// StaticResolver serves fixed credentials keyed by reference. Test
// double.
type StaticResolver struct {
	mu    sync.RWMutex
	creds map[string]Credentials
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{creds: make(map[string]Credentials)}
}

func (r *StaticResolver) Set(ref string, c Credentials) {
	r.mu.Lock()
	r.creds[ref] = c
	r.mu.Unlock()
}

func (r *StaticResolver) Resolve(ctx context.Context, ref string) (Credentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creds[ref]
	if !ok {
		return Credentials{}, fmt.Errorf("credential ref %q not found", ref)
	}
	return c, nil
}
