package secret

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/costwatch/costwatch-dashboard/cwerr"
)

// EnvProvider reads secrets from environment variables. The key "upstream/token"
// maps to COSTWATCH_SECRET_UPSTREAM_TOKEN with the default prefix. Put only
// overrides values in memory.
type EnvProvider struct {
	prefix string

	mu        sync.RWMutex
	overrides map[string]string
}

// NewEnvProvider builds an EnvProvider. config["prefix"] replaces the default
// "COSTWATCH_SECRET_" prefix.
func NewEnvProvider(config map[string]any) (Provider, error) {
	prefix, _ := config["prefix"].(string)
	if prefix == "" {
		prefix = "COSTWATCH_SECRET_"
	}
	return &EnvProvider{prefix: prefix, overrides: make(map[string]string)}, nil
}

func (e *EnvProvider) variable(key string) string {
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return e.prefix + strings.ToUpper(r.Replace(key))
}

// Get returns the override for key or the value of its environment variable.
func (e *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	e.mu.RLock()
	v, ok := e.overrides[key]
	e.mu.RUnlock()
	if ok {
		return v, nil
	}
	if v, ok := os.LookupEnv(e.variable(key)); ok {
		return v, nil
	}
	return "", cwerr.New(cwerr.CodeNotFound, "secret not found: "+key, nil)
}

// Put overrides key for the lifetime of the process.
func (e *EnvProvider) Put(ctx context.Context, key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[key] = value
	return nil
}

func init() {
	_ = RegisterProvider("env", NewEnvProvider)
}
