// Package secret resolves credentials and persisted provider settings.
package secret

import (
	"context"

	"github.com/costwatch/costwatch-dashboard/registry"
)

// Well-known keys.
const (
	// KeyUpstreamToken holds the bearer token sent to the upstream cost API.
	KeyUpstreamToken = "upstream/token"
	// KeySourceConfig holds the JSON {provider, plugin, config} of the active source.
	KeySourceConfig = "providers/source/default"
)

// Provider is the abstraction for secret backends.
// Implementations receive all config through the constructor.
type Provider interface {
	// Get returns the plaintext value for a logical key.
	Get(ctx context.Context, key string) (string, error)
	// Put stores a plaintext value at the logical key, creating or updating as needed.
	Put(ctx context.Context, key, value string) error
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(config map[string]any) (Provider, error)

var providers = registry.New[ProviderConstructor]("secret")

// RegisterProvider registers a secret backend by name (case-insensitive).
func RegisterProvider(name string, constructor ProviderConstructor) error {
	return providers.Register(name, constructor)
}

// LookupProvider finds a provider constructor by name.
func LookupProvider(name string) (ProviderConstructor, bool) {
	return providers.Get(name)
}

// Providers lists registered secret provider names.
func Providers() []string {
	return providers.Names()
}
