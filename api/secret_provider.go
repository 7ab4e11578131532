package api

import (
	"fmt"
	"strings"

	"github.com/costwatch/costwatch-dashboard/config"
	"github.com/costwatch/costwatch-dashboard/secret"
)

// SecretProvider is a thin alias to the secret.Provider interface for API wiring.
type SecretProvider = secret.Provider

// NewSecretProvider builds the secret backend named by pc. A plugin path takes
// precedence over a registered provider name. It returns nil, nil when pc is empty.
func NewSecretProvider(pc config.ProviderConfig) (SecretProvider, error) {
	cfg := pc.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	if pluginPath := strings.TrimSpace(pc.Plugin); pluginPath != "" {
		return newSecretPluginProvider(pluginPath, cfg), nil
	}
	name := strings.TrimSpace(pc.Provider)
	if name == "" {
		return nil, nil
	}
	constructor, ok := secret.LookupProvider(name)
	if !ok {
		return nil, fmt.Errorf("secret provider %s not registered", name)
	}
	return constructor(cfg)
}
