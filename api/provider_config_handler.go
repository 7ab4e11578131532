package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/costwatch/costwatch-dashboard/config"
	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/secret"
	"github.com/costwatch/costwatch-dashboard/source"
)

// providerConfigRequest captures the payload to switch the source provider.
type providerConfigRequest struct {
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config"`
	Plugin   string         `json:"plugin,omitempty"`
}

// BuildSource constructs the source provider described by pc. When the config
// carries no token, the upstream token stored in sec is injected.
func BuildSource(ctx context.Context, pc config.ProviderConfig, sec SecretProvider) (source.Provider, error) {
	cfg := maps.Clone(pc.Config)
	if cfg == nil {
		cfg = map[string]any{}
	}
	if _, ok := cfg["token"]; !ok && sec != nil {
		if token, err := sec.Get(ctx, secret.KeyUpstreamToken); err == nil && token != "" {
			cfg["token"] = token
		}
	}

	if pluginPath := strings.TrimSpace(pc.Plugin); pluginPath != "" {
		return newSourcePluginProvider(pluginPath, cfg), nil
	}
	name := strings.TrimSpace(strings.ToLower(pc.Provider))
	constructor, ok := source.LookupProvider(name)
	if !ok {
		return nil, fmt.Errorf("source provider %s not registered", name)
	}
	return constructor(cfg)
}

// LoadSource resolves the startup source provider: an explicit configuration wins,
// otherwise the configuration stored by a previous provider switch is reused. It
// returns a nil provider when neither exists.
func LoadSource(ctx context.Context, pc config.ProviderConfig, sec SecretProvider) (string, source.Provider, error) {
	if pc.Empty() && sec != nil {
		raw, err := sec.Get(ctx, secret.KeySourceConfig)
		if err == nil {
			var stored providerConfigRequest
			if err := json.Unmarshal([]byte(raw), &stored); err != nil {
				return "", nil, fmt.Errorf("decode stored source config: %w", err)
			}
			pc = config.ProviderConfig{Provider: stored.Provider, Plugin: stored.Plugin, Config: stored.Config}
		}
	}
	if pc.Empty() {
		return "", nil, nil
	}
	p, err := BuildSource(ctx, pc, sec)
	if err != nil {
		return "", nil, err
	}
	return providerName(pc.Provider, pc.Plugin), p, nil
}

func providerName(name, plugin string) string {
	if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
		return name
	}
	return "plugin:" + plugin
}

func (s *Server) handleListSourceProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": source.Providers(),
		"active":    s.source.Name(),
	})
}

func (s *Server) handleSetSourceProvider(w http.ResponseWriter, r *http.Request) {
	if s.secret == nil {
		s.writeError(w, r, http.StatusNotImplemented, cwerr.New("secret_provider_missing", "secret provider not configured", nil))
		return
	}

	var req providerConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, cwerr.New(cwerr.CodeBadRequest, err.Error(), nil))
		return
	}
	if req.Provider == "" {
		s.writeError(w, r, http.StatusBadRequest, cwerr.New(cwerr.CodeBadRequest, "provider required", nil))
		return
	}

	pc := config.ProviderConfig{Provider: req.Provider, Plugin: req.Plugin, Config: req.Config}
	provider, err := BuildSource(r.Context(), pc, s.secret)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, cwerr.New(cwerr.CodeBadRequest, err.Error(), nil))
		return
	}

	// Persist config via secret provider for reuse.
	if err := s.storeProviderConfig(r.Context(), req); err != nil {
		s.writeError(w, r, http.StatusBadGateway, cwerr.New("secret_store_error", err.Error(), nil))
		return
	}

	name := providerName(req.Provider, req.Plugin)
	if prev := s.source.Set(name, provider); prev != nil {
		if c, ok := prev.(io.Closer); ok {
			_ = c.Close()
		}
	}
	s.datasets.Invalidate(dataset.Names...)

	s.logAudit(r, "source.configured", "provider", name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "active": name})
}

func (s *Server) storeProviderConfig(ctx context.Context, req providerConfigRequest) error {
	bytes, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.secret.Put(ctx, secret.KeySourceConfig, string(bytes))
}
