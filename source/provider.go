// Package source defines the upstream cost source surface and its provider registry.
package source

import (
	"context"

	"go.uber.org/atomic"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/registry"
	"github.com/costwatch/costwatch-dashboard/schema"
)

// Provider defines the surface an upstream cost source must satisfy.
//
// The four query methods are read-only and return the full envelope for the
// upstream's default period. UpsertAlertRule creates or replaces the single rule
// for the rule's (service, metric).
type Provider interface {
	// Usage returns raw per-interval cost samples.
	Usage(ctx context.Context) (schema.UsageResponse, error)

	// Percentiles returns P50/P90/P95/Max per (service, metric).
	Percentiles(ctx context.Context) (schema.PercentilesResponse, error)

	// AlertWindows returns the intervals where cost exceeded the rule threshold.
	AlertWindows(ctx context.Context) (schema.AlertWindowsResponse, error)

	// Anomalies returns timestamps flagged by the upstream classifier.
	Anomalies(ctx context.Context) (schema.AnomaliesResponse, error)

	// AlertRules lists the configured thresholds.
	AlertRules(ctx context.Context) (schema.RuleList, error)

	// UpsertAlertRule writes a threshold and returns the stored rule.
	UpsertAlertRule(ctx context.Context, rule schema.AlertRule) (schema.AlertRule, error)
}

// ProviderConstructor builds a Provider instance from decrypted config.
type ProviderConstructor func(config map[string]any) (Provider, error)

var providers = registry.New[ProviderConstructor]("provider")

// RegisterProvider adds a source provider constructor.
func RegisterProvider(name string, constructor ProviderConstructor) error {
	return providers.Register(name, constructor)
}

// LookupProvider returns a named source provider constructor if registered.
func LookupProvider(name string) (ProviderConstructor, bool) {
	return providers.Get(name)
}

// Providers lists all registered source provider names.
func Providers() []string {
	return providers.Names()
}

type active struct {
	name     string
	provider Provider
}

// Holder is a Provider that delegates to a swappable active provider. Datasets and
// the threshold controller keep a reference to the Holder, so switching providers at
// runtime never requires rebuilding them.
type Holder struct {
	current *atomic.Pointer[active]
}

var _ Provider = (*Holder)(nil)

// NewHolder returns an empty holder. Calls fail with source_missing until Set.
func NewHolder() *Holder {
	return &Holder{current: atomic.NewPointer[active](nil)}
}

// Set installs p as the active provider and returns the one it replaced, if any.
func (h *Holder) Set(name string, p Provider) Provider {
	prev := h.current.Swap(&active{name: name, provider: p})
	if prev == nil {
		return nil
	}
	return prev.provider
}

// Name returns the active provider name, or "" when none.
func (h *Holder) Name() string {
	if a := h.current.Load(); a != nil {
		return a.name
	}
	return ""
}

func (h *Holder) get() (Provider, error) {
	a := h.current.Load()
	if a == nil {
		return nil, cwerr.New(cwerr.CodeSourceMissing, "source provider not configured", nil)
	}
	return a.provider, nil
}

func (h *Holder) Usage(ctx context.Context) (schema.UsageResponse, error) {
	p, err := h.get()
	if err != nil {
		return schema.UsageResponse{}, err
	}
	return p.Usage(ctx)
}

func (h *Holder) Percentiles(ctx context.Context) (schema.PercentilesResponse, error) {
	p, err := h.get()
	if err != nil {
		return schema.PercentilesResponse{}, err
	}
	return p.Percentiles(ctx)
}

func (h *Holder) AlertWindows(ctx context.Context) (schema.AlertWindowsResponse, error) {
	p, err := h.get()
	if err != nil {
		return schema.AlertWindowsResponse{}, err
	}
	return p.AlertWindows(ctx)
}

func (h *Holder) Anomalies(ctx context.Context) (schema.AnomaliesResponse, error) {
	p, err := h.get()
	if err != nil {
		return schema.AnomaliesResponse{}, err
	}
	return p.Anomalies(ctx)
}

func (h *Holder) AlertRules(ctx context.Context) (schema.RuleList, error) {
	p, err := h.get()
	if err != nil {
		return schema.RuleList{}, err
	}
	return p.AlertRules(ctx)
}

func (h *Holder) UpsertAlertRule(ctx context.Context, rule schema.AlertRule) (schema.AlertRule, error) {
	p, err := h.get()
	if err != nil {
		return schema.AlertRule{}, err
	}
	return p.UpsertAlertRule(ctx, rule)
}
