package api

import (
	"context"

	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/secret"
	"github.com/costwatch/costwatch-dashboard/source"
)

// Source plugin provider ------------------------------------------------------

type sourcePluginProvider struct {
	runner *pluginRunner
}

var _ source.Provider = sourcePluginProvider{}

func newSourcePluginProvider(path string, cfg map[string]any) sourcePluginProvider {
	return sourcePluginProvider{runner: newPluginRunner(path, cfg)}
}

func (p sourcePluginProvider) Usage(ctx context.Context) (schema.UsageResponse, error) {
	var res schema.UsageResponse
	return res, p.runner.call(ctx, "source.usage", nil, &res)
}

func (p sourcePluginProvider) Percentiles(ctx context.Context) (schema.PercentilesResponse, error) {
	var res schema.PercentilesResponse
	return res, p.runner.call(ctx, "source.percentiles", nil, &res)
}

func (p sourcePluginProvider) AlertWindows(ctx context.Context) (schema.AlertWindowsResponse, error) {
	var res schema.AlertWindowsResponse
	return res, p.runner.call(ctx, "source.alert_windows", nil, &res)
}

func (p sourcePluginProvider) Anomalies(ctx context.Context) (schema.AnomaliesResponse, error) {
	var res schema.AnomaliesResponse
	return res, p.runner.call(ctx, "source.anomalies", nil, &res)
}

func (p sourcePluginProvider) AlertRules(ctx context.Context) (schema.RuleList, error) {
	var res schema.RuleList
	return res, p.runner.call(ctx, "source.alert_rules", nil, &res)
}

func (p sourcePluginProvider) UpsertAlertRule(ctx context.Context, rule schema.AlertRule) (schema.AlertRule, error) {
	var res schema.AlertRule
	return res, p.runner.call(ctx, "source.alert_rules.upsert", rule, &res)
}

func (p sourcePluginProvider) Close() error {
	return p.runner.Close()
}

// Secret plugin provider ------------------------------------------------------

type secretPluginProvider struct {
	runner *pluginRunner
}

var _ secret.Provider = secretPluginProvider{}

func newSecretPluginProvider(path string, cfg map[string]any) secretPluginProvider {
	return secretPluginProvider{runner: newPluginRunner(path, cfg)}
}

func (p secretPluginProvider) Get(ctx context.Context, key string) (string, error) {
	var res string
	return res, p.runner.call(ctx, "secret.get", map[string]any{"key": key}, &res)
}

func (p secretPluginProvider) Put(ctx context.Context, key, value string) error {
	payload := map[string]any{"key": key, "value": value}
	return p.runner.call(ctx, "secret.put", payload, nil)
}
