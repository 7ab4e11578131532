// Package httpsource reads the dashboard datasets from the upstream cost API.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/source"
)

const (
	tracerName     = "github.com/costwatch/costwatch-dashboard/source/httpsource"
	defaultTimeout = 15 * time.Second
	// maxErrorBody caps how much of an error response is echoed back.
	maxErrorBody = 4 << 10
)

// Upstream endpoints.
const (
	PathUsage        = "/v1/usage"
	PathPercentiles  = "/v1/usage-percentiles"
	PathAlertWindows = "/v1/alert-windows"
	PathAnomalies    = "/v1/anomalies"
	PathAlertRules   = "/v1/alert-rules"
)

// Client talks to the upstream API over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
}

var _ source.Provider = (*Client)(nil)

// New builds a Client from provider config:
//
//	base_url   upstream root, required
//	token      bearer token, optional
//	timeout_ms per-request timeout, default 15000
func New(config map[string]any) (source.Provider, error) {
	baseURL, _ := config["base_url"].(string)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, cwerr.New(cwerr.CodeBadRequest, "http source requires base_url", nil)
	}
	token, _ := config["token"].(string)

	timeout := defaultTimeout
	switch v := config["timeout_ms"].(type) {
	case float64:
		timeout = time.Duration(v) * time.Millisecond
	case int:
		timeout = time.Duration(v) * time.Millisecond
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer(tracerName),
	}, nil
}

func (c *Client) Usage(ctx context.Context) (schema.UsageResponse, error) {
	var res schema.UsageResponse
	return res, c.do(ctx, http.MethodGet, PathUsage, nil, &res)
}

func (c *Client) Percentiles(ctx context.Context) (schema.PercentilesResponse, error) {
	var res schema.PercentilesResponse
	return res, c.do(ctx, http.MethodGet, PathPercentiles, nil, &res)
}

func (c *Client) AlertWindows(ctx context.Context) (schema.AlertWindowsResponse, error) {
	var res schema.AlertWindowsResponse
	return res, c.do(ctx, http.MethodGet, PathAlertWindows, nil, &res)
}

func (c *Client) Anomalies(ctx context.Context) (schema.AnomaliesResponse, error) {
	var res schema.AnomaliesResponse
	return res, c.do(ctx, http.MethodGet, PathAnomalies, nil, &res)
}

func (c *Client) AlertRules(ctx context.Context) (schema.RuleList, error) {
	var res schema.RuleList
	return res, c.do(ctx, http.MethodGet, PathAlertRules, nil, &res)
}

// UpsertAlertRule PUTs the rule. Upstreams that answer with an empty body are
// treated as having stored the rule verbatim.
func (c *Client) UpsertAlertRule(ctx context.Context, rule schema.AlertRule) (schema.AlertRule, error) {
	var res schema.AlertRule
	if err := c.do(ctx, http.MethodPut, PathAlertRules, rule, &res); err != nil {
		return schema.AlertRule{}, err
	}
	if res.Service == "" {
		res = rule
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "upstream "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cwerr.New(cwerr.CodeUpstream, "Request failed", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := strings.TrimSpace(string(text))
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		code := cwerr.CodeUpstream
		if resp.StatusCode == http.StatusBadRequest {
			code = cwerr.CodeBadRequest
		}
		return cwerr.New(code, fmt.Sprintf("Request failed %d: %s", resp.StatusCode, detail), nil)
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return cwerr.New(cwerr.CodeUpstream, "Request failed", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return cwerr.New(cwerr.CodeUpstream, "invalid upstream response", err)
	}
	return nil
}

func init() {
	_ = source.RegisterProvider("http", New)
}
