package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwatch/costwatch-dashboard/config"
	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/dashboard"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/highlight"
	"github.com/costwatch/costwatch-dashboard/observability"
	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/source"
	"github.com/costwatch/costwatch-dashboard/source/mocksource"
	"github.com/costwatch/costwatch-dashboard/threshold"
)

var now = time.Date(2025, 9, 8, 0, 30, 0, 0, time.UTC)

// memorySecret is an in-memory secret.Provider.
type memorySecret struct {
	mu    sync.Mutex
	store map[string]string
}

func (m *memorySecret) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[key]
	if !ok {
		return "", cwerr.New(cwerr.CodeNotFound, key+" not found", nil)
	}
	return v, nil
}

func (m *memorySecret) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value
	return nil
}

// failingWriter wraps a provider and fails every rule write.
type failingWriter struct {
	source.Provider
}

func (failingWriter) UpsertAlertRule(context.Context, schema.AlertRule) (schema.AlertRule, error) {
	return schema.AlertRule{}, errors.New("Request failed 500: rule store down")
}

type harness struct {
	srv     *Server
	clk     *clock.Mock
	set     *dataset.Set
	holder  *source.Holder
	views   *Views
	metrics *observability.Metrics
	secret  *memorySecret
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	holder := source.NewHolder()
	holder.Set("mock", mocksource.NewWithClock(clk, mocksource.DefaultCatalog))

	metrics := observability.NewMetrics()
	set := dataset.NewSet(holder, nil, dataset.Options{Clock: clk, Logger: logger, Observe: metrics.ObserveFetch})
	require.NoError(t, set.RefreshAll(context.Background()))

	ctrl := threshold.NewController(holder, set, threshold.Options{Logger: logger, OnWrite: metrics.ObserveThresholdWrite})
	builder := dashboard.NewBuilder(set, ctrl, dashboard.Options{Clock: clk})
	views := NewViews(clk, 30*time.Minute, metrics.SetViews)
	sec := &memorySecret{store: map[string]string{}}

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := NewServer(cfg, Deps{
		Secret:     sec,
		Source:     holder,
		Datasets:   set,
		Thresholds: ctrl,
		Builder:    builder,
		Views:      views,
		Metrics:    metrics,
		Logger:     logger,
		Clock:      clk,
	})
	require.NoError(t, err)
	return &harness{srv: srv, clk: clk, set: set, holder: holder, views: views, metrics: metrics, secret: sec}
}

func (h *harness) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.srv.ServeHTTP(rr, req)
	return rr
}

func decodeInto[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), rr.Body.String())
	return out
}

func (h *harness) createView(t *testing.T) string {
	t.Helper()
	rr := h.do(http.MethodPost, "/v1/views", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	return decodeInto[viewResponse](t, rr).ID
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"status": "ok", "source": "mock"}, decodeInto[map[string]string](t, rr))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = h.do(http.MethodGet, "/", nil, "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestBearerToken(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.BearerToken = "s3cret" })

	rr := h.do(http.MethodGet, "/v1/datasets", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	rr = h.do(http.MethodGet, "/v1/datasets", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.do(http.MethodGet, "/v1/datasets", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, nil)
	rr := h.do(http.MethodOptions, "/v1/alert-rules", nil,
		"Origin", "https://dash.example.com",
		"Access-Control-Request-Method", http.MethodPut)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewServerRejectsHalfTLS(t *testing.T) {
	cfg := config.Default()
	cfg.TLS.CertFile = "cert.pem"
	_, err := NewServer(cfg, Deps{})
	require.Error(t, err)
}

func TestListenAndServeUsesTLSWhenConfigured(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.TLS.CertFile = "cert.pem"
		c.TLS.KeyFile = "key.pem"
	})
	var gotCert, gotKey string
	h.srv.serveTLS = func(_ *http.Server, cert, key string) error {
		gotCert, gotKey = cert, key
		return http.ErrServerClosed
	}
	h.srv.serve = func(*http.Server) error { return errors.New("plain serve called") }

	require.NoError(t, h.srv.ListenAndServe(context.Background(), ":0"))
	assert.Equal(t, "cert.pem", gotCert)
	assert.Equal(t, "key.pem", gotKey)
}

func TestViewLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	assert.Equal(t, 1, h.views.Len())

	rr := h.do(http.MethodGet, "/v1/views/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeInto[dashboard.Page](t, rr)
	assert.NotEmpty(t, page.Chart.Buckets)
	assert.Len(t, page.Chart.Series, len(mocksource.DefaultCatalog))
	assert.Len(t, page.Datasets, len(dataset.Names))
	assert.Len(t, page.Percentiles.Rows, len(mocksource.DefaultCatalog))

	rr = h.do(http.MethodDelete, "/v1/views/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(http.MethodGet, "/v1/views/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeInto[map[string]string](t, rr)["code"])
}

func TestViewExpiresAfterIdleTTL(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)

	h.clk.Add(20 * time.Minute)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/views/"+id+"/chart", nil).Code)

	h.clk.Add(20 * time.Minute)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/views/"+id+"/chart", nil).Code, "access refreshes the idle timer")

	h.clk.Add(31 * time.Minute)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/views/"+id+"/chart", nil).Code)
	assert.Zero(t, h.views.Len())
}

func TestHighlightEnterAndLeave(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	base := "/v1/views/" + id + "/highlight"

	rr := h.do(http.MethodPut, base, map[string]any{"kind": "range", "start": 1000, "end": 2000})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodPut, base, map[string]any{"kind": "range", "start": 3000, "end": 4000})
	require.Equal(t, http.StatusOK, rr.Code)

	// Leaving the superseded range is a no-op.
	rr = h.do(http.MethodDelete, base+"/range?start=1000&end=2000", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodGet, "/v1/views/"+id+"/chart", nil)
	chart := decodeInto[dashboard.Chart](t, rr)
	require.NotNil(t, chart.Highlight.Range)
	assert.Equal(t, int64(3000), chart.Highlight.Range.Start)

	rr = h.do(http.MethodPut, base, map[string]any{"kind": "point", "timestamp": 5000})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = h.do(http.MethodGet, "/v1/views/"+id+"/chart", nil)
	chart = decodeInto[dashboard.Chart](t, rr)
	assert.Nil(t, chart.Highlight.Range, "entering a point clears the range")
	require.NotNil(t, chart.Highlight.Point)

	rr = h.do(http.MethodDelete, base+"/point", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = h.do(http.MethodGet, "/v1/views/"+id+"/chart", nil)
	assert.True(t, decodeInto[dashboard.Chart](t, rr).Highlight.Idle())
}

func TestHighlightValidation(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	base := "/v1/views/" + id + "/highlight"

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, base, map[string]any{"kind": "bogus"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, base, map[string]any{"kind": "range", "start": 1}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, base, "not-json").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodDelete, base+"/range?start=x&end=1", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPut, "/v1/views/nope/highlight", map[string]any{"kind": "point", "timestamp": 1}).Code)
}

func TestHighlightLeaveRequiresFullRange(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createView(t)
	base := "/v1/views/" + id + "/highlight"

	require.Equal(t, http.StatusOK, h.do(http.MethodPut, base, map[string]any{"kind": "range", "start": 1000, "end": 2000}).Code)

	rr := h.do(http.MethodDelete, base+"/range?start=1000", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "both start and end")
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodDelete, base+"/range?end=2000", nil).Code)

	view, ok := h.views.Get(id)
	require.True(t, ok)
	require.NotNil(t, view.Highlight.State().Range)
	assert.Equal(t, highlight.Range{Start: 1000, End: 2000}, *view.Highlight.State().Range)
}

func TestPutAlertRule(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(http.MethodPut, "/v1/alert-rules", map[string]any{"service": "openai", "metric": "tokens", "threshold": "12,5"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, schema.AlertRule{Service: "openai", Metric: "tokens", Threshold: 12.5}, decodeInto[schema.AlertRule](t, rr))

	assert.True(t, h.set.AlertRules.Snapshot().Stale)
	assert.True(t, h.set.AlertWindows.Snapshot().Stale)
	assert.False(t, h.set.Usage.Snapshot().Stale)

	rr = h.do(http.MethodPut, "/v1/alert-rules", map[string]any{"service": "openai", "metric": "tokens", "threshold": 20})
	require.Equal(t, http.StatusOK, rr.Code)

	id := h.createView(t)
	page := decodeInto[dashboard.Page](t, h.do(http.MethodGet, "/v1/views/"+id, nil))
	var found bool
	for _, row := range page.Percentiles.Rows {
		if row.Service == "openai" && row.Metric == "tokens" {
			require.NotNil(t, row.Threshold)
			assert.Equal(t, 20.0, *row.Threshold)
			found = true
		}
	}
	assert.True(t, found)
}

func TestPutAlertRuleRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(http.MethodPut, "/v1/alert-rules", map[string]any{"service": "openai", "metric": "tokens", "threshold": "abc"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, cwerr.CodeInvalidThreshold, decodeInto[map[string]string](t, rr)["code"])

	rr = h.do(http.MethodPut, "/v1/alert-rules", map[string]any{"service": "openai", "metric": "tokens"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(http.MethodPut, "/v1/alert-rules", map[string]any{"service": "", "metric": "tokens", "threshold": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, cwerr.CodeBadRequest, decodeInto[map[string]string](t, rr)["code"])

	assert.False(t, h.set.AlertRules.Snapshot().Stale)
}

func TestPutAlertRuleUpstreamFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.holder.Set("failing", failingWriter{Provider: mocksource.NewWithClock(h.clk, mocksource.DefaultCatalog)})

	rr := h.do(http.MethodPut, "/v1/alert-rules", map[string]any{"service": "openai", "metric": "tokens", "threshold": 3})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	body := decodeInto[map[string]string](t, rr)
	assert.Equal(t, cwerr.CodeUpstream, body["code"])
	assert.Equal(t, "Failed to update threshold", body["message"])
	assert.False(t, h.set.AlertWindows.Snapshot().Stale)
}

func TestDatasets(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(http.MethodGet, "/v1/datasets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeInto[map[string][]dataset.Info](t, rr)
	require.Len(t, body["datasets"], len(dataset.Names))
	for _, info := range body["datasets"] {
		assert.Equal(t, dataset.StatusReady, info.Status, info.Name)
	}

	before := h.set.Version(dataset.Usage)
	rr = h.do(http.MethodPost, "/v1/datasets/usage/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Greater(t, decodeInto[dataset.Info](t, rr).Version, before)

	rr = h.do(http.MethodPost, "/v1/datasets/nope/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDatasetRefreshWithoutSource(t *testing.T) {
	h := newHarness(t, nil)
	empty := source.NewHolder()
	h.srv.datasets = dataset.NewSet(empty, nil, dataset.Options{Clock: h.clk})

	rr := h.do(http.MethodPost, "/v1/datasets/usage/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, cwerr.CodeSourceMissing, decodeInto[map[string]string](t, rr)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodGet, "/v1/datasets", nil)

	rr := h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `costwatch_http_requests_total{route="/v1/datasets",status="200"} 1`)
	assert.Contains(t, body, `costwatch_dataset_fetch_total{dataset="usage",outcome="ok"}`)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/nope", nil).Code)
}
