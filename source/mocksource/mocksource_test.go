package mocksource

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/source"
)

var t0 = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func hourly(svc, metric string, costs ...float64) []schema.UsageRecord {
	out := make([]schema.UsageRecord, len(costs))
	for i, c := range costs {
		out[i] = schema.UsageRecord{Service: svc, Metric: metric, Cost: c, Timestamp: t0.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func rules(thr float64) schema.RuleList {
	return schema.RuleList{Items: []schema.AlertRule{{Service: "svc", Metric: "m", Threshold: thr}}}
}

func TestComputeWindowsClosedAndOpen(t *testing.T) {
	samples := hourly("svc", "m", 1, 5, 6, 1, 7, 8)

	windows := ComputeWindows(samples, rules(2), time.Hour)
	require.Len(t, windows, 2)

	open := windows[0]
	assert.Equal(t, t0.Add(4*time.Hour), open.Start)
	assert.Nil(t, open.End)
	assert.Equal(t, 4.0, open.ExpectedCost)
	assert.Equal(t, 15.0, open.RealCost)

	closed := windows[1]
	assert.Equal(t, t0.Add(time.Hour), closed.Start)
	require.NotNil(t, closed.End)
	assert.Equal(t, t0.Add(3*time.Hour), *closed.End)
	assert.Equal(t, 4.0, closed.ExpectedCost)
	assert.Equal(t, 11.0, closed.RealCost)
}

func TestComputeWindowsGapSplitsRun(t *testing.T) {
	samples := hourly("svc", "m", 5, 5, 5)
	samples[2].Timestamp = samples[2].Timestamp.Add(time.Hour)
	samples = append(samples, hourly("other", "m", 9)...)

	windows := ComputeWindows(samples, rules(2), time.Hour)
	require.Len(t, windows, 2)
	assert.Nil(t, windows[0].End, "run touching the last bucket is open")
	require.NotNil(t, windows[1].End)
	assert.Equal(t, 2.0*2, windows[1].ExpectedCost)
}

func TestComputeWindowsWithoutRules(t *testing.T) {
	assert.Empty(t, ComputeWindows(hourly("svc", "m", 10), schema.RuleList{}, time.Hour))
}

func newSource() *Source {
	clk := clock.NewMock()
	clk.Set(t0.Add(10*24*time.Hour + 30*time.Minute))
	return NewWithClock(clk, []Series{{Service: "svc", Metric: "m", Base: 1, Amplitude: 0.5}})
}

func TestUsageIsDeterministicAndHourAligned(t *testing.T) {
	s := newSource()

	a, err := s.Usage(context.Background())
	require.NoError(t, err)
	b, err := s.Usage(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a.Items, defaultHours)
	assert.Equal(t, 3600, a.Interval)
	assert.Equal(t, t0.Add(10*24*time.Hour), a.ToDate)
	assert.Equal(t, 0, a.Items[0].Timestamp.Minute())
}

func TestRulesDriveAlertWindows(t *testing.T) {
	s := newSource()
	ctx := context.Background()

	w, err := s.AlertWindows(ctx)
	require.NoError(t, err)
	assert.Empty(t, w.Items)

	_, err = s.UpsertAlertRule(ctx, schema.AlertRule{Service: "svc", Metric: "m", Threshold: 1.2})
	require.NoError(t, err)
	_, err = s.UpsertAlertRule(ctx, schema.AlertRule{Service: "svc", Metric: "m", Threshold: 1.3})
	require.NoError(t, err)

	list, err := s.AlertRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []schema.AlertRule{{Service: "svc", Metric: "m", Threshold: 1.3}}, list.Items)

	w, err = s.AlertWindows(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, w.Items)
	for _, win := range w.Items {
		assert.Greater(t, win.RealCost, win.ExpectedCost)
	}
}

func TestUpsertValidation(t *testing.T) {
	_, err := newSource().UpsertAlertRule(context.Background(), schema.AlertRule{Metric: "m"})
	assert.Equal(t, cwerr.CodeBadRequest, cwerr.CodeOf(err))
}

func TestPercentilesNearestRank(t *testing.T) {
	assert.Equal(t, 3.0, nearestRank([]float64{1, 2, 3, 4, 5}, 50))
	assert.Equal(t, 5.0, nearestRank([]float64{1, 2, 3, 4, 5}, 95))
	assert.Equal(t, 0.0, nearestRank(nil, 50))

	res, err := newSource().Percentiles(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	p := res.Items[0]
	assert.LessOrEqual(t, p.P50, p.P90)
	assert.LessOrEqual(t, p.P90, p.P95)
	assert.LessOrEqual(t, p.P95, p.PMax)
}

func TestAnomaliesAreSpikes(t *testing.T) {
	res, err := newSource().Anomalies(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.Items)
	for _, a := range res.Items {
		assert.Greater(t, a.ZScore, 0.0)
		assert.Greater(t, a.Diff, 0.0)
	}
	assert.True(t, res.Items[0].Timestamp.After(res.Items[len(res.Items)-1].Timestamp))
}

func TestRegisteredWithRules(t *testing.T) {
	ctor, ok := source.LookupProvider("mock")
	require.True(t, ok)

	p, err := ctor(map[string]any{
		"hours": float64(24),
		"rules": []any{map[string]any{"service": "openai", "metric": "tokens", "threshold": 3.0}},
	})
	require.NoError(t, err)

	list, err := p.AlertRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}
