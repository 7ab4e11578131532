// Package mocksource is a deterministic in-memory upstream used for demos and
// tests. It synthesizes hourly usage for a small service catalog, keeps alert rules
// in memory and derives alert windows, anomalies and percentiles from that usage.
package mocksource

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/source"
)

const (
	defaultHours = 7 * 24
	bucket       = time.Hour
	// spikeEvery places a synthetic cost spike every n-th hour of a series.
	spikeEvery = 37
)

// Series describes one synthetic (service, metric) cost curve.
type Series struct {
	Service   string
	Metric    string
	Base      float64
	Amplitude float64
}

// DefaultCatalog is used when no series are configured.
var DefaultCatalog = []Series{
	{Service: "aws.CloudWatch", Metric: "IncomingBytes", Base: 1.2, Amplitude: 0.6},
	{Service: "coingecko", Metric: "btc_eur", Base: 0.4, Amplitude: 0.15},
	{Service: "openai", Metric: "tokens", Base: 2.5, Amplitude: 1.1},
}

// Source implements source.Provider over synthetic data.
type Source struct {
	clk     clock.Clock
	hours   int
	catalog []Series

	mu    sync.RWMutex
	rules []schema.AlertRule
}

var _ source.Provider = (*Source)(nil)

// New builds a Source from provider config:
//
//	hours  length of the usage period in hours, default 168
//	rules  initial thresholds: [{service, metric, threshold}]
func New(config map[string]any) (source.Provider, error) {
	s := NewWithClock(clock.New(), DefaultCatalog)
	if h, ok := config["hours"].(float64); ok && h > 0 {
		s.hours = int(h)
	}
	if h, ok := config["hours"].(int); ok && h > 0 {
		s.hours = h
	}
	if raw, ok := config["rules"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			svc, _ := m["service"].(string)
			metric, _ := m["metric"].(string)
			thr, _ := m["threshold"].(float64)
			if _, err := s.UpsertAlertRule(context.Background(), schema.AlertRule{Service: svc, Metric: metric, Threshold: thr}); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// NewWithClock builds a Source reading "now" from clk.
func NewWithClock(clk clock.Clock, catalog []Series) *Source {
	return &Source{clk: clk, hours: defaultHours, catalog: slices.Clone(catalog)}
}

// period returns the hour-aligned [from, to) range ending at the current hour.
func (s *Source) period() (time.Time, time.Time) {
	to := s.clk.Now().UTC().Truncate(bucket)
	return to.Add(-time.Duration(s.hours) * bucket), to
}

func spike(h int) bool {
	return h > 0 && h%spikeEvery == 0
}

// cost is the synthetic hourly cost of series at hour index h.
func (s Series) cost(h int, at time.Time) float64 {
	hourOfDay := float64(at.Hour())
	v := s.Base + s.Amplitude*math.Sin(2*math.Pi*hourOfDay/24)
	if spike(h) {
		v += 4 * s.Amplitude
	}
	return math.Round(max(v, 0)*10000) / 10000
}

// samples returns every series' hourly samples ordered by series, then time.
func (s *Source) samples() ([]schema.UsageRecord, time.Time, time.Time) {
	from, to := s.period()
	out := make([]schema.UsageRecord, 0, len(s.catalog)*s.hours)
	for _, series := range s.catalog {
		for h := 0; h < s.hours; h++ {
			at := from.Add(time.Duration(h) * bucket)
			out = append(out, schema.UsageRecord{
				Service:   series.Service,
				Metric:    series.Metric,
				Cost:      series.cost(h, at),
				Timestamp: at,
			})
		}
	}
	return out, from, to
}

func (s *Source) Usage(ctx context.Context) (schema.UsageResponse, error) {
	items, from, to := s.samples()
	return schema.UsageResponse{FromDate: from, ToDate: to, Interval: int(bucket / time.Second), Items: items}, nil
}

func (s *Source) Percentiles(ctx context.Context) (schema.PercentilesResponse, error) {
	samples, from, to := s.samples()

	grouped := make(map[[2]string][]float64)
	var order [][2]string
	for _, r := range samples {
		k := [2]string{r.Service, r.Metric}
		if _, ok := grouped[k]; !ok {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], r.Cost)
	}

	items := make([]schema.PercentileRecord, 0, len(order))
	for _, k := range order {
		costs := grouped[k]
		slices.Sort(costs)
		items = append(items, schema.PercentileRecord{
			Service: k[0],
			Metric:  k[1],
			P50:     nearestRank(costs, 50),
			P90:     nearestRank(costs, 90),
			P95:     nearestRank(costs, 95),
			PMax:    costs[len(costs)-1],
		})
	}
	return schema.PercentilesResponse{FromDate: from, ToDate: to, Items: items}, nil
}

// nearestRank returns the p-th percentile of sorted using the nearest-rank method.
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func (s *Source) Anomalies(ctx context.Context) (schema.AnomaliesResponse, error) {
	samples, from, to := s.samples()

	var items []schema.AnomalyRecord
	for start := 0; start < len(samples); start += s.hours {
		series := samples[start : start+s.hours]
		mean, std := stats(series)
		for h := 1; h < len(series); h++ {
			if !spike(h) {
				continue
			}
			r := series[h]
			z := 0.0
			if std > 0 {
				z = (r.Cost - mean) / std
			}
			items = append(items, schema.AnomalyRecord{
				Service:   r.Service,
				Metric:    r.Metric,
				Timestamp: r.Timestamp,
				Sum:       r.Cost,
				Diff:      r.Cost - series[h-1].Cost,
				ZScore:    math.Round(z*100) / 100,
				Cost:      r.Cost,
			})
		}
	}
	slices.SortStableFunc(items, func(a, b schema.AnomalyRecord) int { return b.Timestamp.Compare(a.Timestamp) })
	return schema.AnomaliesResponse{FromDate: from, ToDate: to, Interval: int(bucket / time.Second), Items: items}, nil
}

func stats(rs []schema.UsageRecord) (mean, std float64) {
	if len(rs) == 0 {
		return 0, 0
	}
	for _, r := range rs {
		mean += r.Cost
	}
	mean /= float64(len(rs))
	for _, r := range rs {
		std += (r.Cost - mean) * (r.Cost - mean)
	}
	return mean, math.Sqrt(std / float64(len(rs)))
}

func (s *Source) AlertRules(ctx context.Context) (schema.RuleList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schema.RuleList{Items: slices.Clone(s.rules)}, nil
}

func (s *Source) UpsertAlertRule(ctx context.Context, rule schema.AlertRule) (schema.AlertRule, error) {
	rule.Service = strings.TrimSpace(rule.Service)
	rule.Metric = strings.TrimSpace(rule.Metric)
	if rule.Service == "" || rule.Metric == "" {
		return schema.AlertRule{}, cwerr.New(cwerr.CodeBadRequest, "service and metric are required", nil)
	}
	if math.IsNaN(rule.Threshold) || math.IsInf(rule.Threshold, 0) {
		return schema.AlertRule{}, cwerr.New(cwerr.CodeInvalidThreshold, "threshold must be a finite number", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.Service == rule.Service && r.Metric == rule.Metric {
			s.rules[i] = rule
			return rule, nil
		}
	}
	s.rules = append(s.rules, rule)
	slices.SortFunc(s.rules, func(a, b schema.AlertRule) int {
		return cmp.Or(cmp.Compare(a.Service, b.Service), cmp.Compare(a.Metric, b.Metric))
	})
	return rule, nil
}

func (s *Source) AlertWindows(ctx context.Context) (schema.AlertWindowsResponse, error) {
	rules, _ := s.AlertRules(ctx)
	samples, from, to := s.samples()
	return schema.AlertWindowsResponse{
		FromDate: from,
		ToDate:   to,
		Interval: int(bucket / time.Second),
		Items:    ComputeWindows(samples, rules, bucket),
	}, nil
}

// ComputeWindows returns the contiguous runs of buckets whose cost exceeds the
// series threshold. samples must be ordered by series, then time. ExpectedCost is
// threshold × buckets in the run. A run that reaches the last bucket of its series
// is still ongoing and gets no End. Windows are returned newest first.
func ComputeWindows(samples []schema.UsageRecord, rules schema.RuleList, step time.Duration) []schema.AlertWindow {
	if len(rules.Items) == 0 {
		return nil
	}

	type run struct {
		start, last time.Time
		buckets     int
		real, thr   float64
		svc, metric string
	}

	var (
		windows []schema.AlertWindow
		cur     *run
	)
	flush := func(open bool) {
		if cur == nil {
			return
		}
		w := schema.AlertWindow{
			Service:      cur.svc,
			Metric:       cur.metric,
			Start:        cur.start,
			ExpectedCost: cur.thr * float64(cur.buckets),
			RealCost:     math.Round(cur.real*10000) / 10000,
		}
		if !open {
			end := cur.last.Add(step)
			w.End = &end
		}
		windows = append(windows, w)
		cur = nil
	}

	for i, r := range samples {
		lastOfSeries := i == len(samples)-1 || samples[i+1].Service != r.Service || samples[i+1].Metric != r.Metric
		if cur != nil && (cur.svc != r.Service || cur.metric != r.Metric) {
			flush(false)
		}

		rule, ok := rules.Find(r.Service, r.Metric)
		if !ok || r.Cost <= rule.Threshold {
			flush(false)
			continue
		}

		switch {
		case cur == nil:
			cur = &run{start: r.Timestamp, last: r.Timestamp, buckets: 1, real: r.Cost, thr: rule.Threshold, svc: r.Service, metric: r.Metric}
		case r.Timestamp.Sub(cur.last) == step:
			cur.last = r.Timestamp
			cur.buckets++
			cur.real += r.Cost
		default:
			flush(false)
			cur = &run{start: r.Timestamp, last: r.Timestamp, buckets: 1, real: r.Cost, thr: rule.Threshold, svc: r.Service, metric: r.Metric}
		}

		if lastOfSeries {
			flush(true)
		}
	}
	flush(false)

	slices.SortStableFunc(windows, func(a, b schema.AlertWindow) int { return b.Start.Compare(a.Start) })
	return windows
}

func init() {
	_ = source.RegisterProvider("mock", New)
}
