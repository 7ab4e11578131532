package schema

import "time"

// UsageRecord is one timestamped cost sample for a (service, metric) pair.
// Samples are immutable once received; a refresh supersedes the whole set.
type UsageRecord struct {
	Service   string    `json:"service"`
	Metric    string    `json:"metric"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}

// PercentileRecord summarizes the cost distribution of one (service, metric) pair.
// It is an independent dataset and is never merged with usage samples.
type PercentileRecord struct {
	Service string  `json:"service"`
	Metric  string  `json:"metric"`
	P50     float64 `json:"p50"`
	P90     float64 `json:"p90"`
	P95     float64 `json:"p95"`
	PMax    float64 `json:"pmax"`
}

// AnomalyRecord is a single timestamp flagged as unusual by the upstream classifier.
// It is a point in time, not a range.
type AnomalyRecord struct {
	Service   string    `json:"service"`
	Metric    string    `json:"metric"`
	Timestamp time.Time `json:"timestamp"`
	Sum       float64   `json:"sum"`
	Diff      float64   `json:"diff"`
	ZScore    float64   `json:"z_score"`
	Cost      float64   `json:"cost"`
}

// UsageResponse is the envelope returned by GET /v1/usage.
type UsageResponse = Envelope[UsageRecord]

// PercentilesResponse is the envelope returned by GET /v1/usage-percentiles.
type PercentilesResponse = Envelope[PercentileRecord]

// AnomaliesResponse is the envelope returned by GET /v1/anomalies.
type AnomaliesResponse = Envelope[AnomalyRecord]
