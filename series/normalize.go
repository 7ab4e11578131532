// Package series turns raw usage samples into timestamp buckets and derives the
// visible time domain of the usage chart.
package series

import (
	"slices"

	"github.com/costwatch/costwatch-dashboard/schema"
)

// Key identifies a series. It is the display name "{service} / {metric}" and is
// not required to be unique across a fetch: samples sharing a key collapse into
// the same series.
type Key string

// KeyOf renders the series key for a (service, metric) pair.
func KeyOf(service, metric string) Key {
	return Key(service + " / " + metric)
}

// Bucket holds every series value observed at one exact timestamp (Unix ms).
type Bucket struct {
	Timestamp int64           `json:"timestamp"`
	Values    map[Key]float64 `json:"values"`
}

// Normalized is the output of Normalize.
type Normalized struct {
	// Buckets are ordered by ascending timestamp.
	Buckets []Bucket
	// Series lists distinct keys in first-seen order.
	Series []Key
}

// Normalize groups samples into one bucket per distinct millisecond timestamp.
//
// No snapping is performed. When two samples share (timestamp, key) the later one
// in input order wins; values are never summed. Samples with a zero timestamp are
// skipped. Empty input yields an empty Normalized, which callers treat as "no data".
func Normalize(samples []schema.UsageRecord) Normalized {
	var out Normalized
	if len(samples) == 0 {
		return out
	}

	index := make(map[int64]int, len(samples))
	seen := make(map[Key]struct{})

	for _, s := range samples {
		if s.Timestamp.IsZero() {
			continue
		}
		key := KeyOf(s.Service, s.Metric)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			out.Series = append(out.Series, key)
		}

		ts := s.Timestamp.UnixMilli()
		i, ok := index[ts]
		if !ok {
			i = len(out.Buckets)
			index[ts] = i
			out.Buckets = append(out.Buckets, Bucket{Timestamp: ts, Values: make(map[Key]float64)})
		}
		out.Buckets[i].Values[key] = s.Cost
	}

	slices.SortStableFunc(out.Buckets, func(a, b Bucket) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}

// Empty reports whether no bucket was produced.
func (n Normalized) Empty() bool {
	return len(n.Buckets) == 0
}

// Timestamps returns the bucket timestamps in consumption order.
func (n Normalized) Timestamps() []int64 {
	ts := make([]int64, len(n.Buckets))
	for i, b := range n.Buckets {
		ts[i] = b.Timestamp
	}
	return ts
}

// MaxValue returns the largest single series value across all buckets, or 0.
func (n Normalized) MaxValue() float64 {
	var m float64
	for _, b := range n.Buckets {
		for _, v := range b.Values {
			m = max(m, v)
		}
	}
	return m
}
