package dataset

import (
	"context"
	"time"

	"github.com/costwatch/costwatch-dashboard/schema"
)

// Source fetches the raw datasets.
type Source interface {
	Usage(ctx context.Context) (schema.UsageResponse, error)
	Percentiles(ctx context.Context) (schema.PercentilesResponse, error)
	AlertWindows(ctx context.Context) (schema.AlertWindowsResponse, error)
	Anomalies(ctx context.Context) (schema.AnomaliesResponse, error)
	AlertRules(ctx context.Context) (schema.RuleList, error)
}

// Intervals holds the refresh interval of each dataset.
type Intervals map[Name]time.Duration

// DefaultIntervals returns 30s for the primary datasets and 10s for alert rules.
func DefaultIntervals() Intervals {
	return Intervals{
		Usage:        30 * time.Second,
		Percentiles:  30 * time.Second,
		AlertWindows: 30 * time.Second,
		Anomalies:    30 * time.Second,
		AlertRules:   10 * time.Second,
	}
}

// Set is the typed collection of dashboard datasets behind one Hub.
type Set struct {
	*Hub

	Usage        *Dataset[schema.UsageResponse]
	Percentiles  *Dataset[schema.PercentilesResponse]
	AlertWindows *Dataset[schema.AlertWindowsResponse]
	Anomalies    *Dataset[schema.AnomaliesResponse]
	AlertRules   *Dataset[schema.RuleList]
}

// NewSet builds one dataset per Source method. Intervals missing from intervals
// fall back to DefaultIntervals.
func NewSet(src Source, intervals Intervals, opts Options) *Set {
	defaults := DefaultIntervals()
	with := func(name Name) Options {
		o := opts
		o.Interval = defaults[name]
		if d, ok := intervals[name]; ok && d > 0 {
			o.Interval = d
		}
		return o
	}

	s := &Set{
		Usage:        New(Usage, src.Usage, with(Usage)),
		Percentiles:  New(Percentiles, src.Percentiles, with(Percentiles)),
		AlertWindows: New(AlertWindows, src.AlertWindows, with(AlertWindows)),
		Anomalies:    New(Anomalies, src.Anomalies, with(Anomalies)),
		AlertRules:   New(AlertRules, src.AlertRules, with(AlertRules)),
	}
	s.Hub = NewHub(opts.Logger, s.Usage, s.Percentiles, s.AlertWindows, s.Anomalies, s.AlertRules)
	return s
}
