package series

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Domain is the inclusive [Min, Max] time range of the chart, in Unix ms.
type Domain struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// DomainOf returns [min, max] over timestamps.
//
// With no timestamps it falls back to [now-1, now] so the axis renderer always
// receives a valid, non-empty range. Wall-clock time is read only in that case.
func DomainOf(timestamps []int64, clk clock.Clock) Domain {
	if len(timestamps) == 0 {
		now := clk.Now().UnixMilli()
		return Domain{Min: now - 1, Max: now}
	}
	d := Domain{Min: timestamps[0], Max: timestamps[0]}
	for _, ts := range timestamps[1:] {
		d.Min = min(d.Min, ts)
		d.Max = max(d.Max, ts)
	}
	return d
}

// Extend grows the domain so that it contains x.
func (d Domain) Extend(x int64) Domain {
	return Domain{Min: min(d.Min, x), Max: max(d.Max, x)}
}

// Contains reports whether x lies within the domain.
func (d Domain) Contains(x int64) bool {
	return x >= d.Min && x <= d.Max
}

// MinTime and MaxTime convert the bounds back to UTC instants.
func (d Domain) MinTime() time.Time { return time.UnixMilli(d.Min).UTC() }
func (d Domain) MaxTime() time.Time { return time.UnixMilli(d.Max).UTC() }
