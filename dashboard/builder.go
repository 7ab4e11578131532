// Package dashboard composes the chart and table view models from the current
// dataset snapshots and a view's highlight state.
package dashboard

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/overlay"
	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/series"
)

// Consistency decides when alert-window overlays may be drawn against usage data.
type Consistency string

const (
	// Relaxed projects whatever alert-window snapshot exists.
	Relaxed Consistency = "relaxed"
	// Strict projects overlays only when the alert-window snapshot is fresh and covers
	// the same period as the usage snapshot.
	Strict Consistency = "strict"
)

// EmptyUsageMessage is shown in place of the chart when usage has no samples.
const EmptyUsageMessage = "No usage data available for the selected period."

// ThresholdDisplay resolves the threshold shown in the percentiles table.
type ThresholdDisplay interface {
	Displayed(service, metric string, upstream schema.RuleList, rulesVersion uint64, stale bool) (float64, bool)
}

// Options configures a Builder.
type Options struct {
	Clock       clock.Clock
	// Location applies to table date-time text. Chart ticks are always UTC.
	Location    *time.Location
	Consistency Consistency
}

// Builder renders view models. It is safe for concurrent use; all state lives in
// the dataset snapshots and the highlight coordinators passed to it.
type Builder struct {
	data       *dataset.Set
	thresholds ThresholdDisplay
	clk        clock.Clock
	loc        *time.Location
	mode       Consistency
}

// NewBuilder returns a Builder over data. thresholds may be nil, in which case the
// alert-rules dataset is shown as is.
func NewBuilder(data *dataset.Set, thresholds ThresholdDisplay, opts Options) *Builder {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Consistency == "" {
		opts.Consistency = Relaxed
	}
	return &Builder{
		data:       data,
		thresholds: thresholds,
		clk:        opts.Clock,
		loc:        opts.Location,
		mode:       opts.Consistency,
	}
}

// frame is the geometry shared by the chart and the alert-window table, so that a
// table row's hover identity always equals its chart span.
type frame struct {
	usage   dataset.Snapshot[schema.UsageResponse]
	windows dataset.Snapshot[schema.AlertWindowsResponse]

	normalized series.Normalized
	domain     series.Domain
	spans      []overlay.Span
	pending    bool
}

func (b *Builder) frame() frame {
	f := frame{
		usage:   b.data.Usage.Snapshot(),
		windows: b.data.AlertWindows.Snapshot(),
	}
	f.normalized = series.Normalize(f.usage.Data.Items)
	f.domain = series.DomainOf(f.normalized.Timestamps(), b.clk)

	if !b.overlaysConsistent(f.usage, f.windows) {
		f.pending = true
		return f
	}
	f.spans = overlay.ProjectWindows(f.windows.Data.Items, f.domain, overlay.WindowOptions{
		HasData: !f.normalized.Empty(),
		ToDate:  f.windows.Data.ToDate,
	})
	return f
}

func (b *Builder) overlaysConsistent(u dataset.Snapshot[schema.UsageResponse], w dataset.Snapshot[schema.AlertWindowsResponse]) bool {
	if b.mode != Strict {
		return true
	}
	if !w.HasData || w.Stale {
		return false
	}
	if !u.HasData {
		return true
	}
	drift := u.Data.ToDate.Sub(w.Data.ToDate)
	if drift < 0 {
		drift = -drift
	}
	return drift <= u.Data.IntervalDuration()
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
