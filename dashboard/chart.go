package dashboard

import (
	"github.com/costwatch/costwatch-dashboard/axis"
	"github.com/costwatch/costwatch-dashboard/highlight"
	"github.com/costwatch/costwatch-dashboard/overlay"
	"github.com/costwatch/costwatch-dashboard/series"
)

// StyledSpan is an alert-window span with its effective style.
type StyledSpan struct {
	overlay.Span
	Style overlay.Style `json:"style"`
}

// StyledMarker is an anomaly marker with its effective style.
type StyledMarker struct {
	overlay.Marker
	Style overlay.Style `json:"style"`
}

// Chart is the usage chart view model.
type Chart struct {
	Domain  series.Domain   `json:"domain"`
	Series  []series.Key    `json:"series"`
	Buckets []series.Bucket `json:"buckets"`
	XTicks  []axis.XTick    `json:"x_ticks"`
	YTicks  []axis.YTick    `json:"y_ticks"`
	Spans   []StyledSpan    `json:"spans"`
	Markers []StyledMarker  `json:"markers"`

	// Empty is set when usage has no samples; Message then replaces the chart.
	Empty   bool   `json:"empty"`
	Message string `json:"message,omitempty"`

	// OverlaysPending is set in strict mode while alert windows lag usage.
	OverlaysPending bool            `json:"overlays_pending"`
	Highlight       highlight.State `json:"highlight"`

	Error         string `json:"error,omitempty"`
	OverlayError  string `json:"overlay_error,omitempty"`
	AnomalyError  string `json:"anomaly_error,omitempty"`
	Stale         bool   `json:"stale"`
	UsageVersion  uint64 `json:"usage_version"`
	WindowVersion uint64 `json:"alert_windows_version"`
}

// Chart renders the usage chart for a view whose highlight is read from hl.
func (b *Builder) Chart(hl highlight.Reader) Chart {
	return b.chart(b.frame(), hl)
}

func (b *Builder) chart(f frame, hl highlight.Reader) Chart {
	anomalies := b.data.Anomalies.Snapshot()
	state := hl.State()

	c := Chart{
		Series:          f.normalized.Series,
		Buckets:         f.normalized.Buckets,
		XTicks:          axis.XTicks(f.normalized.Timestamps()),
		YTicks:          axis.YTicks(f.normalized.MaxValue(), axis.DefaultYTickCount),
		OverlaysPending: f.pending,
		Highlight:       state,
		Error:           errText(f.usage.Err),
		OverlayError:    errText(f.windows.Err),
		AnomalyError:    errText(anomalies.Err),
		Stale:           f.usage.Stale,
		UsageVersion:    f.usage.Version,
		WindowVersion:   f.windows.Version,
	}
	if f.normalized.Empty() {
		c.Empty = true
		c.Message = EmptyUsageMessage
	}

	domain := overlay.Fit(f.domain, f.spans)
	markers, domain := overlay.ProjectAnomalies(anomalies.Data.Items, domain)
	c.Domain = domain

	c.Spans = make([]StyledSpan, len(f.spans))
	for i, s := range f.spans {
		c.Spans[i] = StyledSpan{Span: s, Style: overlay.StyleSpan(s, state.Range)}
	}
	c.Markers = make([]StyledMarker, len(markers))
	for i, m := range markers {
		c.Markers[i] = StyledMarker{Marker: m, Style: overlay.StyleMarker(m, state.Point)}
	}
	return c
}
