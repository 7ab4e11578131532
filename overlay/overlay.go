// Package overlay projects alert windows and anomaly events onto the usage chart's
// time domain and decides how each overlay is styled under the active highlight.
package overlay

import (
	"time"

	"github.com/costwatch/costwatch-dashboard/highlight"
	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/series"
)

// Opacity values applied to overlays.
const (
	SpanFillOpacity   = 1.0
	SpanStrokeOpacity = 0.4
	MarkerOpacity     = 1.0
	DimmedOpacity     = 0.1
)

// Span is the renderable geometry of one alert window.
type Span struct {
	Service      string  `json:"service"`
	Metric       string  `json:"metric"`
	X1           int64   `json:"x1"`
	X2           int64   `json:"x2"`
	Open         bool    `json:"open"`
	ExpectedCost float64 `json:"expected_cost"`
	RealCost     float64 `json:"real_cost"`
}

// Range is the highlight identity of the span.
func (s Span) Range() highlight.Range {
	return highlight.Range{Start: s.X1, End: s.X2}
}

// Matches reports exact (x1, x2) equality with r.
func (s Span) Matches(r highlight.Range) bool {
	return s.X1 == r.Start && s.X2 == r.End
}

// Marker is the renderable position of one anomaly event.
type Marker struct {
	Service string  `json:"service"`
	Metric  string  `json:"metric"`
	X       int64   `json:"x"`
	ZScore  float64 `json:"z_score"`
	Cost    float64 `json:"cost"`
}

// Point is the highlight identity of the marker.
func (m Marker) Point() highlight.Point {
	return highlight.Point{Timestamp: m.X}
}

// Matches reports exact timestamp equality with p.
func (m Marker) Matches(p highlight.Point) bool {
	return m.X == p.Timestamp
}

// WindowOptions carries what ProjectWindows needs beyond the domain.
type WindowOptions struct {
	// HasData is false when the usage dataset produced no buckets, in which case the
	// domain is the [now-1, now] fallback.
	HasData bool
	// ToDate is the alert-window envelope's to_date.
	ToDate time.Time
}

// OpenEnd returns the right edge used for windows without an end: the current
// domain maximum, or the envelope's to_date when there is no usage data.
func OpenEnd(d series.Domain, opts WindowOptions) int64 {
	if !opts.HasData && !opts.ToDate.IsZero() {
		return opts.ToDate.UnixMilli()
	}
	return d.Max
}

// ProjectWindows maps alert windows to spans. A window with an end spans
// [start, end]; an open window spans [start, OpenEnd]. OpenEnd is evaluated per
// call, so an open window follows the domain as data refreshes. An open window that
// starts past the bound collapses to x2 = x1 but keeps Open set.
func ProjectWindows(windows []schema.AlertWindow, d series.Domain, opts WindowOptions) []Span {
	if len(windows) == 0 {
		return nil
	}
	openEnd := OpenEnd(d, opts)

	spans := make([]Span, 0, len(windows))
	for _, w := range windows {
		s := Span{
			Service:      w.Service,
			Metric:       w.Metric,
			X1:           w.Start.UnixMilli(),
			Open:         w.Open(),
			ExpectedCost: w.ExpectedCost,
			RealCost:     w.RealCost,
		}
		if w.End != nil {
			s.X2 = w.End.UnixMilli()
		} else {
			s.X2 = max(openEnd, s.X1)
		}
		spans = append(spans, s)
	}
	return spans
}

// ProjectAnomalies maps each event to a marker at its timestamp. Markers outside
// the domain are kept and the returned domain is extended to include them, so an
// overflowing marker sits on the domain edge instead of disappearing.
func ProjectAnomalies(events []schema.AnomalyRecord, d series.Domain) ([]Marker, series.Domain) {
	if len(events) == 0 {
		return nil, d
	}
	markers := make([]Marker, 0, len(events))
	for _, e := range events {
		x := e.Timestamp.UnixMilli()
		d = d.Extend(x)
		markers = append(markers, Marker{
			Service: e.Service,
			Metric:  e.Metric,
			X:       x,
			ZScore:  e.ZScore,
			Cost:    e.Cost,
		})
	}
	return markers, d
}

// Fit extends d so that every span lies within it.
func Fit(d series.Domain, spans []Span) series.Domain {
	for _, s := range spans {
		d = d.Extend(s.X1).Extend(s.X2)
	}
	return d
}

// Style is the effective visual weight of one overlay.
type Style struct {
	FillOpacity   float64 `json:"fill_opacity"`
	StrokeOpacity float64 `json:"stroke_opacity"`
	Highlighted   bool    `json:"highlighted"`
}

// StyleSpan dims a span when a range selection is active and does not match it.
func StyleSpan(s Span, sel *highlight.Range) Style {
	if sel == nil {
		return Style{FillOpacity: SpanFillOpacity, StrokeOpacity: SpanStrokeOpacity}
	}
	if s.Matches(*sel) {
		return Style{FillOpacity: SpanFillOpacity, StrokeOpacity: SpanStrokeOpacity, Highlighted: true}
	}
	return Style{FillOpacity: DimmedOpacity, StrokeOpacity: DimmedOpacity}
}

// StyleMarker dims a marker when a point selection is active and does not match it.
func StyleMarker(m Marker, sel *highlight.Point) Style {
	if sel == nil {
		return Style{FillOpacity: MarkerOpacity, StrokeOpacity: MarkerOpacity}
	}
	if m.Matches(*sel) {
		return Style{FillOpacity: MarkerOpacity, StrokeOpacity: MarkerOpacity, Highlighted: true}
	}
	return Style{FillOpacity: DimmedOpacity, StrokeOpacity: DimmedOpacity}
}
