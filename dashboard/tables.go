package dashboard

import (
	"fmt"
	"time"

	"github.com/costwatch/costwatch-dashboard/axis"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/highlight"
	"github.com/costwatch/costwatch-dashboard/rowsort"
)

// Section metadata shared by every table.
type Section struct {
	Error   string `json:"error,omitempty"`
	Loading bool   `json:"loading"`
	Stale   bool   `json:"stale"`
	Version uint64 `json:"version"`
}

func sectionOf[T any](s dataset.Snapshot[T]) Section {
	return Section{
		Error:   errText(s.Err),
		Loading: !s.HasData && (s.Status == dataset.StatusLoading || s.Status == dataset.StatusIdle),
		Stale:   s.Stale,
		Version: s.Version,
	}
}

// AlertWindowRow is one row of the alert-windows table.
type AlertWindowRow struct {
	Service      string     `json:"service"`
	Metric       string     `json:"metric"`
	Start        time.Time  `json:"start"`
	End          *time.Time `json:"end"`
	Ongoing      bool       `json:"ongoing"`
	StartText    string     `json:"start_text"`
	EndText      string     `json:"end_text"`
	Duration     string     `json:"duration"`
	ExpectedCost float64    `json:"expected_cost"`
	RealCost     float64    `json:"real_cost"`
	Diff         float64    `json:"diff"`
	DiffPercent  float64    `json:"diff_percent"`
	ExpectedText string     `json:"expected_text"`
	RealText     string     `json:"real_text"`
	DiffText     string     `json:"diff_text"`
	// Hover is the range to enter on the highlight coordinator; it equals the
	// identity of the row's chart span.
	Hover highlight.Range `json:"hover"`
}

// AlertWindowsTable is the alert-windows table view model.
type AlertWindowsTable struct {
	Section
	Rows []AlertWindowRow `json:"rows"`
}

// AlertWindows renders the alert-windows table, newest first.
func (b *Builder) AlertWindows() AlertWindowsTable {
	return b.alertWindows(b.frame())
}

func (b *Builder) alertWindows(f frame) AlertWindowsTable {
	t := AlertWindowsTable{Section: sectionOf(f.windows)}

	items := f.windows.Data.Items
	spans := f.spans
	if f.pending {
		spans = nil
	}

	rows := make([]AlertWindowRow, len(items))
	for i, w := range items {
		effectiveEnd := f.windows.Data.ToDate
		if w.End != nil {
			effectiveEnd = *w.End
		}
		diff := w.RealCost - w.ExpectedCost
		pct := 0.0
		if w.ExpectedCost > 0 {
			pct = diff / w.ExpectedCost * 100
		}

		row := AlertWindowRow{
			Service:      w.Service,
			Metric:       w.Metric,
			Start:        w.Start,
			End:          w.End,
			Ongoing:      w.Open(),
			StartText:    axis.FormatDateTime(w.Start, b.loc),
			EndText:      "ongoing",
			Duration:     axis.FormatDuration(w.Start, effectiveEnd),
			ExpectedCost: w.ExpectedCost,
			RealCost:     w.RealCost,
			Diff:         diff,
			DiffPercent:  pct,
			ExpectedText: axis.FormatCurrency(w.ExpectedCost),
			RealText:     axis.FormatCurrency(w.RealCost),
			DiffText:     fmt.Sprintf("%s ( %s )", axis.FormatCurrency(diff), axis.FormatPercent(pct)),
		}
		if w.End != nil {
			row.EndText = axis.FormatDateTime(*w.End, b.loc)
		}
		if i < len(spans) {
			row.Hover = spans[i].Range()
		} else {
			row.Hover = highlight.Range{Start: w.Start.UnixMilli(), End: effectiveEnd.UnixMilli()}
		}
		rows[i] = row
	}
	t.Rows = rowsort.ByRecency(rows, func(r AlertWindowRow) time.Time { return r.Start })
	return t
}

// AnomalyRow is one row of the anomalies table.
type AnomalyRow struct {
	Service    string          `json:"service"`
	Metric     string          `json:"metric"`
	Timestamp  time.Time       `json:"timestamp"`
	TimeText   string          `json:"time_text"`
	Cost       float64         `json:"cost"`
	CostText   string          `json:"cost_text"`
	ZScore     float64         `json:"z_score"`
	ZScoreText string          `json:"z_score_text"`
	Hover      highlight.Point `json:"hover"`
}

// AnomaliesTable is the anomalies table view model.
type AnomaliesTable struct {
	Section
	Rows []AnomalyRow `json:"rows"`
}

// Anomalies renders the anomalies table, newest first.
func (b *Builder) Anomalies() AnomaliesTable {
	snap := b.data.Anomalies.Snapshot()
	t := AnomaliesTable{Section: sectionOf(snap)}

	rows := make([]AnomalyRow, len(snap.Data.Items))
	for i, a := range snap.Data.Items {
		rows[i] = AnomalyRow{
			Service:    a.Service,
			Metric:     a.Metric,
			Timestamp:  a.Timestamp,
			TimeText:   axis.FormatDateTime(a.Timestamp, b.loc),
			Cost:       a.Cost,
			CostText:   axis.FormatCurrency(a.Cost),
			ZScore:     a.ZScore,
			ZScoreText: axis.FormatFixed(a.ZScore, 2),
			Hover:      highlight.Point{Timestamp: a.Timestamp.UnixMilli()},
		}
	}
	t.Rows = rowsort.ByRecency(rows, func(r AnomalyRow) time.Time { return r.Timestamp })
	return t
}

// PercentileRow is one row of the percentiles table.
type PercentileRow struct {
	Service  string  `json:"service"`
	Metric   string  `json:"metric"`
	P50      float64 `json:"p50"`
	P90      float64 `json:"p90"`
	P95      float64 `json:"p95"`
	PMax     float64 `json:"pmax"`
	P50Text  string  `json:"p50_text"`
	P90Text  string  `json:"p90_text"`
	P95Text  string  `json:"p95_text"`
	PMaxText string  `json:"pmax_text"`

	Threshold     *float64 `json:"threshold"`
	ThresholdText string   `json:"threshold_text"`
	// Placeholder is suggested in an empty threshold input.
	Placeholder string `json:"placeholder"`
}

// PercentilesTable is the percentiles table view model.
type PercentilesTable struct {
	Section
	RulesError string          `json:"rules_error,omitempty"`
	Rows       []PercentileRow `json:"rows"`
}

// Percentiles renders the percentiles table ordered by service, then metric, with
// the displayed threshold for each row.
func (b *Builder) Percentiles() PercentilesTable {
	snap := b.data.Percentiles.Snapshot()
	rules := b.data.AlertRules.Snapshot()
	t := PercentilesTable{Section: sectionOf(snap), RulesError: errText(rules.Err)}

	rows := make([]PercentileRow, len(snap.Data.Items))
	for i, p := range snap.Data.Items {
		row := PercentileRow{
			Service:     p.Service,
			Metric:      p.Metric,
			P50:         p.P50,
			P90:         p.P90,
			P95:         p.P95,
			PMax:        p.PMax,
			P50Text:     axis.FormatCurrency(p.P50),
			P90Text:     axis.FormatCurrency(p.P90),
			P95Text:     axis.FormatCurrency(p.P95),
			PMaxText:    axis.FormatCurrency(p.PMax),
			Placeholder: axis.FormatFixed(p.P95, 2),
		}

		var (
			v  float64
			ok bool
		)
		if b.thresholds != nil {
			v, ok = b.thresholds.Displayed(p.Service, p.Metric, rules.Data, rules.Version, rules.Stale)
		} else if r, found := rules.Data.Find(p.Service, p.Metric); found {
			v, ok = r.Threshold, true
		}
		if ok {
			row.Threshold = &v
			row.ThresholdText = axis.FormatFixed(v, 2)
		}
		rows[i] = row
	}
	t.Rows = rowsort.ByCategory(rows, func(r PercentileRow) rowsort.Category {
		return rowsort.Category{Service: r.Service, Metric: r.Metric}
	})
	return t
}

// Page is every section of the dashboard.
type Page struct {
	Chart        Chart             `json:"chart"`
	AlertWindows AlertWindowsTable `json:"alert_windows"`
	Anomalies    AnomaliesTable    `json:"anomalies"`
	Percentiles  PercentilesTable  `json:"percentiles"`
	Datasets     []dataset.Info    `json:"datasets"`
}

// Page renders all sections. A failing dataset only affects its own section. The
// chart and the alert-windows table share one frame, so every row hover matches its
// span even when a refresh lands mid-render.
func (b *Builder) Page(hl highlight.Reader) Page {
	f := b.frame()
	return Page{
		Chart:        b.chart(f, hl),
		AlertWindows: b.alertWindows(f),
		Anomalies:    b.Anomalies(),
		Percentiles:  b.Percentiles(),
		Datasets:     b.data.Infos(),
	}
}
