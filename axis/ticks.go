// Package axis produces tick positions and labels for the usage chart, plus the
// value formatting shared by the chart and the tables.
package axis

import (
	"math"
	"time"
)

// DefaultYTickCount is the number of Y ticks the chart requests.
const DefaultYTickCount = 5

// XTick is a labelled position on the time axis.
type XTick struct {
	At    int64  `json:"at"`
	Label string `json:"label"`
}

// YTick is a labelled position on the value axis.
type YTick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// edge reports whether idx is the first or last of count positions. Edge labels
// are suppressed because the renderer clips them.
func edge(idx, count int) bool {
	return idx == 0 || idx == count-1
}

// XLabel returns the label for the time tick at position idx of count. Only interior
// ticks falling exactly on a UTC day boundary (00:00) are labelled, whatever zone the
// tables render in.
func XLabel(ts int64, idx, count int) string {
	if edge(idx, count) {
		return ""
	}
	t := time.UnixMilli(ts).UTC()
	if t.Hour() != 0 || t.Minute() != 0 {
		return ""
	}
	return FormatDate(t, time.UTC)
}

// XTicks labels every position. Positions are expected in ascending order.
func XTicks(positions []int64) []XTick {
	ticks := make([]XTick, len(positions))
	for i, ts := range positions {
		ticks[i] = XTick{At: ts, Label: XLabel(ts, i, len(positions))}
	}
	return ticks
}

// YLabel returns the currency label for the value tick at position idx of count.
func YLabel(v float64, idx, count int) string {
	if edge(idx, count) {
		return ""
	}
	return FormatCurrency(v)
}

// YTicks returns count evenly spaced values from 0 up to a rounded-up maximum that
// covers maxValue.
func YTicks(maxValue float64, count int) []YTick {
	if count < 2 {
		count = 2
	}
	step := niceStep(maxValue / float64(count-1))

	ticks := make([]YTick, count)
	for i := range ticks {
		v := step * float64(i)
		ticks[i] = YTick{Value: v, Label: YLabel(v, i, count)}
	}
	return ticks
}

// niceStep rounds raw up to 1, 2, 2.5 or 5 times a power of ten.
func niceStep(raw float64) float64 {
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, f := range []float64{1, 2, 2.5, 5, 10} {
		if f*mag >= raw {
			return f * mag
		}
	}
	return 10 * mag
}
