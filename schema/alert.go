package schema

import "time"

// AlertRule is a per-hour cost threshold for a (service, metric) pair.
// The upstream rule store owns rules; the dashboard only reads them and proposes
// upserts. There is at most one threshold per (service, metric).
type AlertRule struct {
	Service   string  `json:"service"`
	Metric    string  `json:"metric"`
	Threshold float64 `json:"threshold"`
}

// RuleList is the body of GET /v1/alert-rules.
type RuleList struct {
	Items []AlertRule `json:"items"`
}

// Find returns the rule for (service, metric), if any.
func (l RuleList) Find(service, metric string) (AlertRule, bool) {
	for _, r := range l.Items {
		if r.Service == service && r.Metric == metric {
			return r, true
		}
	}
	return AlertRule{}, false
}

// AlertWindow is a contiguous interval where realized cost exceeded the threshold.
type AlertWindow struct {
	Service string    `json:"service"`
	Metric  string    `json:"metric"`
	Start   time.Time `json:"start"`

	// End is nil while the window is still open at fetch time ("ongoing").
	// An open window is neither zero-length nor in the past.
	End *time.Time `json:"end"`

	ExpectedCost float64 `json:"expected_cost"`
	RealCost     float64 `json:"real_cost"`
}

// Open reports whether the window had no end at fetch time.
func (w AlertWindow) Open() bool {
	return w.End == nil
}

// AlertWindowsResponse is the envelope returned by GET /v1/alert-windows.
type AlertWindowsResponse = Envelope[AlertWindow]
