package schema

import "time"

// Envelope is the shape shared by every upstream query endpoint.
//
// Example:
//
//	{
//	  "from_date": "2025-09-01T00:00:00Z",
//	  "to_date": "2025-09-29T00:00:00Z",
//	  "interval": 3600,
//	  "items": [...]
//	}
//
// The dashboard consumes Items. FromDate, ToDate and Interval are opaque metadata,
// except that ToDate bounds open alert windows when no usage buckets exist.
type Envelope[T any] struct {
	FromDate time.Time `json:"from_date"`
	ToDate   time.Time `json:"to_date"`
	Interval int       `json:"interval"` // in seconds
	Items    []T       `json:"items"`
}

// Len reports the number of items.
func (e Envelope[T]) Len() int {
	return len(e.Items)
}

// IntervalDuration converts Interval to a time.Duration.
func (e Envelope[T]) IntervalDuration() time.Duration {
	return time.Duration(e.Interval) * time.Second
}
