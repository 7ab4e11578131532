// Package rowsort orders table rows. Every function returns a new slice and leaves
// its input untouched; ties keep their input order.
package rowsort

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Category is the (service, metric) sort key of a row.
type Category struct {
	Service string
	Metric  string
}

// CompareRecency orders a before b when a is more recent.
func CompareRecency(a, b time.Time) int {
	return b.Compare(a)
}

// ByRecency sorts rows by descending at(row).
func ByRecency[T any](rows []T, at func(T) time.Time) []T {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b T) int {
		return CompareRecency(at(a), at(b))
	})
	return out
}

// Comparator compares categories with English collation and falls back to byte
// order so that distinct strings never compare equal. A Comparator is not safe for
// concurrent use.
type Comparator struct {
	col *collate.Collator
}

// NewComparator returns a Comparator for English.
func NewComparator() *Comparator {
	return &Comparator{col: collate.New(language.English)}
}

func (c *Comparator) compareString(a, b string) int {
	if r := c.col.CompareString(a, b); r != 0 {
		return r
	}
	return strings.Compare(a, b)
}

// Compare orders by service, then metric.
func (c *Comparator) Compare(a, b Category) int {
	if r := c.compareString(a.Service, b.Service); r != 0 {
		return r
	}
	return c.compareString(a.Metric, b.Metric)
}

// CompareCategory orders a and b by service, then metric.
func CompareCategory(a, b Category) int {
	return NewComparator().Compare(a, b)
}

// ByCategory sorts rows by ascending key(row).
func ByCategory[T any](rows []T, key func(T) Category) []T {
	out := slices.Clone(rows)
	c := NewComparator()
	slices.SortStableFunc(out, func(a, b T) int {
		return c.Compare(key(a), key(b))
	})
	return out
}
