package rowsort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type row struct {
	svc, metric string
	at          time.Time
	tag         int
}

func category(r row) Category { return Category{Service: r.svc, Metric: r.metric} }
func recency(r row) time.Time { return r.at }

func TestByCategoryOrdersServiceThenMetric(t *testing.T) {
	in := []row{{svc: "b", metric: "a"}, {svc: "a", metric: "z"}, {svc: "a", metric: "a"}}

	out := ByCategory(in, category)

	assert.Equal(t, []Category{{"a", "a"}, {"a", "z"}, {"b", "a"}}, []Category{category(out[0]), category(out[1]), category(out[2])})
	assert.Equal(t, "b", in[0].svc, "input must not be reordered")
}

func TestByCategoryIsLocaleAwareAndTotal(t *testing.T) {
	in := []row{{svc: "beta"}, {svc: "Alpha"}, {svc: "alpha"}, {svc: "Élan"}}

	out := ByCategory(in, category)

	names := make([]string, len(out))
	for i, r := range out {
		names[i] = r.svc
	}
	assert.Equal(t, []string{"alpha", "Alpha", "beta", "Élan"}, names)
	assert.NotZero(t, CompareCategory(Category{Service: "alpha"}, Category{Service: "Alpha"}))
}

func TestByCategoryIsStable(t *testing.T) {
	in := []row{{svc: "a", metric: "m", tag: 1}, {svc: "a", metric: "m", tag: 2}}
	out := ByCategory(in, category)
	assert.Equal(t, 1, out[0].tag)
	assert.Equal(t, 2, out[1].tag)
}

func TestByRecencyNewestFirstAndStable(t *testing.T) {
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	in := []row{
		{at: base, tag: 1},
		{at: base.Add(2 * time.Hour), tag: 2},
		{at: base, tag: 3},
		{at: base.Add(time.Hour), tag: 4},
	}

	out := ByRecency(in, recency)

	tags := []int{out[0].tag, out[1].tag, out[2].tag, out[3].tag}
	assert.Equal(t, []int{2, 4, 1, 3}, tags)
	assert.Equal(t, 1, in[0].tag)
}

func TestByRecencyEmpty(t *testing.T) {
	assert.Empty(t, ByRecency[row](nil, recency))
	assert.Empty(t, ByCategory[row](nil, category))
}
