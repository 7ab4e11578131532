package api

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwatch/costwatch-dashboard/highlight"
)

func TestViewsSweepResetsHighlight(t *testing.T) {
	clk := clock.NewMock()
	var counts []int
	views := NewViews(clk, time.Minute, func(n int) { counts = append(counts, n) })

	stale := views.Create()
	stale.Highlight.EnterRange(highlight.Range{Start: 1, End: 2})

	clk.Add(45 * time.Second)
	fresh := views.Create()

	clk.Add(30 * time.Second)
	assert.Equal(t, 1, views.Sweep())
	assert.True(t, stale.Highlight.State().Idle())

	_, ok := views.Get(fresh.ID)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestViewsDeleteUnknown(t *testing.T) {
	views := NewViews(clock.NewMock(), time.Minute, nil)
	assert.False(t, views.Delete("missing"))
}

func TestViewsRunSweepsOnTicker(t *testing.T) {
	clk := clock.NewMock()
	views := NewViews(clk, 2*time.Second, nil)
	views.Create()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = views.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		return views.Len() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}
