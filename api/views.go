package api

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/costwatch/costwatch-dashboard/highlight"
)

// View is one open dashboard. It owns the highlight state shared by its chart and
// tables.
type View struct {
	ID        string
	Highlight *highlight.Coordinator
	CreatedAt time.Time

	lastSeen time.Time
}

// Views tracks open views and expires them after an idle TTL.
type Views struct {
	clk      clock.Clock
	ttl      time.Duration
	onChange func(n int)

	mu    sync.Mutex
	items map[string]*View
}

// NewViews returns an empty registry. onChange, when set, receives the live view
// count after every change.
func NewViews(clk clock.Clock, ttl time.Duration, onChange func(n int)) *Views {
	if clk == nil {
		clk = clock.New()
	}
	return &Views{clk: clk, ttl: ttl, onChange: onChange, items: make(map[string]*View)}
}

// Create registers a new view with an idle highlight.
func (v *Views) Create() *View {
	now := v.clk.Now()
	view := &View{
		ID:        uuid.NewString(),
		Highlight: highlight.NewCoordinator(),
		CreatedAt: now,
		lastSeen:  now,
	}
	v.mu.Lock()
	v.items[view.ID] = view
	n := len(v.items)
	v.mu.Unlock()
	v.changed(n)
	return view
}

// Get returns a live view and refreshes its idle timer.
func (v *Views) Get(id string) (*View, bool) {
	now := v.clk.Now()
	v.mu.Lock()
	view, ok := v.items[id]
	if ok && v.expired(view, now) {
		delete(v.items, id)
		n := len(v.items)
		v.mu.Unlock()
		view.Highlight.Reset()
		v.changed(n)
		return nil, false
	}
	if ok {
		view.lastSeen = now
	}
	v.mu.Unlock()
	return view, ok
}

// ExpiresAt reports when the view expires if left idle.
func (v *Views) ExpiresAt(view *View) time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return view.lastSeen.Add(v.ttl)
}

// Delete removes a view and clears its highlight.
func (v *Views) Delete(id string) bool {
	v.mu.Lock()
	view, ok := v.items[id]
	delete(v.items, id)
	n := len(v.items)
	v.mu.Unlock()
	if !ok {
		return false
	}
	view.Highlight.Reset()
	v.changed(n)
	return true
}

// Len returns the number of live views.
func (v *Views) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.items)
}

// Sweep drops expired views and returns how many were removed.
func (v *Views) Sweep() int {
	now := v.clk.Now()
	var gone []*View

	v.mu.Lock()
	for id, view := range v.items {
		if v.expired(view, now) {
			gone = append(gone, view)
			delete(v.items, id)
		}
	}
	n := len(v.items)
	v.mu.Unlock()

	for _, view := range gone {
		view.Highlight.Reset()
	}
	if len(gone) > 0 {
		v.changed(n)
	}
	return len(gone)
}

// Run sweeps expired views until ctx is done.
func (v *Views) Run(ctx context.Context) error {
	if v.ttl <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := v.clk.Ticker(max(v.ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v.Sweep()
		}
	}
}

func (v *Views) expired(view *View, now time.Time) bool {
	return v.ttl > 0 && now.Sub(view.lastSeen) > v.ttl
}

func (v *Views) changed(n int) {
	if v.onChange != nil {
		v.onChange(n)
	}
}
