package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/costwatch/costwatch-dashboard/cwerr"
)

// Entry is the type-erased surface of a Dataset used by the Hub.
type Entry interface {
	Name() Name
	Info() Info
	Version() uint64
	Refresh(ctx context.Context) error
	Invalidate()
	Run(ctx context.Context) error
	bind(notify func(Name))
}

var _ Entry = (*Dataset[struct{}])(nil)

// Hub runs a fixed set of datasets and fans out their change notifications.
type Hub struct {
	log     *slog.Logger
	order   []Name
	entries map[Name]Entry

	mu   sync.Mutex
	subs map[chan Name]struct{}
}

// NewHub wires entries into a hub. Each entry must have a distinct name.
func NewHub(log *slog.Logger, entries ...Entry) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:     log,
		entries: make(map[Name]Entry, len(entries)),
		subs:    make(map[chan Name]struct{}),
	}
	for _, e := range entries {
		h.order = append(h.order, e.Name())
		h.entries[e.Name()] = e
		e.bind(h.publish)
	}
	return h
}

// Run starts every dataset loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range h.order {
		e := h.entries[name]
		g.Go(func() error { return e.Run(ctx) })
	}
	return g.Wait()
}

// RefreshAll fetches every dataset concurrently. A failing dataset never prevents
// the others from refreshing; all failures are returned together.
func (h *Hub) RefreshAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs *multierror.Error
	)
	for _, name := range h.order {
		e := h.entries[name]
		g.Go(func() error {
			if err := e.Refresh(ctx); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", e.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs.ErrorOrNil()
}

// Refresh fetches one dataset now.
func (h *Hub) Refresh(ctx context.Context, name Name) error {
	e, ok := h.entries[name]
	if !ok {
		return cwerr.New(cwerr.CodeNotFound, fmt.Sprintf("unknown dataset %q", name), nil)
	}
	return e.Refresh(ctx)
}

// Invalidate marks the named datasets stale and triggers their refetch.
func (h *Hub) Invalidate(names ...Name) {
	for _, name := range names {
		if e, ok := h.entries[name]; ok {
			e.Invalidate()
			h.log.Debug("dataset invalidated", "dataset", string(name))
		}
	}
}

// Version returns the version of the named dataset, or 0 when unknown.
func (h *Hub) Version(name Name) uint64 {
	if e, ok := h.entries[name]; ok {
		return e.Version()
	}
	return 0
}

// Info returns the status of the named dataset.
func (h *Hub) Info(name Name) (Info, bool) {
	e, ok := h.entries[name]
	if !ok {
		return Info{}, false
	}
	return e.Info(), true
}

// Infos returns the status of every dataset in registration order.
func (h *Hub) Infos() []Info {
	out := make([]Info, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.entries[name].Info())
	}
	return out
}

// Subscribe returns a channel of dataset names that changed. Slow subscribers miss
// notifications rather than blocking refreshes; they should re-read every snapshot
// when woken. The channel closes when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan Name {
	ch := make(chan Name, len(h.order)+1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func (h *Hub) publish(name Name) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- name:
		default:
		}
	}
}
