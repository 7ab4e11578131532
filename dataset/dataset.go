// Package dataset keeps the latest snapshot of each upstream dataset and refreshes
// them on independent schedules.
package dataset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// Name identifies a dataset.
type Name string

// Datasets consumed by the dashboard.
const (
	Usage        Name = "usage"
	Percentiles  Name = "percentiles"
	AlertWindows Name = "alert-windows"
	Anomalies    Name = "anomalies"
	AlertRules   Name = "alert-rules"
)

// Names lists every dataset in display order.
var Names = []Name{Usage, Percentiles, AlertWindows, Anomalies, AlertRules}

// Status is the lifecycle state of a dataset.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Snapshot is an immutable view of a dataset. Data is the last successfully fetched
// value; it survives later failures so callers can keep rendering it next to Err.
type Snapshot[T any] struct {
	Data      T
	HasData   bool
	Status    Status
	Err       error
	Version   uint64
	Stale     bool
	FetchedAt time.Time
}

// Info is the type-erased status of a dataset.
type Info struct {
	Name      Name      `json:"name"`
	Status    Status    `json:"status"`
	Version   uint64    `json:"version"`
	Stale     bool      `json:"stale"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Interval  int64     `json:"interval_ms"`
}

// FetchFunc retrieves a fresh copy of a dataset.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options configures a Dataset.
type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
	// Observe is called after every fetch attempt.
	Observe func(name Name, took time.Duration, err error)
}

// Dataset owns one upstream dataset.
type Dataset[T any] struct {
	name     Name
	fetch    FetchFunc[T]
	interval time.Duration
	clk      clock.Clock
	log      *slog.Logger
	observe  func(Name, time.Duration, error)

	fetchMu sync.Mutex
	snap    *atomic.Pointer[Snapshot[T]]
	version *atomic.Uint64
	gen     *atomic.Uint64
	kick    chan struct{}

	notifyMu sync.RWMutex
	notify   func(Name)
}

// New creates an idle dataset.
func New[T any](name Name, fetch FetchFunc[T], opts Options) *Dataset[T] {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dataset[T]{
		name:     name,
		fetch:    fetch,
		interval: opts.Interval,
		clk:      opts.Clock,
		log:      opts.Logger.With("dataset", string(name)),
		observe:  opts.Observe,
		snap:     atomic.NewPointer(&Snapshot[T]{Status: StatusIdle}),
		version:  atomic.NewUint64(0),
		gen:      atomic.NewUint64(0),
		kick:     make(chan struct{}, 1),
	}
	return d
}

// Name returns the dataset name.
func (d *Dataset[T]) Name() Name { return d.name }

// Snapshot returns the current snapshot.
func (d *Dataset[T]) Snapshot() Snapshot[T] {
	return *d.snap.Load()
}

// Version returns the number of successful fetches so far.
func (d *Dataset[T]) Version() uint64 {
	return d.version.Load()
}

// Info returns the type-erased status.
func (d *Dataset[T]) Info() Info {
	s := d.Snapshot()
	info := Info{
		Name:      d.name,
		Status:    s.Status,
		Version:   s.Version,
		Stale:     s.Stale,
		FetchedAt: s.FetchedAt,
		Interval:  d.interval.Milliseconds(),
	}
	if s.Err != nil {
		info.Error = s.Err.Error()
	}
	return info
}

// Refresh fetches the dataset now. Concurrent calls are serialized. On failure the
// previous data is kept and the error is attached to the snapshot.
func (d *Dataset[T]) Refresh(ctx context.Context) error {
	d.fetchMu.Lock()
	defer d.fetchMu.Unlock()

	gen := d.gen.Load()
	d.swap(func(s *Snapshot[T]) { s.Status = StatusLoading })

	start := d.clk.Now()
	data, err := d.fetch(ctx)
	took := d.clk.Since(start)
	if d.observe != nil {
		d.observe(d.name, took, err)
	}

	if err != nil {
		d.log.Warn("dataset fetch failed", "error", err, "took", took)
		d.swap(func(s *Snapshot[T]) {
			s.Status = StatusFailed
			s.Err = err
		})
		d.emit()
		return err
	}

	v := d.version.Inc()
	d.swap(func(s *Snapshot[T]) {
		s.Data = data
		s.HasData = true
		s.Status = StatusReady
		s.Err = nil
		s.Version = v
		// An invalidation that arrived mid-fetch may predate this data.
		s.Stale = d.gen.Load() != gen
		s.FetchedAt = d.clk.Now()
	})
	d.log.Debug("dataset refreshed", "version", v, "took", took)
	d.emit()
	return nil
}

// Invalidate marks the current data stale and schedules an immediate refetch.
func (d *Dataset[T]) Invalidate() {
	d.gen.Inc()
	d.swap(func(s *Snapshot[T]) { s.Stale = true })
	select {
	case d.kick <- struct{}{}:
	default:
	}
	d.emit()
}

// Run fetches once, then on every interval tick or invalidation until ctx is done.
// Fetch errors never stop the loop.
func (d *Dataset[T]) Run(ctx context.Context) error {
	_ = d.Refresh(ctx)

	var tick <-chan time.Time
	if d.interval > 0 {
		ticker := d.clk.Ticker(d.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case <-d.kick:
		}
		_ = d.Refresh(ctx)
	}
}

func (d *Dataset[T]) swap(fn func(s *Snapshot[T])) {
	for {
		old := d.snap.Load()
		next := *old
		fn(&next)
		if d.snap.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (d *Dataset[T]) bind(notify func(Name)) {
	d.notifyMu.Lock()
	d.notify = notify
	d.notifyMu.Unlock()
}

func (d *Dataset[T]) emit() {
	d.notifyMu.RLock()
	notify := d.notify
	d.notifyMu.RUnlock()
	if notify != nil {
		notify(d.name)
	}
}
