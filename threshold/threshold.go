// Package threshold proposes alert threshold edits upstream and invalidates the
// datasets that depend on them.
package threshold

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/schema"
)

// RuleWriter creates or updates the rule for (service, metric).
type RuleWriter interface {
	UpsertAlertRule(ctx context.Context, rule schema.AlertRule) (schema.AlertRule, error)
}

// Datasets is the part of the dataset hub the controller needs.
type Datasets interface {
	Invalidate(names ...dataset.Name)
	Version(name dataset.Name) uint64
}

// DefaultWriteTimeout bounds one upstream write, including any limiter wait.
const DefaultWriteTimeout = 30 * time.Second

// Options configures a Controller.
type Options struct {
	// Limiter throttles upstream writes when set.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	// OnWrite is called after every upstream write attempt.
	OnWrite func(err error)
	// WriteTimeout defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
}

type phase int

const (
	pending phase = iota
	confirmed
)

type proposal struct {
	value float64
	phase phase
	seq   uint64
	// rulesVersion is the alert-rules version observed right after the write was
	// followed by invalidation. The proposal is displayed until a fresh snapshot moves
	// past it.
	rulesVersion uint64
}

type written struct {
	rule         schema.AlertRule
	rulesVersion uint64
}

// Controller turns a threshold edit into an upstream write followed by the
// invalidation of alert windows and alert rules.
type Controller struct {
	writer   RuleWriter
	datasets Datasets
	limiter  *rate.Limiter
	log      *slog.Logger
	onWrite  func(error)
	timeout  time.Duration

	group singleflight.Group

	mu        sync.Mutex
	seq       uint64
	proposals map[string]*proposal
	keyLocks  map[string]*sync.Mutex
}

// NewController builds a controller writing through w and invalidating ds.
func NewController(w RuleWriter, ds Datasets, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Controller{
		writer:    w,
		datasets:  ds,
		limiter:   opts.Limiter,
		log:       opts.Logger,
		onWrite:   opts.OnWrite,
		timeout:   opts.WriteTimeout,
		proposals: make(map[string]*proposal),
		keyLocks:  make(map[string]*sync.Mutex),
	}
}

func ruleKey(service, metric string) string {
	return service + "\x00" + metric
}

// Propose validates value, writes it upstream and, only after the write returns,
// invalidates the alert-windows and alert-rules datasets. While the write is in
// flight Displayed reports the proposed value; on failure it reverts to the upstream
// value and the returned error carries a human readable reason.
//
// Proposing the same (service, metric, value) twice yields the same end state.
func (c *Controller) Propose(ctx context.Context, service, metric string, value float64) (schema.AlertRule, error) {
	service = strings.TrimSpace(service)
	metric = strings.TrimSpace(metric)
	if service == "" || metric == "" {
		return schema.AlertRule{}, cwerr.New(cwerr.CodeBadRequest, "service and metric are required", nil)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return schema.AlertRule{}, cwerr.New(cwerr.CodeInvalidThreshold, "threshold must be a finite number", nil)
	}

	key := ruleKey(service, metric)
	seq := c.begin(key, value)

	rule := schema.AlertRule{Service: service, Metric: metric, Threshold: value}
	flightKey := key + "\x00" + strconv.FormatFloat(value, 'g', -1, 64)
	res, err, shared := c.group.Do(flightKey, func() (any, error) {
		// The flight outlives any single caller; joined proposals must not fail
		// because the first caller went away.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		saved, err := c.write(wctx, key, rule)
		if err != nil {
			return nil, err
		}
		c.datasets.Invalidate(dataset.AlertWindows, dataset.AlertRules)
		return written{rule: saved, rulesVersion: c.datasets.Version(dataset.AlertRules)}, nil
	})

	if err != nil {
		c.revert(key, seq)
		c.log.Warn("threshold update failed", "service", service, "metric", metric, "threshold", value, "error", err)
		if _, ok := cwerr.As(err); ok {
			return schema.AlertRule{}, err
		}
		return schema.AlertRule{}, cwerr.New(cwerr.CodeUpstream, "Failed to update threshold", err)
	}

	w := res.(written)
	c.confirm(key, seq, w.rulesVersion)

	c.log.Info("threshold updated", "service", service, "metric", metric, "threshold", value, "shared", shared)
	return w.rule, nil
}

// write serializes upstream writes for one key.
func (c *Controller) write(ctx context.Context, key string, rule schema.AlertRule) (schema.AlertRule, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return schema.AlertRule{}, cwerr.New(cwerr.CodeUnavailable, "threshold update throttled", err)
		}
	}

	saved, err := c.writer.UpsertAlertRule(ctx, rule)
	if c.onWrite != nil {
		c.onWrite(err)
	}
	if err != nil {
		return schema.AlertRule{}, err
	}
	if saved.Service == "" {
		saved = rule
	}
	return saved, nil
}

func (c *Controller) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	return l
}

func (c *Controller) begin(key string, value float64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.proposals[key] = &proposal{value: value, phase: pending, seq: c.seq}
	return c.seq
}

func (c *Controller) revert(key string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.proposals[key]; ok && p.seq == seq {
		delete(c.proposals, key)
	}
}

func (c *Controller) confirm(key string, seq, rulesVersion uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.proposals[key]; ok && p.seq == seq {
		p.phase = confirmed
		p.rulesVersion = rulesVersion
	}
}

// Displayed returns the threshold to show for (service, metric): the optimistic
// value while a proposal is pending, or confirmed but not yet reflected in the
// alert-rules dataset, and the upstream rule otherwise. rulesVersion and stale
// describe the alert-rules snapshot the caller rendered upstream from; a stale
// snapshot may predate the write, so it never retires a confirmed proposal.
func (c *Controller) Displayed(service, metric string, upstream schema.RuleList, rulesVersion uint64, stale bool) (float64, bool) {
	key := ruleKey(service, metric)

	c.mu.Lock()
	p, ok := c.proposals[key]
	if ok && p.phase == confirmed && !stale && rulesVersion > p.rulesVersion {
		delete(c.proposals, key)
		ok = false
	}
	var value float64
	if ok {
		value = p.value
	}
	c.mu.Unlock()

	if ok {
		return value, true
	}
	if r, found := upstream.Find(service, metric); found {
		return r.Threshold, true
	}
	return 0, false
}

// ParseThreshold coerces free text into a threshold. A comma decimal separator is
// accepted ("12,5" is 12.5). Unparsable or non-finite input is rejected instead of
// producing NaN.
func ParseThreshold(text string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if s == "" {
		return 0, cwerr.New(cwerr.CodeInvalidThreshold, "threshold is empty", nil)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, cwerr.New(cwerr.CodeInvalidThreshold, fmt.Sprintf("threshold %q is not a number", text), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, cwerr.New(cwerr.CodeInvalidThreshold, "threshold must be a finite number", nil)
	}
	return v, nil
}
