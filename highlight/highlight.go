// Package highlight holds the hover selection shared by the usage chart and the
// overlay tables of one view.
//
// There are two channels: a range channel (alert windows) and a point channel
// (anomalies). At most one of them is active at a time. Tables write through
// Writer; the chart reads through Reader.
package highlight

import (
	"context"
	"sync"
)

// Range identifies an alert window by its projected (x1, x2) in Unix ms.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Point identifies an anomaly by its timestamp in Unix ms.
type Point struct {
	Timestamp int64 `json:"timestamp"`
}

// State is an immutable snapshot of both channels.
type State struct {
	Range   *Range `json:"range,omitempty"`
	Point   *Point `json:"point,omitempty"`
	Version uint64 `json:"version"`
}

// Idle reports whether neither channel is active.
func (s State) Idle() bool {
	return s.Range == nil && s.Point == nil
}

// Reader is the chart's view of the coordinator.
type Reader interface {
	State() State
	Watch(ctx context.Context) <-chan State
}

// Writer is the tables' view of the coordinator.
type Writer interface {
	EnterRange(r Range)
	LeaveRange(r Range)
	ClearRange()
	EnterPoint(p Point)
	LeavePoint(p Point)
	ClearPoint()
}

// Coordinator owns the highlight state of one view.
type Coordinator struct {
	mu       sync.Mutex
	state    State
	watchers map[chan State]struct{}
}

var (
	_ Reader = (*Coordinator)(nil)
	_ Writer = (*Coordinator)(nil)
)

// NewCoordinator returns a coordinator with both channels idle.
func NewCoordinator() *Coordinator {
	return &Coordinator{watchers: make(map[chan State]struct{})}
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EnterRange makes r the active range, replacing any previous range and clearing
// the point channel.
func (c *Coordinator) EnterRange(r Range) {
	c.update(func(s *State) bool {
		s.Range = &r
		s.Point = nil
		return true
	})
}

// LeaveRange clears the range channel only if r is the active range. A stale leave
// from a row that is no longer highlighted is ignored.
func (c *Coordinator) LeaveRange(r Range) {
	c.update(func(s *State) bool {
		if s.Range == nil || *s.Range != r {
			return false
		}
		s.Range = nil
		return true
	})
}

// ClearRange clears the range channel unconditionally.
func (c *Coordinator) ClearRange() {
	c.update(func(s *State) bool {
		if s.Range == nil {
			return false
		}
		s.Range = nil
		return true
	})
}

// EnterPoint makes p the active point, replacing any previous point and clearing
// the range channel.
func (c *Coordinator) EnterPoint(p Point) {
	c.update(func(s *State) bool {
		s.Point = &p
		s.Range = nil
		return true
	})
}

// LeavePoint clears the point channel only if p is the active point.
func (c *Coordinator) LeavePoint(p Point) {
	c.update(func(s *State) bool {
		if s.Point == nil || *s.Point != p {
			return false
		}
		s.Point = nil
		return true
	})
}

// ClearPoint clears the point channel unconditionally.
func (c *Coordinator) ClearPoint() {
	c.update(func(s *State) bool {
		if s.Point == nil {
			return false
		}
		s.Point = nil
		return true
	})
}

// Reset clears both channels. Used when the owning view is disposed.
func (c *Coordinator) Reset() {
	c.update(func(s *State) bool {
		if s.Idle() {
			return false
		}
		s.Range, s.Point = nil, nil
		return true
	})
}

// Watch returns a channel that receives the latest state after every change. The
// channel holds at most one pending state; a slow reader only ever sees the newest
// snapshot. The channel is closed when ctx is done.
func (c *Coordinator) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.watchers, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

func (c *Coordinator) update(fn func(s *State) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state
	if !fn(&next) {
		return
	}
	next.Version++
	c.state = next

	for ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
