// Package timer implements the authoritative interval timer state machine.
// A Core is bound to an interval list and derives (interval, remaining) from
// a wall-clock baseline with pause accounting and optional repeat wrap. It
// performs no locking and no I/O; the broker serializes access per session,
// and time is read from an injected clock so tests are deterministic.
package timer

import (
	"github.com/jonboulle/clockwork"

	"github.com/cotimer/server/internal/protocol"
)

// Snapshot is the full internal timer state. The public wire form is the
// first five fields; the rest is the baseline the broker never exposes.
type Snapshot struct {
	Repeat    bool  `json:"repeat"`
	Interval  int   `json:"interval"`
	Remaining int64 `json:"remaining"` // milliseconds
	IsRunning bool  `json:"isRunning"`
	IsPaused  bool  `json:"isPaused"`

	// StartedInterval is the interval index at which the current run began.
	StartedInterval int `json:"startedInterval"`
	// StartedAt is the wall-clock millisecond the current run began, 0 when
	// not running.
	StartedAt int64 `json:"startedAt"`
	// PausedAt is the wall-clock millisecond of the in-flight pause, 0 when
	// not paused.
	PausedAt int64 `json:"pausedAt"`
	// TimePaused accumulates completed pause spans since StartedAt.
	TimePaused int64 `json:"timePaused"`
}

// Public converts the snapshot to its wire form.
func (s Snapshot) Public() protocol.TimerState {
	return protocol.TimerState{
		Repeat:    s.Repeat,
		Interval:  s.Interval,
		Remaining: s.Remaining,
		IsRunning: s.IsRunning,
		IsPaused:  s.IsPaused,
	}
}

// Core is the timer state machine. Every mutation returns a value copy of
// the new state.
type Core struct {
	clock clockwork.Clock
	items []protocol.Interval
	st    Snapshot
}

// New builds a stopped timer bound to items. A nil clock falls back to the
// real clock.
func New(items []protocol.Interval, clock clockwork.Clock) *Core {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Core{clock: clock, items: items}
	c.reset()
	return c
}

func (c *Core) now() int64 {
	return c.clock.Now().UnixMilli()
}

// durationMS returns the millisecond length of the interval at idx. Out of
// range indexes and non-positive durations fall back to the default, which
// also covers the empty list acting as one virtual interval.
func (c *Core) durationMS(idx int) int64 {
	if idx < 0 || idx >= len(c.items) {
		return protocol.DefaultDurationMS
	}
	d := c.items[idx].Duration
	if d <= 0 {
		return protocol.DefaultDurationMS
	}
	return int64(d) * 1000
}

// reset returns to the stopped state on the first interval. Repeat survives.
func (c *Core) reset() {
	c.st = Snapshot{
		Repeat:    c.st.Repeat,
		Remaining: c.durationMS(0),
	}
}

// foldPause folds the in-flight pause span into TimePaused and clears the
// paused flag.
func (c *Core) foldPause(now int64) {
	if c.st.PausedAt > 0 {
		c.st.TimePaused += now - c.st.PausedAt
	}
	c.st.PausedAt = 0
	c.st.IsPaused = false
}

// Start begins or resumes the run. Starting a paused timer folds the pause;
// starting a running timer preserves the baseline; starting a stopped timer
// anchors a fresh baseline at the current interval.
func (c *Core) Start() Snapshot {
	now := c.now()
	if c.st.IsPaused {
		c.foldPause(now)
	} else if !c.st.IsRunning {
		c.st.StartedInterval = c.st.Interval
		c.st.StartedAt = now
		c.st.TimePaused = 0
	}
	c.st.IsRunning = true
	c.st.IsPaused = false
	c.st.PausedAt = 0
	return c.st
}

// Pause stamps the pause start. The timer stays "running" from the client's
// perspective; repeated pauses only re-stamp PausedAt.
func (c *Core) Pause() Snapshot {
	c.st.IsPaused = true
	c.st.PausedAt = c.now()
	return c.st
}

// Stop fully resets the timer to the first interval. Repeat is preserved.
func (c *Core) Stop() Snapshot {
	c.reset()
	return c.st
}

// SetRepeat sets the wrap flag without touching anything else.
func (c *Core) SetRepeat(v bool) Snapshot {
	c.st.Repeat = v
	return c.st
}

// ToggleRepeat flips the wrap flag.
func (c *Core) ToggleRepeat() Snapshot {
	c.st.Repeat = !c.st.Repeat
	return c.st
}

// Next advances to the following interval, wrapping at the end of the list.
// A running timer is re-anchored at the new interval.
func (c *Core) Next() Snapshot {
	mod := len(c.items)
	if mod == 0 {
		mod = 1
	}
	c.st.Interval = (c.st.Interval + 1) % mod
	c.st.Remaining = c.durationMS(c.st.Interval)
	if c.st.IsRunning {
		now := c.now()
		c.st.StartedInterval = c.st.Interval
		c.st.StartedAt = now
		c.st.TimePaused = 0
		if c.st.IsPaused {
			c.st.PausedAt = now
		} else {
			c.st.PausedAt = 0
		}
	}
	return c.st
}

// Resume ends an in-flight pause, excluding the paused span from elapsed
// time. A timer that is not paused is returned unchanged.
func (c *Core) Resume() Snapshot {
	if !c.st.IsPaused {
		return c.st
	}
	c.foldPause(c.now())
	return c.st
}

// Sync is the observe-and-advance step: it converts elapsed wall time minus
// pause accounting into the authoritative (interval, remaining), wrapping
// across intervals. Running past the last interval stops the timer unless
// repeat is set; remaining never goes negative.
func (c *Core) Sync() Snapshot {
	if !c.st.IsRunning || c.st.StartedAt == 0 || len(c.items) == 0 {
		return c.st
	}
	now := c.now()

	var offset int64
	if c.st.IsPaused && c.st.PausedAt > 0 {
		offset = now - c.st.PausedAt
	}
	elapsed := now - c.st.StartedAt - c.st.TimePaused - offset

	cur := c.st.StartedInterval
	if cur < 0 || cur >= len(c.items) {
		cur = 0
	}
	for elapsed >= c.durationMS(cur) {
		elapsed -= c.durationMS(cur)
		cur++
		if cur >= len(c.items) {
			if !c.st.Repeat {
				c.reset()
				return c.st
			}
			cur = 0
		}
	}

	c.st.Interval = cur
	c.st.Remaining = c.durationMS(cur) - elapsed
	return c.st
}

// UpdateIntervals rebinds the interval list, reconciling the running state
// with the new durations. A list truncated below the active index restarts
// on the first interval; a running timer keeps its observed remaining unless
// the new duration is smaller, in which case remaining clamps to the new
// duration and the baseline restarts now.
func (c *Core) UpdateIntervals(items []protocol.Interval) Snapshot {
	c.items = items
	now := c.now()

	if c.st.Interval >= len(items) {
		c.st.Interval = 0
		c.st.StartedInterval = 0
		c.st.Remaining = c.durationMS(0)
		if c.st.StartedAt != 0 {
			c.st.StartedAt = now
			c.st.TimePaused = 0
		}
		if c.st.PausedAt != 0 {
			c.st.PausedAt = now
		}
		return c.st
	}

	if c.st.IsRunning {
		newDur := c.durationMS(c.st.Interval)
		elapsed := now - c.st.StartedAt - c.st.TimePaused
		c.st.StartedAt = now - elapsed
		c.st.StartedInterval = c.st.Interval
		c.st.TimePaused = 0
		if c.st.IsPaused {
			c.st.PausedAt = now
		} else {
			c.st.PausedAt = 0
		}
		if c.st.Remaining > newDur {
			c.st.Remaining = newDur
			c.st.StartedAt = now
		}
		return c.st
	}

	c.st.Remaining = c.durationMS(c.st.Interval)
	return c.st
}

// UpdateState imports a peer's public view and recomputes the baseline so a
// following Sync reproduces the imported (interval, remaining).
func (c *Core) UpdateState(ext protocol.TimerState) Snapshot {
	now := c.now()

	c.st.Repeat = ext.Repeat
	c.st.Interval = ext.Interval
	if n := len(c.items); n > 0 {
		if c.st.Interval < 0 || c.st.Interval >= n {
			c.st.Interval = ((c.st.Interval % n) + n) % n
		}
	} else {
		c.st.Interval = 0
	}
	c.st.Remaining = ext.Remaining
	c.st.IsRunning = ext.IsRunning
	c.st.IsPaused = ext.IsPaused

	elapsed := c.durationMS(c.st.Interval) - c.st.Remaining
	c.st.StartedInterval = c.st.Interval
	if ext.IsRunning {
		c.st.StartedAt = now - elapsed
	} else {
		c.st.StartedAt = 0
	}
	if ext.IsPaused {
		c.st.PausedAt = now
	} else {
		c.st.PausedAt = 0
	}
	c.st.TimePaused = 0
	return c.st
}

// State returns the current snapshot without advancing anything.
func (c *Core) State() Snapshot {
	return c.st
}

// Restore replaces the state wholesale with no re-baselining. Meant for
// tests and initial restoration.
func (c *Core) Restore(s Snapshot) Snapshot {
	c.st = s
	return c.st
}
