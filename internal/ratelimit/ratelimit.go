// Package ratelimit paces requests to the remote platform and adapts
// to floodwait pressure (spec §4.4). Pacing itself is delegated to
// golang.org/x/time/rate; the floodwait reaction policy (slowdown,
// speedup, rolling window) sits on top of it.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the tunables from spec §4.4 / §6.
type Config struct {
	BatchDelay        time.Duration
	MinBatchDelay     time.Duration
	MaxBatchDelay     time.Duration
	Adaptive          bool
	ConsecutiveThreshold int           // floodwaits within Window that trigger a slowdown
	Window            time.Duration
	SlowdownFactor    float64
	SpeedupFactor     float64
	SpeedupInterval   time.Duration
}

// DefaultConfig mirrors the defaults named in spec §4.4/§6.
func DefaultConfig() Config {
	return Config{
		BatchDelay:           time.Second,
		MinBatchDelay:        100 * time.Millisecond,
		MaxBatchDelay:        30 * time.Second,
		Adaptive:             true,
		ConsecutiveThreshold: 2,
		Window:               60 * time.Second,
		SlowdownFactor:       1.5,
		SpeedupFactor:        0.9,
		SpeedupInterval:      5 * time.Minute,
	}
}

// Limiter enforces a minimum inter-request spacing and reacts to
// floodwait events by slowing down or speeding up that spacing.
// All mutation happens on the main loop (spec §5); the mutex exists
// only so tests and any future concurrent caller don't race.
type Limiter struct {
	mu sync.Mutex

	cfg Config
	rl  *rate.Limiter

	requestCount     int
	floodWaitCount   int
	totalWaitSeconds int
	lastFloodWait    time.Time
	window           []time.Time

	now func() time.Time
}

// New builds a Limiter paced at cfg.BatchDelay.
func New(cfg Config) *Limiter {
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg Config, now func() time.Time) *Limiter {
	l := &Limiter{cfg: cfg, now: now}
	l.rl = rate.NewLimiter(rate.Every(cfg.BatchDelay), 1)
	return l
}

// BatchDelay returns the current inter-request spacing.
func (l *Limiter) BatchDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.BatchDelay
}

// Acquire cooperatively waits until the minimum spacing has elapsed,
// then checks whether a speed-up is due (spec §4.4).
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.rl.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.requestCount++
	l.maybeSpeedUpLocked()
	l.mu.Unlock()
	return nil
}

// RecordFloodWait records a remote floodwait and, in adaptive mode,
// slows the limiter down once enough floodwaits land inside the
// rolling window (spec §4.4).
func (l *Limiter) RecordFloodWait(seconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.floodWaitCount++
	l.totalWaitSeconds += seconds
	l.lastFloodWait = now
	l.window = append(l.window, now)

	if !l.cfg.Adaptive {
		return
	}

	cutoff := now.Add(-l.cfg.Window)
	recent := l.window[:0]
	for _, ts := range l.window {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	l.window = recent

	if len(l.window) >= l.cfg.ConsecutiveThreshold {
		newDelay := time.Duration(float64(l.cfg.BatchDelay) * l.cfg.SlowdownFactor)
		if newDelay > l.cfg.MaxBatchDelay {
			newDelay = l.cfg.MaxBatchDelay
		}
		l.setDelayLocked(newDelay, "floodwait_slowdown")
		l.window = nil // clear to avoid double-penalising
	}
}

// maybeSpeedUpLocked applies the speed-up rule; caller holds l.mu.
func (l *Limiter) maybeSpeedUpLocked() {
	if !l.cfg.Adaptive || l.lastFloodWait.IsZero() {
		return
	}
	if l.now().Sub(l.lastFloodWait) < l.cfg.SpeedupInterval {
		return
	}

	newDelay := time.Duration(float64(l.cfg.BatchDelay) * l.cfg.SpeedupFactor)
	if newDelay < l.cfg.MinBatchDelay {
		newDelay = l.cfg.MinBatchDelay
	}
	l.setDelayLocked(newDelay, "floodwait_speedup")
	l.lastFloodWait = time.Time{} // reset to avoid repeated speed-up
}

func (l *Limiter) setDelayLocked(newDelay time.Duration, reason string) {
	if newDelay == l.cfg.BatchDelay {
		return
	}
	slog.Info("rate limiter adjusted", "reason", reason, "from", l.cfg.BatchDelay, "to", newDelay)
	l.cfg.BatchDelay = newDelay
	l.rl.SetLimit(rate.Every(newDelay))
}

// Stats is a snapshot of the limiter's counters.
type Stats struct {
	RequestCount     int
	FloodWaitCount   int
	TotalWaitSeconds int
	BatchDelay       time.Duration
}

// Snapshot returns the limiter's current counters.
func (l *Limiter) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		RequestCount:     l.requestCount,
		FloodWaitCount:   l.floodWaitCount,
		TotalWaitSeconds: l.totalWaitSeconds,
		BatchDelay:       l.cfg.BatchDelay,
	}
}

// Floodwaiter is satisfied by any error that can report a flood-wait
// duration, matching migraterr.Error.
type Floodwaiter interface {
	error
	IsFloodWait() bool
}

// SecondsReporter is implemented by migraterr.Error to surface the
// remote-reported wait duration.
type SecondsReporter interface {
	FloodWaitSeconds() int
}

// WithFloodWaitRetry runs op under Acquire, and on a floodwait error
// records it, sleeps (invoking onWait once per second if provided, or
// once for the whole duration otherwise), then retries op until it
// succeeds or returns a non-floodwait error (spec §4.4).
func WithFloodWaitRetry(ctx context.Context, l *Limiter, op func(ctx context.Context) error, onWait func(remaining time.Duration)) error {
	for {
		if err := l.Acquire(ctx); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		fw, ok := err.(Floodwaiter)
		if !ok || !fw.IsFloodWait() {
			return err
		}

		seconds := 60
		if sr, ok := err.(SecondsReporter); ok {
			seconds = sr.FloodWaitSeconds()
		}
		l.RecordFloodWait(seconds)

		if err := countdown(ctx, time.Duration(seconds)*time.Second, onWait); err != nil {
			return err
		}
	}
}

func countdown(ctx context.Context, total time.Duration, onWait func(remaining time.Duration)) error {
	if onWait == nil {
		return sleep(ctx, total)
	}
	remaining := total
	for remaining > 0 {
		onWait(remaining)
		step := time.Second
		if remaining < step {
			step = remaining
		}
		if err := sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
