// Package task is a small periodic scheduler: a Func runs on a
// caller-defined Schedule, with a reset channel that can force an
// immediate re-run (used by cmd/opensmd to collapse an externally
// triggered sweep into the next tick instead of waiting out the remainder
// of the resync interval).
package task

import (
	"context"
	"fmt"
	"time"
)

// Func is a unit of scheduled work. The context is cancelled once stop is
// called; long-running tasks should watch it.
type Func func(context.Context)

// Schedule decides how long to wait before the next run. A negative
// duration stops the task for good; on a non-nil error the task skips this
// run and asks the schedule again after the returned duration (or stops for
// good if that duration is not positive). The error is not logged.
type Schedule func() (time.Duration, error)

type everyConfig struct {
	skipFirst bool
}

// EveryOption tweaks the schedule returned by Every.
type EveryOption func(*everyConfig)

// SkipFirst makes the first scheduled run wait a full interval instead of
// firing immediately.
func SkipFirst(c *everyConfig) { c.skipFirst = true }

// Every returns a Schedule that fires immediately (unless SkipFirst is
// given) and then every interval thereafter. An interval <= 0 disables the
// task: Every(0) never runs.
func Every(interval time.Duration, options ...EveryOption) Schedule {
	cfg := &everyConfig{}
	for _, o := range options {
		o(cfg)
	}

	first := true

	return func() (time.Duration, error) {
		if interval <= 0 {
			return -1, nil
		}

		if first {
			first = false
			if cfg.skipFirst {
				return interval, nil
			}

			return 0, nil
		}

		return interval, nil
	}
}

// Start runs f on schedule in a background goroutine and returns a stop
// function (blocks until the task goroutine exits or the timeout elapses)
// and a reset function (forces the current wait to end immediately, as if
// the interval had elapsed).
func Start(f Func, schedule Schedule) (stop func(timeout time.Duration) error, reset func()) {
	return start(context.Background(), f, schedule)
}

func start(parent context.Context, f Func, schedule Schedule) (func(timeout time.Duration) error, func()) {
	ctx, cancel := context.WithCancel(parent)
	stopCh := make(chan struct{})
	resetCh := make(chan struct{}, 1)
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		defer cancel()

		for {
			interval, err := schedule()
			if err != nil {
				if interval <= 0 {
					return
				}

				if !wait(interval, stopCh, resetCh) {
					return
				}

				continue
			}

			if interval < 0 {
				return
			}

			if interval > 0 {
				if !wait(interval, stopCh, resetCh) {
					return
				}
			}

			f(ctx)
		}
	}()

	stopped := false

	stop := func(timeout time.Duration) error {
		if !stopped {
			stopped = true
			close(stopCh)
		}

		select {
		case <-doneCh:
			return nil
		case <-time.After(timeout):
			return fmt.Errorf("task: did not stop within %s", timeout)
		}
	}

	reset := func() {
		select {
		case resetCh <- struct{}{}:
		default:
		}
	}

	return stop, reset
}

// wait blocks for d, returning early (true) if resetCh fires, or returning
// false if stopCh is closed first.
func wait(d time.Duration, stopCh <-chan struct{}, resetCh <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-resetCh:
		return true
	case <-stopCh:
		return false
	}
}
