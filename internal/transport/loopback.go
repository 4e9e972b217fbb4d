package transport

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Loopback is a deterministic, in-process PortInfoSetter: it always
// acknowledges after a configurable delay, standing in for a real MAD
// transport in tests and in the daemon's standalone mode.
type Loopback struct {
	// Delay is how long to wait before invoking the callback. Zero
	// acknowledges on the next scheduler tick.
	Delay time.Duration
}

// Submit implements PortInfoSetter.
func (l *Loopback) Submit(ctx context.Context, path Path, payload [64]byte, attr Attribute, modifier uint8, cb func(Result)) error {
	id := uuid.New()

	go func() {
		if l.Delay > 0 {
			t := time.NewTimer(l.Delay)
			defer t.Stop()

			select {
			case <-t.C:
			case <-ctx.Done():
				cb(Result{CorrelationID: id, Err: ctx.Err()})
				return
			}
		}

		cb(Result{CorrelationID: id})
	}()

	return nil
}

// Noop is a PortInfoSetter that accepts every submission but never replies,
// exercising the DONE_PENDING path (the design: "the manager never waits for
// acknowledgements inside the sweep").
type Noop struct{}

// Submit implements PortInfoSetter; it never invokes cb.
func (Noop) Submit(_ context.Context, _ Path, _ [64]byte, _ Attribute, _ uint8, _ func(Result)) error {
	return nil
}
