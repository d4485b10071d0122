package wayland

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bnema/shaderlock/internal/logger"
)

// Transport is the socket half of the compositor connection, reduced to the
// two operations the reactor drives. The production implementation wraps the
// wl client library; tests script it.
type Transport interface {
	// Flush writes any queued outgoing requests to the socket.
	Flush() error

	// DispatchOnce waits up to timeout for incoming protocol messages and
	// runs their callbacks. It returns false when the wait timed out or a
	// read would have blocked with nothing buffered; neither is an error,
	// the reactor just loops again.
	DispatchOnce(timeout time.Duration) (bool, error)
}

// Handler is the single application routine consuming the event stream. It
// runs concurrently with the reactor pump; returning (nil or not) ends the
// whole run and tears the pump down.
//
// A handler must only wait for protocol activity by consuming the event
// queue or a capture completion, both fed by the pump. Waiting on
// anything else that needs new protocol dispatch deadlocks against the pump,
// which is the only producer.
type Handler func(ctx context.Context) error

// Reactor drives the compositor socket and races the handler against the
// pump loop. The pump never waits on handler progress: it only ever blocks
// on socket readability, bounded by the poll timeout, so the handler is free
// to block indefinitely (waiting for a password, say) without starving
// protocol dispatch.
type Reactor struct {
	tr          Transport
	pollTimeout time.Duration
}

// NewReactor creates a reactor over the given transport. pollTimeout bounds
// each wait for socket data; a timeout is a liveness heartbeat, not an
// error, and doubles as the cancellation latency bound.
func NewReactor(tr Transport, pollTimeout time.Duration) *Reactor {
	return &Reactor{tr: tr, pollTimeout: pollTimeout}
}

// Run executes the pump and the handler until either finishes. The first
// result wins, success included: each task cancels the shared context when
// it returns, so a handler coming back nil after a successful unlock still
// tears down the pump instead of leaving it looping.
func (r *Reactor) Run(ctx context.Context, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	g.Go(func() error {
		defer cancel()
		return r.pump(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return handler(ctx)
	})
	return g.Wait()
}

func (r *Reactor) pump(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			// Cancelled by the handler finishing; nothing is owed.
			return nil
		}

		if err := r.tr.Flush(); err != nil {
			return fmt.Errorf("flushing compositor connection: %w", err)
		}

		dispatched, err := r.tr.DispatchOnce(r.pollTimeout)
		if err != nil {
			return fmt.Errorf("dispatching compositor events: %w", err)
		}
		if !dispatched {
			logger.Debug("poll timeout, rechecking liveness")
		}
	}
}
