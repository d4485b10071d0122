package wayland

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport plays back a fixed sequence of dispatch outcomes, then
// keeps reporting timeouts.
type scriptedTransport struct {
	script     []dispatchStep
	pos        int
	flushErr   error
	flushes    atomic.Int32
	dispatches atomic.Int32
}

type dispatchStep struct {
	dispatched bool
	err        error
	run        func()
}

func (t *scriptedTransport) Flush() error {
	t.flushes.Add(1)
	return t.flushErr
}

func (t *scriptedTransport) DispatchOnce(timeout time.Duration) (bool, error) {
	t.dispatches.Add(1)
	if t.pos >= len(t.script) {
		time.Sleep(time.Millisecond)
		return false, nil
	}
	step := t.script[t.pos]
	t.pos++
	if step.run != nil {
		step.run()
	}
	return step.dispatched, step.err
}

func TestReactorHandlerReturnStopsPump(t *testing.T) {
	tr := &scriptedTransport{}
	r := NewReactor(tr, 10*time.Millisecond)

	// Run on a goroutine with a watchdog: a handler finishing successfully
	// must end the whole run, pump included, not just its own goroutine.
	result := make(chan error, 1)
	go func() {
		result <- r.Run(context.Background(), func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		})
	}()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after the handler returned success")
	}
	assert.Greater(t, tr.flushes.Load(), int32(0))
}

func TestReactorHandlerErrorWins(t *testing.T) {
	tr := &scriptedTransport{}
	r := NewReactor(tr, 10*time.Millisecond)

	boom := errors.New("wrong password storage exploded")
	err := r.Run(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestReactorPumpErrorCancelsHandler(t *testing.T) {
	lost := errors.New("connection lost")
	tr := &scriptedTransport{script: []dispatchStep{
		{dispatched: true},
		{err: lost},
	}}
	r := NewReactor(tr, 10*time.Millisecond)

	err := r.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, lost)
}

func TestReactorFlushErrorIsFatal(t *testing.T) {
	tr := &scriptedTransport{flushErr: errors.New("broken pipe")}
	r := NewReactor(tr, 10*time.Millisecond)

	err := r.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorContains(t, err, "broken pipe")
}

func TestReactorSurvivesTimeouts(t *testing.T) {
	// Three empty polls before anything arrives; the pump must keep going.
	delivered := make(chan struct{})
	tr := &scriptedTransport{script: []dispatchStep{
		{dispatched: false},
		{dispatched: false},
		{dispatched: false},
		{dispatched: true, run: func() { close(delivered) }},
	}}
	r := NewReactor(tr, time.Millisecond)

	err := r.Run(context.Background(), func(ctx context.Context) error {
		select {
		case <-delivered:
			return nil
		case <-time.After(time.Second):
			return errors.New("dispatch never happened")
		}
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, tr.dispatches.Load(), int32(4))
}

func TestReactorContextCancel(t *testing.T) {
	tr := &scriptedTransport{}
	r := NewReactor(tr, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
}
