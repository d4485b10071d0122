package wayland

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueOrder(t *testing.T) {
	q := NewEventQueue()

	q.Push(SessionLocked{})
	q.Push(KeyPressed{Code: 1})
	q.Push(KeyPressed{Code: 2})
	q.Push(ExitSync{})
	assert.Equal(t, 4, q.Len())

	ctx := context.Background()
	for _, want := range []Event{
		SessionLocked{},
		KeyPressed{Code: 1},
		KeyPressed{Code: 2},
		ExitSync{},
	} {
		got, err := q.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestEventQueueBlocksUntilPush(t *testing.T) {
	q := NewEventQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(SessionLocked{})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, SessionLocked{}, ev)
}

func TestEventQueueNextHonorsContext(t *testing.T) {
	q := NewEventQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventQueuePushNeverBlocks(t *testing.T) {
	q := NewEventQueue()

	// Far more events than any channel buffer would hold.
	for i := 0; i < 10000; i++ {
		q.Push(KeyPressed{Code: uint32(i)})
	}
	assert.Equal(t, 10000, q.Len())

	ev, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KeyPressed{Code: 0}, ev)
}

func TestEventQueueConcurrentProducers(t *testing.T) {
	q := NewEventQueue()

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(KeyPressed{Code: uint32(p)})
			}
		}(p)
	}

	got := make(map[uint32]int)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < producers*perProducer; i++ {
		ev, err := q.Next(ctx)
		require.NoError(t, err)
		got[ev.(KeyPressed).Code]++
	}
	wg.Wait()

	for p := 0; p < producers; p++ {
		assert.Equal(t, perProducer, got[uint32(p)])
	}
}
