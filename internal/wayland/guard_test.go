package wayland

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardAccess(t *testing.T) {
	type state struct{ n int }
	g := NewGuard(&state{})

	g.Access(func(s *state) { s.n = 7 })

	var got int
	g.Access(func(s *state) { got = s.n })
	assert.Equal(t, 7, got)
}

func TestGuardReentryPanics(t *testing.T) {
	type state struct{}
	g := NewGuard(&state{})

	assert.Panics(t, func() {
		g.Access(func(*state) {
			g.Access(func(*state) {})
		})
	})
}

func TestGuardUsableAfterPanic(t *testing.T) {
	type state struct{ n int }
	g := NewGuard(&state{})

	func() {
		defer func() { _ = recover() }()
		g.Access(func(*state) {
			g.Access(func(*state) {})
		})
	}()

	g.Access(func(s *state) { s.n = 1 })
	var got int
	g.Access(func(s *state) { got = s.n })
	assert.Equal(t, 1, got)
}

func TestGuardSerializesGoroutines(t *testing.T) {
	type state struct{ n int }
	g := NewGuard(&state{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				g.Access(func(s *state) { s.n++ })
			}
		}()
	}
	wg.Wait()

	var got int
	g.Access(func(s *state) { got = s.n })
	assert.Equal(t, 16000, got)
}
