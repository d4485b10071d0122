// Package auth collects the typed password and checks it against a backend.
package auth

import (
	"errors"

	"github.com/bnema/shaderlock/internal/logger"
)

// maxPasswordLen caps the password buffer. Keystrokes past the cap are
// dropped, not an error: a wedged key must not grow memory without bound.
const maxPasswordLen = 256

// ErrAuthFailed means the backend rejected the credentials. The locker
// stays locked and the user may retry.
var ErrAuthFailed = errors.New("authentication failed")

// Backend verifies a password for the current user.
type Backend interface {
	// Authenticate checks password. It must not retain the string.
	Authenticate(password string) error
}

// Authenticator accumulates keystrokes into a password buffer and runs
// authentication attempts. The buffer is cleared after every attempt,
// success or failure, and zeroed whenever characters are removed.
type Authenticator struct {
	backend Backend
	buf     []rune
}

// New creates an authenticator over backend.
func New(backend Backend) *Authenticator {
	return &Authenticator{
		backend: backend,
		buf:     make([]rune, 0, maxPasswordLen),
	}
}

// Push appends one character. Input past the cap is dropped.
func (a *Authenticator) Push(r rune) {
	if len(a.buf) >= maxPasswordLen {
		logger.Warn("password buffer full, dropping input")
		return
	}
	a.buf = append(a.buf, r)
}

// Pop removes the last character. No-op when empty.
func (a *Authenticator) Pop() {
	if len(a.buf) == 0 {
		return
	}
	a.buf[len(a.buf)-1] = 0
	a.buf = a.buf[:len(a.buf)-1]
}

// Clear wipes the buffer. Idempotent.
func (a *Authenticator) Clear() {
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.buf = a.buf[:0]
}

// Len reports the number of buffered characters, for masked feedback.
func (a *Authenticator) Len() int { return len(a.buf) }

// Authenticate runs one attempt with the buffered password. The buffer is
// cleared before returning regardless of outcome.
func (a *Authenticator) Authenticate() error {
	defer a.Clear()
	return a.backend.Authenticate(string(a.buf))
}
