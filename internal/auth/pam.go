package auth

import (
	"fmt"
	"os/user"

	"github.com/msteinert/pam/v2"

	"github.com/bnema/shaderlock/internal/logger"
)

// PamBackend authenticates against the system PAM stack.
type PamBackend struct {
	service  string
	username string
}

// NewPamBackend resolves the current user and prepares a backend for the
// given PAM service name.
func NewPamBackend(service string) (*PamBackend, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolving current user: %w", err)
	}
	return &PamBackend{service: service, username: u.Username}, nil
}

// Authenticate runs one PAM conversation, answering the password prompt
// with the supplied password.
func (b *PamBackend) Authenticate(password string) error {
	tx, err := pam.StartFunc(b.service, b.username, func(style pam.Style, msg string) (string, error) {
		switch style {
		case pam.PromptEchoOff, pam.PromptEchoOn:
			return password, nil
		case pam.ErrorMsg:
			logger.Error("pam", "msg", msg)
			return "", nil
		case pam.TextInfo:
			logger.Info("pam", "msg", msg)
			return "", nil
		default:
			return "", fmt.Errorf("unsupported pam conversation style %v", style)
		}
	})
	if err != nil {
		return fmt.Errorf("starting pam transaction: %w", err)
	}
	defer func() {
		if err := tx.End(); err != nil {
			logger.Warn("ending pam transaction", "err", err)
		}
	}()

	if err := tx.Authenticate(0); err != nil {
		logger.Debug("pam authentication rejected", "err", err)
		return ErrAuthFailed
	}
	return nil
}

// NullBackend accepts any password. Only for development; it turns the
// locker into a decoration.
type NullBackend struct{}

// NewNullBackend warns loudly and returns the backend.
func NewNullBackend() *NullBackend {
	logger.Warn("authentication disabled, any input unlocks the session")
	return &NullBackend{}
}

// Authenticate always succeeds.
func (b *NullBackend) Authenticate(string) error { return nil }
