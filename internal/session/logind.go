// Package session reports the lock state to the rest of the system:
// logind's LockedHint over D-Bus and service readiness to systemd.
package session

import (
	"fmt"
	"net"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/bnema/shaderlock/internal/logger"
)

// Logind talks to the org.freedesktop.login1 session object for the
// session this process runs in.
type Logind struct {
	conn    *dbus.Conn
	session dbus.BusObject
}

// ConnectLogind connects to the system bus and resolves this process's
// login session. The session ID comes from XDG_SESSION_ID, falling back to
// logind's "auto" self-lookup when unset.
func ConnectLogind() (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	sessionID := os.Getenv("XDG_SESSION_ID")
	if sessionID == "" {
		sessionID = "auto"
	}

	var sessionPath dbus.ObjectPath
	err = conn.Object("org.freedesktop.login1", "/org/freedesktop/login1").
		Call("org.freedesktop.login1.Manager.GetSession", 0, sessionID).
		Store(&sessionPath)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("resolving login session %q: %w", sessionID, err)
	}

	return &Logind{
		conn:    conn,
		session: conn.Object("org.freedesktop.login1", sessionPath),
	}, nil
}

// SetLockedHint updates the session's LockedHint property, so tools that
// query logind see the session as locked while we hold it.
func (l *Logind) SetLockedHint(locked bool) error {
	err := l.session.
		Call("org.freedesktop.login1.Session.SetLockedHint", 0, locked).Err
	if err != nil {
		return fmt.Errorf("setting locked hint: %w", err)
	}
	return nil
}

// Close releases the bus connection.
func (l *Logind) Close() error {
	return l.conn.Close()
}

// NotifyReady sends READY=1 to the socket in NOTIFY_SOCKET, telling systemd
// the lock surfaces are up. A missing socket means we were not started as a
// notify service; that is not an error.
func NotifyReady() {
	path := os.Getenv("NOTIFY_SOCKET")
	if path == "" {
		return
	}

	conn, err := net.Dial("unixgram", path)
	if err != nil {
		logger.Warn("connecting to notify socket", "err", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("READY=1")); err != nil {
		logger.Warn("sending readiness notification", "err", err)
	}
}
