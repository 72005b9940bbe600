// Package player owns the external media player process. A Session keeps one
// player alive across episodes, reconnecting exactly once when the control
// channel turns out to be closed.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
)

var (
	// ErrTransportClosed marks a control channel that can no longer be used.
	ErrTransportClosed = errors.New("player channel closed")
	// ErrSessionActive is returned when opening a session while one is live.
	ErrSessionActive = errors.New("a playback session is already active")
)

// maxReconnects bounds automatic recovery inside a single Play call.
const maxReconnects = 1

// Conn is a live control channel to a running player.
type Conn interface {
	// Load replaces whatever is playing with url.
	Load(ctx context.Context, url string) error
	// Close stops the player and releases the channel.
	Close() error
}

// Launcher starts a player and returns its control channel.
type Launcher interface {
	Launch(ctx context.Context) (Conn, error)
}

// IsClosed reports whether err means the control channel is gone, as
// opposed to the player rejecting a command.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe)
}

// Session is one owned player handle.
type Session struct {
	launcher Launcher
	logger   *slog.Logger
	conn     Conn
}

// NewSession creates a Session. The player is not started until Play.
func NewSession(launcher Launcher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{launcher: launcher, logger: logger}
}

// Active reports whether a player is currently running.
func (s *Session) Active() bool { return s.conn != nil }

// Play loads url, launching the player first if needed. A closed channel
// triggers one teardown, relaunch and retry; a second failure is returned
// wrapping ErrTransportClosed.
func (s *Session) Play(ctx context.Context, url string) error {
	for attempt := 0; ; attempt++ {
		if s.conn == nil {
			conn, err := s.launcher.Launch(ctx)
			if err != nil {
				return fmt.Errorf("launching player: %w", err)
			}
			s.conn = conn
		}

		err := s.conn.Load(ctx, url)
		if err == nil {
			return nil
		}
		if !IsClosed(err) {
			return fmt.Errorf("loading stream: %w", err)
		}

		s.teardown()
		if attempt >= maxReconnects {
			if errors.Is(err, ErrTransportClosed) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		s.logger.Warn("player channel closed, reconnecting", slog.Any("error", err))
	}
}

// Terminate stops the player. Calling it on a stopped session is a no-op.
func (s *Session) Terminate() error {
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Close(); err != nil && !IsClosed(err) {
		return fmt.Errorf("stopping player: %w", err)
	}
	return nil
}

func (s *Session) teardown() {
	if err := s.Terminate(); err != nil {
		s.logger.Debug("teardown after closed channel", slog.Any("error", err))
	}
}

// Manager enforces a single live Session at a time.
type Manager struct {
	launcher Launcher
	logger   *slog.Logger
	session  *Session
}

// NewManager creates a Manager that launches players with launcher.
func NewManager(launcher Launcher, logger *slog.Logger) *Manager {
	return &Manager{launcher: launcher, logger: logger}
}

// Open starts a new Session. It fails with ErrSessionActive if the previous
// one has not been closed.
func (m *Manager) Open() (*Session, error) {
	if m.session != nil {
		return nil, ErrSessionActive
	}
	m.session = NewSession(m.launcher, m.logger)
	return m.session, nil
}

// Close terminates the current Session, if any.
func (m *Manager) Close() error {
	if m.session == nil {
		return nil
	}
	s := m.session
	m.session = nil
	return s.Terminate()
}
