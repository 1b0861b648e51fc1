package operations

import (
	"context"
	"log/slog"
	"sync"

	"bybithist/internal/driver"
)

// SessionManager exclusively owns the single browser session for a run. At
// most one session is alive at a time; workflows borrow it for one chunk and
// never outlive it.
type SessionManager struct {
	drv    driver.Driver
	logger *slog.Logger

	mu     sync.Mutex
	open   bool
	broken bool
	closed sync.Once
}

// NewSessionManager wraps a driver whose session it will manage.
func NewSessionManager(drv driver.Driver, logger *slog.Logger) *SessionManager {
	return &SessionManager{drv: drv, logger: logger}
}

// Ensure returns a live session, opening one on first use and replacing the
// current one after a fatal failure was reported.
func (m *SessionManager) Ensure(ctx context.Context) (driver.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open && m.broken {
		// Best effort: a crashed browser often fails to close cleanly and
		// that is fine, the replacement is what matters.
		if err := m.drv.Close(); err != nil {
			m.logger.Warn("closing broken session failed",
				slog.String("error", err.Error()))
		}
		m.open = false
		m.broken = false
		m.logger.Info("recreating browser session after fatal failure")
	}
	if !m.open {
		if err := m.drv.Open(ctx); err != nil {
			return nil, err
		}
		m.open = true
	}
	return m.drv, nil
}

// MarkBroken flags the current session for replacement before the next
// chunk runs.
func (m *SessionManager) MarkBroken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken = true
}

// Close tears the session down exactly once. It is safe under abnormal
// termination paths; the browser process must never outlive the run.
func (m *SessionManager) Close() {
	m.closed.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.open {
			return
		}
		if err := m.drv.Close(); err != nil {
			m.logger.Warn("session close failed", slog.String("error", err.Error()))
		}
		m.open = false
	})
}
