package backend

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultMaintenanceInterval paces the background token re-sync.
const DefaultMaintenanceInterval = 30 * time.Minute

// Maintenance periodically re-runs the authentication status check so the
// local and helper-side token mirrors cannot drift for long in a
// long-running session. Failures are logged, never surfaced.
type Maintenance struct {
	backend  Backend
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.WaitGroup
}

// NewMaintenance creates a stopped maintenance loop.
func NewMaintenance(b Backend, interval time.Duration) *Maintenance {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	return &Maintenance{backend: b, interval: interval}
}

// Start launches the loop. Calling Start on a running loop is a no-op.
func (m *Maintenance) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.stopped.Add(1)

	go func(stop chan struct{}) {
		defer m.stopped.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := m.backend.IsAuthenticated(context.Background()); err != nil {
					log.WithField("error", err).Warn("token re-sync failed")
				}
			case <-stop:
				return
			}
		}
	}(m.stop)
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	m.stopped.Wait()
}
