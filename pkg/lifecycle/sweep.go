package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/idx"
)

type sweeper struct {
	cancel context.CancelFunc
	doneCh chan struct{}
	once   sync.Once
}

// StartSweep runs CleanupExpired immediately and then every interval until
// the returned stop function is called. While a sweep is running, further
// calls return the existing stop function. stop blocks until the worker has
// exited, aborting an in-flight cleanup, and is safe to call repeatedly.
func (m *Manager) StartSweep(interval time.Duration) (stop func()) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.sweep != nil {
		return m.sweep.stopFunc(m)
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &sweeper{cancel: cancel, doneCh: make(chan struct{})}
	m.sweep = s

	go m.runSweep(ctx, s, interval)
	m.logger.Info("credential sweep started", "interval", interval)

	return s.stopFunc(m)
}

// StopSweep stops the running sweep, if any.
func (m *Manager) StopSweep() {
	m.sweepMu.Lock()
	s := m.sweep
	m.sweepMu.Unlock()

	if s != nil {
		s.stopFunc(m)()
	}
}

// Sweeping reports whether a sweep worker is running.
func (m *Manager) Sweeping() bool {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	return m.sweep != nil
}

func (s *sweeper) stopFunc(m *Manager) func() {
	return func() {
		s.once.Do(func() {
			s.cancel()
			<-s.doneCh

			m.sweepMu.Lock()
			if m.sweep == s {
				m.sweep = nil
			}
			m.sweepMu.Unlock()

			m.logger.Info("credential sweep stopped")
		})
		<-s.doneCh
	}
}

func (m *Manager) runSweep(ctx context.Context, s *sweeper, interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.sweepOnce(ctx)

	for {
		select {
		case <-ticker.C:
			m.sweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) sweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	sweepID := idx.New().String()
	removed, err := m.CleanupExpired(ctx)
	if ctx.Err() != nil {
		// Stopped mid-flight, nothing to report.
		return
	}
	if err != nil {
		m.logger.Error("credential sweep failed", "sweep_id", sweepID, "error", err)
	} else {
		m.logger.Debug("credential sweep completed", "sweep_id", sweepID, "removed", removed)
	}
	m.hook.SweepCompleted(removed, err)
}
