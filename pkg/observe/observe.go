// Package observe reports session lifecycle events to logs and metrics.
//
// Components accept a Hook and call it after the fact; a Hook must never
// block or fail the operation it observes.
package observe

import (
	"log/slog"
)

// Hook receives lifecycle events. Implementations must be safe for
// concurrent use.
type Hook interface {
	// StateChanged is called when the session state moves from one
	// state to another.
	StateChanged(from, to string)

	// SweepCompleted is called after each expiry sweep. removed reports
	// whether any credential was deleted.
	SweepCompleted(removed bool, err error)

	// RefreshCompleted is called after a refresh attempt that reached the
	// backend, or failed trying to.
	RefreshCompleted(ok bool, err error)

	// LoginInitiated is called once a tenant login submission resolves.
	LoginInitiated(tenant string, err error)
}

// Nop ignores every event.
type Nop struct{}

func (Nop) StateChanged(string, string)  {}
func (Nop) SweepCompleted(bool, error)   {}
func (Nop) RefreshCompleted(bool, error) {}
func (Nop) LoginInitiated(string, error) {}

// OrNop returns h, or Nop when h is nil.
func OrNop(h Hook) Hook {
	if h == nil {
		return Nop{}
	}
	return h
}

// SlogHook writes events as structured log lines.
type SlogHook struct {
	Logger *slog.Logger
}

func (h SlogHook) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h SlogHook) StateChanged(from, to string) {
	h.logger().Info("session state changed", "from", from, "to", to)
}

func (h SlogHook) SweepCompleted(removed bool, err error) {
	if err != nil {
		h.logger().Warn("credential sweep failed", "error", err)
		return
	}
	if removed {
		h.logger().Info("credential sweep removed expired credentials")
		return
	}
	h.logger().Debug("credential sweep completed")
}

func (h SlogHook) RefreshCompleted(ok bool, err error) {
	if !ok {
		h.logger().Warn("credential refresh failed", "error", err)
		return
	}
	h.logger().Info("credentials refreshed")
}

func (h SlogHook) LoginInitiated(tenant string, err error) {
	if err != nil {
		h.logger().Warn("tenant login rejected", "error", err)
		return
	}
	h.logger().Info("tenant login initiated", "tenant", tenant)
}

// Multi fans every event out to each hook in order.
type Multi []Hook

func (m Multi) StateChanged(from, to string) {
	for _, h := range m {
		h.StateChanged(from, to)
	}
}

func (m Multi) SweepCompleted(removed bool, err error) {
	for _, h := range m {
		h.SweepCompleted(removed, err)
	}
}

func (m Multi) RefreshCompleted(ok bool, err error) {
	for _, h := range m {
		h.RefreshCompleted(ok, err)
	}
}

func (m Multi) LoginInitiated(tenant string, err error) {
	for _, h := range m {
		h.LoginInitiated(tenant, err)
	}
}
