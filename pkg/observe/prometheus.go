package observe

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusHook counts lifecycle events.
type PrometheusHook struct {
	transitions *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	logins      *prometheus.CounterVec
}

// NewPrometheusHook registers the session collectors on reg under namespace.
func NewPrometheusHook(reg prometheus.Registerer, namespace string) (*PrometheusHook, error) {
	h := &PrometheusHook{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"from", "to"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "sweeps_total",
			Help:      "Expiry sweeps by outcome.",
		}, []string{"removed", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Credential refresh attempts by outcome.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "tenant_logins_total",
			Help:      "Tenant login submissions by outcome.",
		}, []string{"result"}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{h.transitions, h.sweeps, h.refreshes, h.logins} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return h, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (h *PrometheusHook) StateChanged(from, to string) {
	h.transitions.WithLabelValues(from, to).Inc()
}

func (h *PrometheusHook) SweepCompleted(removed bool, err error) {
	h.sweeps.WithLabelValues(strconv.FormatBool(removed), result(err)).Inc()
}

func (h *PrometheusHook) RefreshCompleted(ok bool, err error) {
	if !ok && err == nil {
		err = errors.New("refresh failed")
	}
	h.refreshes.WithLabelValues(result(err)).Inc()
}

func (h *PrometheusHook) LoginInitiated(_ string, err error) {
	h.logins.WithLabelValues(result(err)).Inc()
}
