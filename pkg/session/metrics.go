package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records session transitions.
type Metrics struct {
	Authentications *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	ForcedLogouts   *prometheus.CounterVec
	RefreshShared   prometheus.Counter
	Authenticated   prometheus.Gauge
}

// NewMetrics registers the session metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Authentications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_session_authentications_total",
			Help: "Total number of login and register attempts by outcome",
		}, []string{"operation", "outcome"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_session_refreshes_total",
			Help: "Total number of refresh calls by outcome",
		}, []string{"outcome"}),
		ForcedLogouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_session_forced_logouts_total",
			Help: "Total number of logouts forced by unrecoverable auth failures",
		}, []string{"reason"}),
		RefreshShared: factory.NewCounter(prometheus.CounterOpts{
			Name: "learnhub_session_refresh_shared_total",
			Help: "Total number of refresh callers served by a coalesced in-flight refresh",
		}),
		Authenticated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "learnhub_session_authenticated",
			Help: "1 while the session holds an authenticated identity",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) authentication(op string, err error) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) refresh(err error) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) forcedLogout(reason string) {
	if m == nil {
		return
	}
	m.ForcedLogouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) refreshShared() {
	if m == nil {
		return
	}
	m.RefreshShared.Inc()
}

func (m *Metrics) authenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Authenticated.Set(1)
		return
	}
	m.Authenticated.Set(0)
}
