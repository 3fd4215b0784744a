package pusher

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics: 팬아웃 푸시 Prometheus 지표
type Metrics struct {
	pushes      *prometheus.CounterVec
	invocations *prometheus.CounterVec
	failedUIDs  prometheus.Counter
	duration    prometheus.Histogram
}

// NewMetrics: 지표를 생성해 reg 에 등록한다. reg 가 nil 이면 등록하지 않는다.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "channel_registry",
			Name:      "push_requests_total",
			Help:      "pushMessage calls by result (ok, partial, no_targets, error).",
		}, []string{"result"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "channel_registry",
			Name:      "push_server_invocations_total",
			Help:      "Remote channelRemote.pushMessage invocations by result.",
		}, []string{"result"}),
		failedUIDs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "channel_registry",
			Name:      "push_failed_uids_total",
			Help:      "Number of uids reported as not delivered.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "channel_registry",
			Name:      "push_duration_seconds",
			Help:      "Wall time of a full fan-out.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.pushes, m.invocations, m.failedUIDs, m.duration)
	}
	return m
}

func (m *Metrics) observePush(result string, seconds float64, failed int) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
	m.duration.Observe(seconds)
	if failed > 0 {
		m.failedUIDs.Add(float64(failed))
	}
}

func (m *Metrics) observeInvocation(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.invocations.WithLabelValues("ok").Inc()
		return
	}
	m.invocations.WithLabelValues("error").Inc()
}
