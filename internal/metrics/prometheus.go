// Package metrics provides Prometheus metrics for the print service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth result labels.
const (
	AuthSuccess = "success"
	AuthFailure = "failure"
)

// Pairing outcome labels.
const (
	PairingRequested = "requested"
	PairingApproved  = "approved"
	PairingDenied    = "denied"
)

// Dispatch outcome labels.
const (
	DispatchSent   = "dispatched"
	DispatchFailed = "failed"
)

// PrintMetrics holds the instruments exposed on /metrics. Counters are
// incremented by the code paths they measure; gauges are refreshed from the
// store by the Collector on scrape.
type PrintMetrics struct {
	SessionGauge    prometheus.Gauge
	ClientGauge     *prometheus.GaugeVec
	RequestGauge    *prometheus.GaugeVec
	AuthCounter     *prometheus.CounterVec
	PairingCounter  *prometheus.CounterVec
	DispatchCounter *prometheus.CounterVec
	SweptCounter    prometheus.Counter
	JobDuration     *prometheus.HistogramVec
}

// NewPrintMetrics creates and registers the print service instruments.
func NewPrintMetrics(reg prometheus.Registerer) (*PrintMetrics, error) {
	m := &PrintMetrics{
		SessionGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "props_print_sessions",
			Help: "Number of live print client websocket sessions",
		}),
		ClientGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "props_print_clients",
			Help: "Number of print clients by state",
		}, []string{"state"}),
		RequestGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "props_print_requests",
			Help: "Number of print requests by status",
		}, []string{"status"}),
		AuthCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "props_print_auth_total",
			Help: "Print client authentication attempts by result",
		}, []string{"result"}),
		PairingCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "props_print_pairing_total",
			Help: "Pairing lifecycle events by outcome",
		}, []string{"outcome"}),
		DispatchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "props_print_dispatch_total",
			Help: "Print job dispatch attempts by outcome",
		}, []string{"outcome"}),
		SweptCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "props_print_jobs_swept_total",
			Help: "Print jobs failed by the stale job sweep",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "props_print_job_duration_seconds",
			Help:    "Time from dispatch to completion report by label type",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"label_type"}),
	}

	collectors := []prometheus.Collector{
		m.SessionGauge,
		m.ClientGauge,
		m.RequestGauge,
		m.AuthCounter,
		m.PairingCounter,
		m.DispatchCounter,
		m.SweptCounter,
		m.JobDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordAuth counts one authentication attempt. All methods are nil-safe so
// components can run without metrics wired.
func (m *PrintMetrics) RecordAuth(result string) {
	if m == nil {
		return
	}
	m.AuthCounter.WithLabelValues(result).Inc()
}

// RecordPairing counts one pairing lifecycle event.
func (m *PrintMetrics) RecordPairing(outcome string) {
	if m == nil {
		return
	}
	m.PairingCounter.WithLabelValues(outcome).Inc()
}

// RecordDispatch counts one dispatch attempt.
func (m *PrintMetrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.DispatchCounter.WithLabelValues(outcome).Inc()
}

// AddSwept counts jobs failed by a sweep run.
func (m *PrintMetrics) AddSwept(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.SweptCounter.Add(float64(count))
}

// ObserveJobDuration records how long a job took from dispatch to the
// client's completed report.
func (m *PrintMetrics) ObserveJobDuration(labelType string, seconds float64) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(labelType).Observe(seconds)
}

// SetSessionCount sets the live session gauge.
func (m *PrintMetrics) SetSessionCount(n float64) {
	if m == nil {
		return
	}
	m.SessionGauge.Set(n)
}

// SetClientCount sets the client gauge for one state.
func (m *PrintMetrics) SetClientCount(state string, n float64) {
	if m == nil {
		return
	}
	m.ClientGauge.WithLabelValues(state).Set(n)
}

// SetRequestCount sets the request gauge for one status.
func (m *PrintMetrics) SetRequestCount(status string, n float64) {
	if m == nil {
		return
	}
	m.RequestGauge.WithLabelValues(status).Set(n)
}
