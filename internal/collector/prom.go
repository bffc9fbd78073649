package collector

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"flowload/internal/core"
)

// PromReporter exports events as Prometheus metrics. It is a core.Reporter
// and can be combined with a Collector through core.Reporters.
type PromReporter struct {
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	bytesSent *prometheus.CounterVec
	bytesRecv *prometheus.CounterVec
}

// NewPromReporter creates the flowload metrics and registers them with reg.
func NewPromReporter(reg prometheus.Registerer) (*PromReporter, error) {
	p := &PromReporter{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowload_requests_total",
			Help: "Total HTTP requests issued by flow steps.",
		}, []string{"step", "method", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowload_request_duration_seconds",
			Help:    "HTTP request latency per flow step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowload_request_bytes_total",
			Help: "Request body bytes sent per flow step.",
		}, []string{"step"}),
		bytesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowload_response_bytes_total",
			Help: "Response body bytes received per flow step.",
		}, []string{"step"}),
	}

	for _, c := range []prometheus.Collector{p.requests, p.durations, p.bytesSent, p.bytesRecv} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return p, nil
}

// Report implements core.Reporter.
func (p *PromReporter) Report(e core.Event) {
	outcome := "success"
	if !e.Success {
		outcome = "failure"
	}
	p.requests.WithLabelValues(e.Step, e.Method, outcome).Inc()
	p.durations.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
	if e.BytesSent > 0 {
		p.bytesSent.WithLabelValues(e.Step).Add(float64(e.BytesSent))
	}
	if e.BytesRecv > 0 {
		p.bytesRecv.WithLabelValues(e.Step).Add(float64(e.BytesRecv))
	}
}
