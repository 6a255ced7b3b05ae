package fit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors of fit runs.
type Metrics struct {
	// Fits counts finished runs by method and final status.
	Fits *prometheus.CounterVec
	// Evaluations counts WSSR evaluations by method.
	Evaluations *prometheus.CounterVec
	// Duration tracks run time by method.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Fits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lvfit_fits_total",
			Help: "Finished fit runs by method and status",
		}, []string{"method", "status"}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lvfit_wssr_evaluations_total",
			Help: "WSSR evaluations by method",
		}, []string{"method"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lvfit_fit_duration_seconds",
			Help:    "Fit run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"method"}),
	}
}

func (m *Metrics) observe(r *Result) {
	if m == nil {
		return
	}
	m.Fits.WithLabelValues(r.Method, r.Status.String()).Inc()
	m.Evaluations.WithLabelValues(r.Method).Add(float64(r.Evaluations))
	m.Duration.WithLabelValues(r.Method).Observe(r.Duration.Seconds())
}
