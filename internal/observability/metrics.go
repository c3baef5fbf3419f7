// Package observability provides the Prometheus metrics surface for
// rotorctl, grounded field-for-field on the teacher's
// internal/platform/observability/metrics.go.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every counter/gauge/histogram rotorctl exposes, namespaced
// "rotorctl".
type Metrics struct {
	// Bus
	BusMessagesPublished *prometheus.CounterVec
	BusMessagesReceived  *prometheus.CounterVec
	BusConnected         prometheus.Gauge

	// Tracking
	ActiveTrackers   prometheus.Gauge
	TrackerTicks     *prometheus.CounterVec
	TrackerStateTime *prometheus.HistogramVec
	EventsEmitted    *prometheus.CounterVec

	// Calibration
	OptimizerRuns      *prometheus.CounterVec
	OptimizerDuration  *prometheus.HistogramVec
	CalibrationLoss    prometheus.Gauge
	RetainedPointCount prometheus.Gauge
}

var (
	once     sync.Once
	instance *Metrics
)

// GetMetrics returns the process-wide metrics singleton, constructing it on
// first use (teacher idiom: sync.Once-guarded singleton).
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		BusMessagesPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorctl",
			Subsystem: "bus",
			Name:      "messages_published_total",
			Help:      "Messages published to the bus, by subject.",
		}, []string{"subject"}),
		BusMessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorctl",
			Subsystem: "bus",
			Name:      "messages_received_total",
			Help:      "Messages received from the bus, by subject.",
		}, []string{"subject"}),
		BusConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotorctl",
			Subsystem: "bus",
			Name:      "connected",
			Help:      "1 if the bus connection is up, 0 otherwise.",
		}),
		ActiveTrackers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotorctl",
			Subsystem: "tracking",
			Name:      "active_trackers",
			Help:      "Number of TargetTrackers currently owned by the supervisor.",
		}),
		TrackerTicks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorctl",
			Subsystem: "tracking",
			Name:      "ticks_total",
			Help:      "Tracker driver ticks processed, by target.",
		}, []string{"target"}),
		TrackerStateTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rotorctl",
			Subsystem: "tracking",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent evaluating one tracker tick.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorctl",
			Subsystem: "tracking",
			Name:      "events_emitted_total",
			Help:      "Tracking events emitted (preaos/aos/los/next_pass), by kind.",
		}, []string{"kind"}),
		OptimizerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotorctl",
			Subsystem: "calibration",
			Name:      "optimizer_runs_total",
			Help:      "Calibration optimizer invocations, by method.",
		}, []string{"method"}),
		OptimizerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rotorctl",
			Subsystem: "calibration",
			Name:      "optimizer_duration_seconds",
			Help:      "Wall time of one optimizer run, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		CalibrationLoss: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotorctl",
			Subsystem: "calibration",
			Name:      "last_loss",
			Help:      "Mean squared residual of the most recent calibration run.",
		}),
		RetainedPointCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "rotorctl",
			Subsystem: "calibration",
			Name:      "retained_points",
			Help:      "Number of measurement points retained after the most recent outlier-rejection pass.",
		}),
	}
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// UpdateBusConnectionStatus sets the bus-connected gauge.
func UpdateBusConnectionStatus(connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	GetMetrics().BusConnected.Set(v)
}

// RecordEventEmitted increments the events-emitted counter for kind.
func RecordEventEmitted(kind string) {
	GetMetrics().EventsEmitted.WithLabelValues(kind).Inc()
}

// RecordBusPublished increments the bus-messages-published counter for
// subject.
func RecordBusPublished(subject string) {
	GetMetrics().BusMessagesPublished.WithLabelValues(subject).Inc()
}

// RecordBusReceived increments the bus-messages-received counter for
// subject.
func RecordBusReceived(subject string) {
	GetMetrics().BusMessagesReceived.WithLabelValues(subject).Inc()
}

// SetActiveTrackers sets the active-trackers gauge to n.
func SetActiveTrackers(n int) {
	GetMetrics().ActiveTrackers.Set(float64(n))
}

// RecordTrackerTick increments the per-target tick counter and observes the
// tick's wall time in the tick-duration histogram.
func RecordTrackerTick(target string, d time.Duration) {
	m := GetMetrics()
	m.TrackerTicks.WithLabelValues(target).Inc()
	m.TrackerStateTime.WithLabelValues(target).Observe(d.Seconds())
}

// RecordOptimizerRun increments the optimizer-runs counter for method and
// observes the run's wall time in the optimizer-duration histogram.
func RecordOptimizerRun(method string, d time.Duration) {
	m := GetMetrics()
	m.OptimizerRuns.WithLabelValues(method).Inc()
	m.OptimizerDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetCalibrationLoss sets the last-calibration-loss gauge.
func SetCalibrationLoss(loss float64) {
	GetMetrics().CalibrationLoss.Set(loss)
}

// SetRetainedPoints sets the retained-measurement-point-count gauge.
func SetRetainedPoints(n int) {
	GetMetrics().RetainedPointCount.Set(float64(n))
}
