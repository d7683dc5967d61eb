// Package metrics provides Prometheus metrics for recognition, attendance
// marking and camera capture.
package metrics

import (
	"fmt"
	"time"

	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all attendance Prometheus metrics.
type Metrics struct {
	Decisions        *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec
	Marks            *prometheus.CounterVec
	Frames           *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New creates the metrics and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attendance_recognition_decisions_total",
				Help: "Total number of face recognition decisions partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attendance_recognition_duration_seconds",
				Help:    "Time taken to recognize a single face",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
			},
			[]string{"outcome"},
		),
		Marks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attendance_marks_total",
				Help: "Total number of attendance writes partitioned by ledger outcome.",
			},
			[]string{"outcome"},
		),
		Frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attendance_capture_frames_total",
				Help: "Total number of camera frames partitioned by processing result.",
			},
			[]string{"result"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "attendance_capture_sessions_active",
				Help: "Number of running camera capture sessions.",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register attendance metrics: %w", err)
	}
	return m, nil
}

// ObserveDecision implements recognition.Observer.
func (m *Metrics) ObserveDecision(d recognition.Decision, elapsed time.Duration) {
	outcome := d.Kind.String()
	m.Decisions.WithLabelValues(outcome).Inc()
	m.DecisionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordMark counts a ledger write outcome ("recorded", "already_recorded",
// "unknown_student" or "error").
func (m *Metrics) RecordMark(outcome string) {
	m.Marks.WithLabelValues(outcome).Inc()
}

// RecordFrame counts a processed camera frame.
func (m *Metrics) RecordFrame(result string) {
	m.Frames.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the number of running capture sessions.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Decisions.Describe(ch)
	m.DecisionDuration.Describe(ch)
	m.Marks.Describe(ch)
	m.Frames.Describe(ch)
	ch <- m.ActiveSessions.Desc()
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Decisions.Collect(ch)
	m.DecisionDuration.Collect(ch)
	m.Marks.Collect(ch)
	m.Frames.Collect(ch)
	ch <- m.ActiveSessions
}
