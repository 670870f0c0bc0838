package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the attendance pipeline.
type Metrics struct {
	Scans               *prometheus.CounterVec
	ImageExtractions    *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	RegisteredStudents  prometheus.Gauge
	SectionSwitches     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qrattend_scans_total",
			Help: "Scans processed, by terminal state",
		}, []string{"state"}),
		ImageExtractions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qrattend_image_extractions_total",
			Help: "Image QR extractions, by winning method (\"none\" when all failed)",
		}, []string{"method"}),
		PersistenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qrattend_persistence_failures_total",
			Help: "Failed writes to durable storage, by store",
		}, []string{"store"}),
		RegisteredStudents: f.NewGauge(prometheus.GaugeOpts{
			Name: "qrattend_registered_students",
			Help: "Number of entries in the registry",
		}),
		SectionSwitches: f.NewCounter(prometheus.CounterOpts{
			Name: "qrattend_section_switches_total",
			Help: "Times a scan switched the active section",
		}),
	}
}

// ObserveScan counts a finished scan. Safe on a nil receiver.
func (m *Metrics) ObserveScan(state string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(state).Inc()
}

// ObserveExtraction counts an image extraction. Safe on a nil receiver.
func (m *Metrics) ObserveExtraction(method string, success bool) {
	if m == nil {
		return
	}
	if !success {
		method = "none"
	}
	m.ImageExtractions.WithLabelValues(method).Inc()
}

// ObservePersistenceFailure counts a failed write. Safe on a nil receiver.
func (m *Metrics) ObservePersistenceFailure(store string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(store).Inc()
}

// ObserveSectionSwitch counts an automatic section change. Safe on a nil receiver.
func (m *Metrics) ObserveSectionSwitch() {
	if m == nil {
		return
	}
	m.SectionSwitches.Inc()
}

// SetRegistered updates the registry size gauge. Safe on a nil receiver.
func (m *Metrics) SetRegistered(n int) {
	if m == nil {
		return
	}
	m.RegisteredStudents.Set(float64(n))
}
