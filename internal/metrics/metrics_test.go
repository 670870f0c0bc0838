package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveScan("recorded")
	m.ObserveScan("recorded")
	m.ObserveScan("rejected")
	m.ObserveExtraction("inverted", true)
	m.ObserveExtraction("grayscale", false)
	m.ObservePersistenceFailure("registry")
	m.ObserveSectionSwitch()
	m.SetRegistered(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Scans.WithLabelValues("recorded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImageExtractions.WithLabelValues("inverted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImageExtractions.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("registry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SectionSwitches))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RegisteredStudents))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScan("recorded")
		m.ObserveExtraction("direct", true)
		m.ObservePersistenceFailure("ledger")
		m.ObserveSectionSwitch()
		m.SetRegistered(1)
	})
}
