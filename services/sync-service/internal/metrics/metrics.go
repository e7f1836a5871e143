package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the sync collectors. A nil *Metrics records nothing.
type Metrics struct {
	passes      *prometheus.CounterVec
	processed   *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	passSeconds *prometheus.HistogramVec
	storeSize   prometheus.Gauge
	ticks       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendarsync_passes_total",
			Help: "Sync passes by displayed week and result.",
		}, []string{"week", "result"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendarsync_appointments_upserted_total",
			Help: "Appointments written to the store.",
		}, []string{"week"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendarsync_elements_skipped_total",
			Help: "Calendar elements skipped during a pass, by reason.",
		}, []string{"reason"}),
		passSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calendarsync_pass_duration_seconds",
			Help:    "Wall time of one sync pass.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"week"}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "calendarsync_store_records",
			Help: "Records in the appointment store after the last pass.",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendarsync_ticks_total",
			Help: "Scheduler ticks by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.passes, m.processed, m.skipped, m.passSeconds, m.storeSize, m.ticks)
	return m
}

func (m *Metrics) PassFinished(week string, processed int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.passes.WithLabelValues(week, result).Inc()
	m.processed.WithLabelValues(week).Add(float64(processed))
	m.passSeconds.WithLabelValues(week).Observe(elapsed.Seconds())
}

func (m *Metrics) ElementSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) StoreSize(n int64) {
	if m == nil {
		return
	}
	m.storeSize.Set(float64(n))
}

func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}
