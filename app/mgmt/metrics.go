// Package mgmt provides the ingestion engine's Prometheus instrumentation.
package mgmt

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter and histogram the ingestion driver updates
// over the lifetime of one run.
type Metrics struct {
	recordsProcessed *prometheus.CounterVec
	recordsInserted  *prometheus.CounterVec
	recordsSkipped   *prometheus.CounterVec
	recordsFailed    *prometheus.CounterVec
	batchInsertTime  *prometheus.HistogramVec
	botMatches       *prometheus.CounterVec
}

// NewMetrics creates the metrics object with all counters registered.
func NewMetrics() *Metrics {
	res := &Metrics{}

	res.recordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_processed_total",
			Help: "Total records received from an adapter, after its time-window and bot filters.",
		},
		[]string{"provider"},
	)

	res.recordsInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_inserted_total",
			Help: "Total records successfully written to storage.",
		},
		[]string{"provider"},
	)

	res.recordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_skipped_total",
			Help: "Total records of successfully inserted batches that storage did not insert (storage-level dedup).",
		},
		[]string{"provider"},
	)

	res.recordsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_failed_total",
			Help: "Total records lost to a storage-level batch insert failure.",
		},
		[]string{"provider"},
	)

	res.batchInsertTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batch_insert_duration_seconds",
		Help:    "Duration of a single batch insert call into storage.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"provider"})

	res.botMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_matches_total",
			Help: "Total records classified as a known LLM bot, by bot name.",
		},
		[]string{"bot_name"},
	)

	prometheus.Unregister(prometheus.NewGoCollector()) //nolint

	for _, c := range []prometheus.Collector{
		res.recordsProcessed, res.recordsInserted, res.recordsSkipped,
		res.recordsFailed, res.batchInsertTime, res.botMatches,
	} {
		if err := prometheus.Register(c); err != nil {
			log.Printf("[WARN] can't register prometheus collector, %v", err)
		}
	}

	return res
}

// RecordsProcessed increments the processed counter for provider by n.
func (m *Metrics) RecordsProcessed(provider string, n int) {
	m.recordsProcessed.WithLabelValues(provider).Add(float64(n))
}

// RecordsInserted increments the inserted counter for provider by n.
func (m *Metrics) RecordsInserted(provider string, n int) {
	m.recordsInserted.WithLabelValues(provider).Add(float64(n))
}

// RecordsSkipped increments the skipped counter for provider by n.
func (m *Metrics) RecordsSkipped(provider string, n int) {
	m.recordsSkipped.WithLabelValues(provider).Add(float64(n))
}

// RecordsFailed increments the failed counter for provider by n.
func (m *Metrics) RecordsFailed(provider string, n int) {
	m.recordsFailed.WithLabelValues(provider).Add(float64(n))
}

// ObserveBatchInsert records how long a single batch insert call took.
func (m *Metrics) ObserveBatchInsert(provider string, seconds float64) {
	m.batchInsertTime.WithLabelValues(provider).Observe(seconds)
}

// BotMatched increments the bot-match counter for botName.
func (m *Metrics) BotMatched(botName string) {
	m.botMatches.WithLabelValues(botName).Inc()
}
