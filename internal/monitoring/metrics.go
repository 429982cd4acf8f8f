package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SellersProcessed  *prometheus.CounterVec
	Classifications   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	LoginsTotal       *prometheus.CounterVec
	TokenizerDegraded prometheus.Counter
	FetchDuration     prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		SellersProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_sellers_processed_total",
			Help: "The total number of sellers processed",
		}, []string{"outcome"}), // 'collected', 'failed'
		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_classifications_total",
			Help: "The total number of per-seller classification outcomes",
		}, []string{"result"}), // 'positive', 'negative', 'unknown'
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'connection', 'classifier_unavailable'
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_logins_total",
			Help: "The total number of login attempts per service",
		}, []string{"service", "outcome"}),
		TokenizerDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_tokenizer_degraded_total",
			Help: "Classification keys derived with the naive fallback tokenizer",
		}),
		FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_fetch_duration_seconds",
			Help:    "Seller page fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncSellersProcessed(outcome string) {
	m.SellersProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncClassification(result string) {
	m.Classifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncLogins(service, outcome string) {
	m.LoginsTotal.WithLabelValues(service, outcome).Inc()
}
