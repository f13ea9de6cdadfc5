// Package metrics exposes Prometheus series for review runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

const namespace = "contract_review"

const (
	OutcomeSuccess = "success"
)

// Metrics holds the review series. Construct one per registry.
type Metrics struct {
	ReviewsTotal  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Score         prometheus.Histogram
	RisksTotal    *prometheus.CounterVec
	InFlight      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReviewsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Reviews finished, by outcome (success or error kind).",
		}, []string{"outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_stage_duration_seconds",
			Help:      "Stage wall time, by stage and status.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage", "status"}),
		Score: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_score",
			Help:      "Overall score of completed reviews.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		RisksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_risks_total",
			Help:      "Risks identified, by severity.",
		}, []string{"severity"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reviews_in_flight",
			Help:      "Reviews currently running.",
		}),
	}
}

// Begin marks a review as running; call the returned func when it ends.
func (m *Metrics) Begin() (end func()) {
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// ObserveStage records one trace entry. Skipped stages are counted with a
// zero duration so dashboards can see them.
func (m *Metrics) ObserveStage(entry review.TraceEntry) {
	d := time.Duration(entry.DurationMs) * time.Millisecond
	m.StageDuration.WithLabelValues(entry.StageName, string(entry.Status)).Observe(d.Seconds())
}

// ObserveReview records the end of a review. err is the error Review
// returned; its kind becomes the outcome label.
func (m *Metrics) ObserveReview(res *review.Result, err error) {
	if err != nil {
		m.ReviewsTotal.WithLabelValues(string(review.Kind(err))).Inc()
		return
	}
	m.ReviewsTotal.WithLabelValues(OutcomeSuccess).Inc()
	if res == nil {
		return
	}
	if res.State.Score != nil {
		m.Score.Observe(float64(*res.State.Score))
	}
	for _, r := range res.State.Risks {
		m.RisksTotal.WithLabelValues(string(r.Severity)).Inc()
	}
}
