package infrastructure

import (
	"net/http"
	"strconv"
	"time"

	"casebattle/domain/interfaces"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ interfaces.MetricsRecorder = (*Metrics)(nil)

// Metrics collects counters for the battle pipeline plus HTTP latency
type Metrics struct {
	BattlesCreated   prometheus.Counter
	ParticipantJoins prometheus.Counter
	BotsFilled       prometheus.Counter
	OutcomeBatches   prometheus.Counter
	RoundsRevealed   prometheus.Counter
	RoundsForced     prometheus.Counter
	BattlesSettled   prometheus.Counter
	TiesBroken       prometheus.Counter

	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns the application metrics
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		BattlesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "battles_created_total",
			Help:      "Number of battles created",
		}),
		ParticipantJoins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "participant_joins_total",
			Help:      "Number of successful human joins",
		}),
		BotsFilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "bots_filled_total",
			Help:      "Number of bot seats filled",
		}),
		OutcomeBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "outcome_batches_total",
			Help:      "Number of outcome batches generated",
		}),
		RoundsRevealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "rounds_revealed_total",
			Help:      "Number of reveal rounds completed",
		}),
		RoundsForced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "rounds_forced_total",
			Help:      "Number of reveal rounds advanced by barrier timeout",
		}),
		BattlesSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "battles_settled_total",
			Help:      "Number of battles settled",
		}),
		TiesBroken: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebattle",
			Name:      "ties_broken_total",
			Help:      "Number of settlements resolved by tie-break",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casebattle",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		}, []string{"method", "status"}),
	}
}

// OutcomeBatchGenerated counts a persisted outcome batch
func (m *Metrics) OutcomeBatchGenerated() {
	m.OutcomeBatches.Inc()
}

// RoundRevealed counts a released reveal round and whether the timeout forced it
func (m *Metrics) RoundRevealed(forced bool) {
	m.RoundsRevealed.Inc()
	if forced {
		m.RoundsForced.Inc()
	}
}

// BattleSettled counts a settlement and whether a tie-break decided it
func (m *Metrics) BattleSettled(tieBroken bool) {
	m.BattlesSettled.Inc()
	if tieBroken {
		m.TiesBroken.Inc()
	}
}

// NewDefaultMetrics registers the metrics on the default registerer
func NewDefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// MetricsHandler returns the Prometheus metrics HTTP handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware records request latency for every handled request
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		m.RequestDuration.WithLabelValues(r.Method, strconv.Itoa(recorder.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
