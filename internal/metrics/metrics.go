// Package metrics exposes run outcomes as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxelcraft.ai/gametest/internal/protocol"
)

const MetricsNamespace = "gametest"

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Finished runs by suite, status and outcome code",
	}, []string{
		"suite",
		"status",
		"code",
	})

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_active",
		Help:      "Runs started and not yet finished",
	})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "steps_total",
		Help:      "Executed steps by kind",
	}, []string{
		"kind",
	})

	runTicks = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_ticks",
		Help:      "Tick at which runs finished",
		Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{
		"suite",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of runs",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{
		"suite",
	})

	batchResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_results",
		Help:      "Counts from the most recent batch",
	}, []string{
		"result",
	})
)

func RecordRunStarted() { runsActive.Inc() }

func RecordStep(kind string) { stepsTotal.WithLabelValues(kind).Inc() }

// RecordRunFinished counts a finished run. Fixture failures never started,
// so they leave runs_active alone.
func RecordRunFinished(m protocol.RunFinishedMsg) {
	if m.Code != protocol.ErrFixture {
		runsActive.Dec()
	}
	code := m.Code
	if code == "" {
		code = "none"
	}
	runsTotal.WithLabelValues(m.Suite, m.Status, code).Inc()
	runTicks.WithLabelValues(m.Suite).Observe(float64(m.Tick))
	runDuration.WithLabelValues(m.Suite).Observe(float64(m.DurationMS) / 1000)
}

func RecordBatch(m protocol.SummaryMsg) {
	batchResults.WithLabelValues("total").Set(float64(m.Total))
	batchResults.WithLabelValues(protocol.StatusPassed).Set(float64(m.Passed))
	batchResults.WithLabelValues(protocol.StatusFailed).Set(float64(m.Failed))
	batchResults.WithLabelValues(protocol.StatusTimedOut).Set(float64(m.TimedOut))
	batchResults.WithLabelValues("required_failed").Set(float64(m.RequiredFailed))
}

// Sink feeds run events into the collectors.
type Sink struct{}

func (Sink) RunStarted(protocol.RunStartedMsg)     { RecordRunStarted() }
func (Sink) StepExecuted(m protocol.StepMsg)       { RecordStep(m.Kind) }
func (Sink) RunFinished(m protocol.RunFinishedMsg) { RecordRunFinished(m) }
func (Sink) BatchFinished(m protocol.SummaryMsg)   { RecordBatch(m) }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
