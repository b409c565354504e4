package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	fxAttemptCounter       *prometheus.CounterVec
	captureCounter         *prometheus.CounterVec
	transferCounter        *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	ledgerImbalanceCounter *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		fxAttemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_provider_attempts_total",
			Help: "Rate provider attempts by outcome class",
		}, []string{"provider", "outcome"})

		captureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_results_total",
			Help: "Payment capture reconciliation outcomes",
		}, []string{"result"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_results_total",
			Help: "Wallet transfer outcomes",
		}, []string{"result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times a wallet balance diverged from its entry sum",
		}, []string{"currency"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			fxAttemptCounter,
			captureCounter,
			transferCounter,
			idempotencyCounter,
			ledgerImbalanceCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementFXAttempt(provider, outcome string) {
	if fxAttemptCounter == nil {
		return
	}
	fxAttemptCounter.WithLabelValues(provider, outcome).Inc()
}

func IncrementCapture(result string) {
	if captureCounter == nil {
		return
	}
	captureCounter.WithLabelValues(result).Inc()
}

func IncrementTransfer(result string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(result).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementLedgerImbalance(currency string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(currency).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
