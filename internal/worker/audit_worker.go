package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/observability"
	"github.com/greyfinance/wallet-ledger/internal/service"
)

// AuditWorker runs periodic balance-vs-ledger integrity checks.
type AuditWorker struct {
	svc      *service.AuditService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAuditWorker constructs a worker with a default hourly interval.
func NewAuditWorker(svc *service.AuditService) *AuditWorker {
	return &AuditWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *AuditWorker) WithInterval(interval time.Duration) *AuditWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Run starts the worker and returns a stop function.
func (w *AuditWorker) Run(ctx context.Context) func() {
	go w.loop(ctx)
	return w.Stop
}

// Stop signals the worker to exit. Safe to call more than once.
func (w *AuditWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *AuditWorker) loop(ctx context.Context) {
	zap.L().Info("ledger audit worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("ledger audit worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("ledger audit worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *AuditWorker) runOnce(ctx context.Context) {
	if err := w.svc.Run(ctx); err != nil {
		observability.IncrementWorkerRun("ledger_audit", "error")
		zap.L().Error("ledger audit run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("ledger_audit", "ok")
}
