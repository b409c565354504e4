package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/greyfinance/wallet-ledger/internal/store"
)

// Pinger covers optional dependencies checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness of the service and its backing stores.
type HealthHandler struct {
	store store.Store
	cache Pinger
}

func NewHealthHandler(st store.Store, cache Pinger) *HealthHandler {
	return &HealthHandler{store: st, cache: cache}
}

// Healthz handles GET /healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.cache != nil {
		checks["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	RespondJSON(w, status, map[string]any{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
