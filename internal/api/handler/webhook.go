package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/api/problem"
	"github.com/greyfinance/wallet-ledger/internal/gateway"
	"github.com/greyfinance/wallet-ledger/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives asynchronous processor notifications.
type WebhookHandler struct {
	svc *service.WebhookService
}

func NewWebhookHandler(svc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Receive handles POST /v1/webhooks/paypal. The event is authenticated
// against the processor and acknowledged; it never credits the ledger.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "unreadable request body")
		return
	}

	headers := gateway.WebhookHeaders{
		AuthAlgo:         r.Header.Get("Paypal-Auth-Algo"),
		CertURL:          r.Header.Get("Paypal-Cert-Url"),
		TransmissionID:   r.Header.Get("Paypal-Transmission-Id"),
		TransmissionSig:  r.Header.Get("Paypal-Transmission-Sig"),
		TransmissionTime: r.Header.Get("Paypal-Transmission-Time"),
	}

	if err := h.svc.Verify(r.Context(), headers, json.RawMessage(body)); err != nil {
		if errors.Is(err, service.ErrVerificationFailed) {
			problem.Write(w, r, http.StatusBadRequest, problem.Type("webhook/verification-failed"), http.StatusText(http.StatusBadRequest), "webhook signature verification failed")
			return
		}
		zap.L().Error("webhook verification request failed", zap.Error(err))
		RespondDomainError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
