package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/gateway"
)

// ErrVerificationFailed marks an event the processor refused to authenticate.
var ErrVerificationFailed = errors.New("webhook signature verification failed")

// WebhookService authenticates asynchronous processor events. Verification is
// notification-only: a verified event confirms authenticity but never mutates
// the ledger; credits flow exclusively through the synchronous capture path.
type WebhookService struct {
	verifier gateway.WebhookVerifier
}

// NewWebhookService creates the verifier-backed service.
func NewWebhookService(verifier gateway.WebhookVerifier) *WebhookService {
	return &WebhookService{verifier: verifier}
}

type eventSummary struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
}

// Verify forwards the event to the processor's verification endpoint and
// returns ErrVerificationFailed on a negative verdict.
func (s *WebhookService) Verify(ctx context.Context, headers gateway.WebhookHeaders, event json.RawMessage) error {
	ok, err := s.verifier.VerifyWebhookSignature(ctx, headers, event)
	if err != nil {
		return err
	}

	var summary eventSummary
	_ = json.Unmarshal(event, &summary)

	if !ok {
		zap.L().Warn("webhook rejected",
			zap.String("event_id", summary.ID),
			zap.String("event_type", summary.EventType),
		)
		return ErrVerificationFailed
	}

	zap.L().Info("webhook verified",
		zap.String("event_id", summary.ID),
		zap.String("event_type", summary.EventType),
	)
	return nil
}
