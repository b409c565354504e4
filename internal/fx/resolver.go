// Package fx resolves currency conversions through a prioritized chain of
// external rate providers. Upstream FX services have inconsistent uptime and
// response shapes, so the chain trades worst-case latency for availability:
// providers are attempted in fixed priority order and the first structurally
// valid quote wins.
package fx

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/observability"
)

// Provider quotes a converted amount for a currency pair. Implementations
// convert the full amount rather than a unit rate to avoid floating point
// drift on large values.
type Provider interface {
	Name() string
	Quote(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Resolver walks the provider chain in order.
type Resolver struct {
	providers []Provider
}

// NewResolver builds a resolver over providers in priority order.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// Convert returns amount converted from one currency to another. Equal codes
// (case-insensitive) short-circuit without any network call. Each provider
// failure is classified for diagnostics and the chain falls through; only
// exhaustion of the whole chain is an error, carrying the last provider's
// diagnostic for the operator.
func (r *Resolver) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = domain.NormalizeCurrency(from)
	to = domain.NormalizeCurrency(to)
	if from == "" || to == "" {
		return decimal.Zero, domain.InvalidArgument("source and target currencies are required")
	}
	if from == to {
		return amount, nil
	}

	var lastErr error
	var lastProvider string
	for _, p := range r.providers {
		converted, err := p.Quote(ctx, amount, from, to)
		if err == nil {
			observability.IncrementFXAttempt(p.Name(), "ok")
			return converted, nil
		}
		observability.IncrementFXAttempt(p.Name(), classify(err))
		zap.L().Warn("fx provider failed",
			zap.String("provider", p.Name()),
			zap.String("class", classify(err)),
			zap.String("pair", from+"/"+to),
			zap.Error(err),
		)
		lastErr = err
		lastProvider = p.Name()
	}

	if lastErr == nil {
		return decimal.Zero, domain.Internal("no exchange rate providers configured")
	}
	// Callers must not retry: a rate mismatch is not transient within the
	// same request.
	return decimal.Zero, domain.InternalWrap(lastErr, "all exchange rate providers failed, last %s", lastProvider)
}

// classify buckets a provider failure for logs and metrics. The class never
// changes control flow beyond falling through to the next provider.
func classify(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "http_status"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "transport"
	}
	if strings.Contains(err.Error(), "decode") || strings.Contains(err.Error(), "unmarshal") {
		return "parse"
	}
	return "semantic"
}
