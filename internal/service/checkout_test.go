package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/fx"
	"github.com/greyfinance/wallet-ledger/internal/gateway"
	"github.com/greyfinance/wallet-ledger/internal/store"
)

type fakeProcessor struct {
	createFn  func(ctx context.Context, params gateway.CreateOrderParams) (*gateway.Order, error)
	captureFn func(ctx context.Context, orderID string) (*gateway.CaptureResult, error)

	created  []gateway.CreateOrderParams
	captured []string
}

func (f *fakeProcessor) CreateOrder(ctx context.Context, params gateway.CreateOrderParams) (*gateway.Order, error) {
	f.created = append(f.created, params)
	if f.createFn != nil {
		return f.createFn(ctx, params)
	}
	return &gateway.Order{ID: "ORD-1", Status: "CREATED"}, nil
}

func (f *fakeProcessor) CaptureOrder(ctx context.Context, orderID string) (*gateway.CaptureResult, error) {
	f.captured = append(f.captured, orderID)
	if f.captureFn != nil {
		return f.captureFn(ctx, orderID)
	}
	return completedCapture("CAP-1", "25.00", "USD"), nil
}

func completedCapture(captureID, value, currency string) *gateway.CaptureResult {
	result := &gateway.CaptureResult{
		ID:            "ORD-1",
		Status:        gateway.OrderStatusCompleted,
		PurchaseUnits: []gateway.PurchaseUnit{{}},
	}
	result.PurchaseUnits[0].Payments.Captures = []gateway.Capture{{
		ID:     captureID,
		Status: "COMPLETED",
		Amount: gateway.Amount{CurrencyCode: currency, Value: value},
	}}
	return result
}

// fixedRateProvider quotes a constant multiplier for any pair.
type fixedRateProvider struct {
	rate decimal.Decimal
	err  error
}

func (p *fixedRateProvider) Name() string { return "fixed" }

func (p *fixedRateProvider) Quote(_ context.Context, amount decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return amount.Mul(p.rate), nil
}

func newTestCheckout(t *testing.T, proc *fakeProcessor, rateProviders ...fx.Provider) (*CheckoutService, *LedgerService) {
	t.Helper()
	ledger := NewLedgerService(store.NewMemory(), "USD")
	return NewCheckoutService(proc, fx.NewResolver(rateProviders...), ledger), ledger
}

func TestCaptureCreditsWallet(t *testing.T) {
	proc := &fakeProcessor{}
	svc, ledger := newTestCheckout(t, proc)
	ctx := context.Background()

	outcome, err := svc.Capture(ctx, "alice", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "CAP-1", outcome.CaptureID)
	assert.Equal(t, int64(25_000_000), outcome.Amount)
	assert.Equal(t, "USD", outcome.Currency)

	bal, _, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(25_000_000), bal)
}

func TestCaptureIsIdempotent(t *testing.T) {
	proc := &fakeProcessor{}
	svc, ledger := newTestCheckout(t, proc)
	ctx := context.Background()

	first, err := svc.Capture(ctx, "alice", "ORD-1")
	require.NoError(t, err)
	second, err := svc.Capture(ctx, "alice", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, first.CaptureID, second.CaptureID)

	bal, _, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(25_000_000), bal, "retried capture must not double-credit")

	entries, _, err := ledger.ListEntries(ctx, "alice", 10, "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCaptureNonCompletedOrder(t *testing.T) {
	proc := &fakeProcessor{
		captureFn: func(ctx context.Context, orderID string) (*gateway.CaptureResult, error) {
			return &gateway.CaptureResult{ID: orderID, Status: "PENDING"}, nil
		},
	}
	svc, ledger := newTestCheckout(t, proc)
	ctx := context.Background()

	_, err := svc.Capture(ctx, "alice", "ORD-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindFailedPrecondition, domain.KindOf(err))

	bal, _, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestCaptureMalformedResponse(t *testing.T) {
	proc := &fakeProcessor{
		captureFn: func(ctx context.Context, orderID string) (*gateway.CaptureResult, error) {
			return &gateway.CaptureResult{ID: orderID, Status: gateway.OrderStatusCompleted}, nil
		},
	}
	svc, _ := newTestCheckout(t, proc)

	_, err := svc.Capture(context.Background(), "alice", "ORD-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestCaptureConvertsForeignGross(t *testing.T) {
	proc := &fakeProcessor{
		captureFn: func(ctx context.Context, orderID string) (*gateway.CaptureResult, error) {
			return completedCapture("CAP-2", "10.00", "EUR"), nil
		},
	}
	svc, ledger := newTestCheckout(t, proc, &fixedRateProvider{rate: decimal.NewFromFloat(1.1)})
	ctx := context.Background()

	outcome, err := svc.Capture(ctx, "alice", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11_000_000), outcome.Amount)
	assert.Equal(t, "USD", outcome.Currency)

	entries, _, err := ledger.ListEntries(ctx, "alice", 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10_000_000), entries[0].GrossAmount)
	assert.Equal(t, "EUR", entries[0].GrossCurrency)
}

func TestCaptureFXFailureLeavesLedgerUntouched(t *testing.T) {
	proc := &fakeProcessor{
		captureFn: func(ctx context.Context, orderID string) (*gateway.CaptureResult, error) {
			return completedCapture("CAP-3", "10.00", "EUR"), nil
		},
	}
	svc, ledger := newTestCheckout(t, proc, &fixedRateProvider{err: errors.New("upstream down")})
	ctx := context.Background()

	_, err := svc.Capture(ctx, "alice", "ORD-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	bal, _, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestCreateOrderFallsBackToSupportedCurrency(t *testing.T) {
	proc := &fakeProcessor{}
	svc, _ := newTestCheckout(t, proc, &fixedRateProvider{rate: decimal.NewFromFloat(0.0066)})

	out, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Amount:   "1000",
		Currency: "NGN", // outside the processor's supported set
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.FallbackCurrency, out.Currency)
	assert.Equal(t, "6.60", out.Amount)

	require.Len(t, proc.created, 1)
	assert.Equal(t, gateway.FallbackCurrency, proc.created[0].Amount.CurrencyCode)
}

func TestCreateOrderRejectsBadAmount(t *testing.T) {
	proc := &fakeProcessor{}
	svc, _ := newTestCheckout(t, proc)

	for _, amount := range []string{"", "abc", "-5", "0"} {
		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{Amount: amount})
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err), "amount %q", amount)
	}
	assert.Empty(t, proc.created)
}

type fakeVerifier struct {
	ok  bool
	err error
}

func (f *fakeVerifier) VerifyWebhookSignature(_ context.Context, _ gateway.WebhookHeaders, _ json.RawMessage) (bool, error) {
	return f.ok, f.err
}

func TestWebhookVerify(t *testing.T) {
	event := json.RawMessage(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	svc := NewWebhookService(&fakeVerifier{ok: true})
	require.NoError(t, svc.Verify(context.Background(), gateway.WebhookHeaders{}, event))

	svc = NewWebhookService(&fakeVerifier{ok: false})
	err := svc.Verify(context.Background(), gateway.WebhookHeaders{}, event)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	svc = NewWebhookService(&fakeVerifier{err: errors.New("verification endpoint unreachable")})
	err = svc.Verify(context.Background(), gateway.WebhookHeaders{}, event)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVerificationFailed)
}
