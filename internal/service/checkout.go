package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/fx"
	"github.com/greyfinance/wallet-ledger/internal/gateway"
	"github.com/greyfinance/wallet-ledger/internal/observability"
)

// CheckoutService reconciles processor payments into the wallet ledger. It
// opens orders, captures them, converts the captured gross into the base
// currency, and commits the credit idempotently keyed by the capture id.
type CheckoutService struct {
	processor gateway.Processor
	rates     *fx.Resolver
	ledger    *LedgerService
}

// NewCheckoutService wires the reconciler to its collaborators.
func NewCheckoutService(processor gateway.Processor, rates *fx.Resolver, ledger *LedgerService) *CheckoutService {
	return &CheckoutService{
		processor: processor,
		rates:     rates,
		ledger:    ledger,
	}
}

// CreateOrderInput carries the caller's order request; Amount is a decimal
// string in Currency.
type CreateOrderInput struct {
	Amount      string
	Currency    string
	Intent      string
	Description string
	ReturnURL   string
	CancelURL   string
}

// CreateOrderOutput echoes the opened order plus the currency and amount the
// order was actually placed in after any fallback conversion.
type CreateOrderOutput struct {
	Order    *gateway.Order
	Amount   string
	Currency string
}

// CreateOrder opens a processor order. A currency outside the processor's
// supported set is converted to the fallback currency before the order is
// created; this happens ahead of any ledger interaction and carries no
// atomicity requirement.
func (s *CheckoutService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderOutput, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil {
		return nil, domain.InvalidArgument("invalid amount %q", in.Amount)
	}
	if !amount.IsPositive() {
		return nil, domain.InvalidArgument("amount must be positive")
	}

	currency := domain.NormalizeCurrency(in.Currency)
	if currency == "" {
		currency = s.ledger.BaseCurrency()
	}

	if !gateway.SupportedCurrency(currency) {
		converted, err := s.rates.Convert(ctx, amount, currency, gateway.FallbackCurrency)
		if err != nil {
			return nil, err
		}
		zap.L().Info("order currency unsupported by processor, converted",
			zap.String("from", currency),
			zap.String("to", gateway.FallbackCurrency),
		)
		amount = converted
		currency = gateway.FallbackCurrency
	}

	order, err := s.processor.CreateOrder(ctx, gateway.CreateOrderParams{
		Intent:      in.Intent,
		Amount:      gateway.Amount{CurrencyCode: currency, Value: amount.StringFixed(2)},
		Description: in.Description,
		ReturnURL:   in.ReturnURL,
		CancelURL:   in.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	return &CreateOrderOutput{
		Order:    order,
		Amount:   amount.StringFixed(2),
		Currency: currency,
	}, nil
}

// CaptureOutcome reports the credit committed for a capture.
type CaptureOutcome struct {
	CaptureID string
	Amount    int64 // micros, base currency
	Currency  string
}

// Capture collects an approved order's funds and credits the wallet. All
// external calls finish before the atomic ledger commit begins; the capture
// id doubles as the ledger entry id, making retried captures no-op.
func (s *CheckoutService) Capture(ctx context.Context, uid, orderID string) (*CaptureOutcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.InvalidArgument("orderId is required")
	}

	result, err := s.processor.CaptureOrder(ctx, orderID)
	if err != nil {
		observability.IncrementCapture("processor_error")
		return nil, err
	}

	if result.Status != gateway.OrderStatusCompleted {
		// Not retried here: a non-terminal order needs payer or processor
		// action first.
		observability.IncrementCapture("not_completed")
		return nil, domain.FailedPrecondition("order not completed: status %s", result.Status)
	}

	capture, err := firstCapture(result)
	if err != nil {
		observability.IncrementCapture("malformed")
		return nil, err
	}

	grossCurrency := domain.NormalizeCurrency(capture.Amount.CurrencyCode)
	gross, err := decimal.NewFromString(capture.Amount.Value)
	if err != nil || grossCurrency == "" {
		observability.IncrementCapture("malformed")
		return nil, domain.Internal("malformed capture amount: %q %q", capture.Amount.Value, capture.Amount.CurrencyCode)
	}

	credited := gross
	base := s.ledger.BaseCurrency()
	if grossCurrency != base {
		credited, err = s.rates.Convert(ctx, gross, grossCurrency, base)
		if err != nil {
			observability.IncrementCapture("fx_error")
			return nil, err
		}
	}

	entryID := capture.ID
	if entryID == "" {
		entryID = orderID
	}

	entry, err := s.ledger.Credit(ctx, CreditCmd{
		UID:           uid,
		EntryID:       entryID,
		Type:          domain.EntryTypeTopUp,
		Amount:        domain.FromDecimal(credited),
		OrderID:       orderID,
		CaptureID:     capture.ID,
		GrossAmount:   domain.FromDecimal(gross),
		GrossCurrency: grossCurrency,
	})
	if err != nil {
		observability.IncrementCapture("ledger_error")
		return nil, err
	}

	observability.IncrementCapture("credited")
	zap.L().Info("capture credited",
		zap.String("uid", uid),
		zap.String("order_id", orderID),
		zap.String("capture_id", capture.ID),
		zap.Int64("amount_micros", entry.Amount),
	)
	return &CaptureOutcome{
		CaptureID: capture.ID,
		Amount:    entry.Amount,
		Currency:  entry.Currency,
	}, nil
}

// firstCapture extracts the first purchase unit's first capture record.
func firstCapture(result *gateway.CaptureResult) (*gateway.Capture, error) {
	if len(result.PurchaseUnits) == 0 || len(result.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, domain.Internal("malformed capture response: no capture record")
	}
	return &result.PurchaseUnits[0].Payments.Captures[0], nil
}
