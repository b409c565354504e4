package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/models"
	"github.com/greyfinance/wallet-ledger/internal/observability"
	"github.com/greyfinance/wallet-ledger/internal/store"
)

// LedgerService is the wallet ledger engine. Every balance mutation commits
// as one atomic store transaction covering the wallet document(s) and the new
// ledger entries, so balance and history cannot diverge under concurrency.
type LedgerService struct {
	store        store.Store
	baseCurrency string
}

// NewLedgerService creates the engine bound to the configured base currency.
func NewLedgerService(st store.Store, baseCurrency string) *LedgerService {
	return &LedgerService{
		store:        st,
		baseCurrency: domain.NormalizeCurrency(baseCurrency),
	}
}

// BaseCurrency returns the currency all wallets are denominated in.
func (s *LedgerService) BaseCurrency() string {
	return s.baseCurrency
}

// CreditCmd describes a single-wallet credit. EntryID, when supplied, acts as
// an idempotency key: a commit against an existing id is a no-op success.
type CreditCmd struct {
	UID      string
	EntryID  string
	Type     string
	Amount   int64 // micros, signed only for ADMIN_ADJUST
	Note     string
	AdminUID string

	// Top-up audit fields.
	OrderID       string
	CaptureID     string
	GrossAmount   int64
	GrossCurrency string
}

// Credit applies cmd inside one transaction, creating the wallet on first use.
func (s *LedgerService) Credit(ctx context.Context, cmd CreditCmd) (*models.LedgerEntry, error) {
	if strings.TrimSpace(cmd.UID) == "" {
		return nil, domain.InvalidArgument("uid is required")
	}
	switch cmd.Type {
	case domain.EntryTypeTopUp:
		if cmd.Amount <= 0 {
			return nil, domain.InvalidArgument("top-up amount must be positive")
		}
	case domain.EntryTypeAdminAdjust:
		if cmd.Amount == 0 {
			return nil, domain.InvalidArgument("adjustment delta must be non-zero")
		}
	default:
		return nil, domain.InvalidArgument("unsupported credit type: %s", cmd.Type)
	}

	entryID := cmd.EntryID
	externalKey := entryID != ""
	if !externalKey {
		entryID = uuid.NewString()
	}

	var result *models.LedgerEntry
	err := s.store.RunTx(ctx, func(tx store.Tx) error {
		if externalKey {
			existing, err := tx.GetEntry(ctx, cmd.UID, entryID)
			if err == nil {
				// Already committed by a previous attempt; retry-safe no-op.
				result = existing
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		now := time.Now().UTC()
		wallet, err := s.walletForUpdate(ctx, tx, cmd.UID, now)
		if err != nil {
			return err
		}
		wallet.Balance += cmd.Amount
		wallet.UpdatedAt = now
		if err := tx.PutWallet(ctx, wallet); err != nil {
			return err
		}

		entry := &models.LedgerEntry{
			ID:            entryID,
			UID:           cmd.UID,
			Type:          cmd.Type,
			Amount:        cmd.Amount,
			Currency:      s.baseCurrency,
			Status:        domain.EntryStatusSuccess,
			Note:          cmd.Note,
			AdminUID:      cmd.AdminUID,
			OrderID:       cmd.OrderID,
			CaptureID:     cmd.CaptureID,
			GrossAmount:   cmd.GrossAmount,
			GrossCurrency: cmd.GrossCurrency,
			CreatedAt:     now,
		}
		if err := tx.PutEntry(ctx, entry); err != nil {
			return err
		}
		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Actor identifies a verified caller for capability checks.
type Actor struct {
	UID   string
	Admin bool
}

// AdminAdjust applies a signed delta to the target wallet. The capability
// check happens before any transaction is opened.
func (s *LedgerService) AdminAdjust(ctx context.Context, actor Actor, targetUID string, delta int64, reason string) (*models.LedgerEntry, error) {
	if !actor.Admin {
		return nil, domain.PermissionDenied("admin capability required")
	}
	if strings.TrimSpace(targetUID) == "" {
		return nil, domain.InvalidArgument("target uid is required")
	}

	entry, err := s.Credit(ctx, CreditCmd{
		UID:      targetUID,
		Type:     domain.EntryTypeAdminAdjust,
		Amount:   delta,
		Note:     reason,
		AdminUID: actor.UID,
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("admin adjustment applied",
		zap.String("admin_uid", actor.UID),
		zap.String("target_uid", targetUID),
		zap.Int64("delta_micros", delta),
	)
	return entry, nil
}

// Transfer moves amount between two wallets. The sender balance check and
// both writes share one transaction, so concurrent transfers can never drive
// a balance negative.
func (s *LedgerService) Transfer(ctx context.Context, fromUID, toUID string, amount int64, note string) error {
	fromUID = strings.TrimSpace(fromUID)
	toUID = strings.TrimSpace(toUID)
	if fromUID == "" || toUID == "" {
		return domain.InvalidArgument("sender and recipient uids are required")
	}
	if fromUID == toUID {
		return domain.InvalidArgument("cannot transfer to own wallet")
	}
	if amount <= 0 {
		return domain.InvalidArgument("transfer amount must be positive")
	}

	err := s.store.RunTx(ctx, func(tx store.Tx) error {
		now := time.Now().UTC()

		sender, err := s.walletForUpdate(ctx, tx, fromUID, now)
		if err != nil {
			return err
		}
		recipient, err := s.walletForUpdate(ctx, tx, toUID, now)
		if err != nil {
			return err
		}

		if sender.Balance < amount {
			return domain.FailedPrecondition("insufficient balance")
		}

		sender.Balance -= amount
		sender.UpdatedAt = now
		recipient.Balance += amount
		recipient.UpdatedAt = now

		if err := tx.PutWallet(ctx, sender); err != nil {
			return err
		}
		if err := tx.PutWallet(ctx, recipient); err != nil {
			return err
		}

		out := &models.LedgerEntry{
			ID:           uuid.NewString(),
			UID:          fromUID,
			Type:         domain.EntryTypeTransferOut,
			Amount:       -amount,
			Currency:     s.baseCurrency,
			Status:       domain.EntryStatusSuccess,
			Counterparty: toUID,
			Note:         note,
			CreatedAt:    now,
		}
		in := &models.LedgerEntry{
			ID:           uuid.NewString(),
			UID:          toUID,
			Type:         domain.EntryTypeTransferIn,
			Amount:       amount,
			Currency:     s.baseCurrency,
			Status:       domain.EntryStatusSuccess,
			Counterparty: fromUID,
			Note:         note,
			CreatedAt:    now,
		}
		if err := tx.PutEntry(ctx, out); err != nil {
			return err
		}
		return tx.PutEntry(ctx, in)
	})
	if err != nil {
		observability.IncrementTransfer("failed")
		return err
	}
	observability.IncrementTransfer("completed")
	return nil
}

// GetBalance reports the wallet balance, zero-valued when no wallet exists.
func (s *LedgerService) GetBalance(ctx context.Context, uid string) (int64, string, error) {
	wallet, err := s.store.GetWallet(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return 0, s.baseCurrency, nil
	}
	if err != nil {
		return 0, "", domain.InternalWrap(err, "load wallet")
	}
	return wallet.Balance, wallet.Currency, nil
}

// ListEntries pages the wallet history newest-first. The cursor is the id of
// the last entry of the previous page; a stale cursor restarts from the top.
func (s *LedgerService) ListEntries(ctx context.Context, uid string, limit int, cursorEntryID string) ([]models.LedgerEntry, string, error) {
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	entries, next, err := s.store.ListEntries(ctx, uid, limit, cursorEntryID)
	if err != nil {
		return nil, "", domain.InternalWrap(err, "list ledger entries")
	}
	return entries, next, nil
}

// walletForUpdate loads a wallet inside tx, initializing a zero-balance
// document for first-time users.
func (s *LedgerService) walletForUpdate(ctx context.Context, tx store.Tx, uid string, now time.Time) (*models.Wallet, error) {
	wallet, err := tx.GetWallet(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Wallet{
			UID:       uid,
			Balance:   0,
			Currency:  s.baseCurrency,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}
