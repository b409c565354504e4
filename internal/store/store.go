package store

import (
	"context"
	"errors"

	"github.com/greyfinance/wallet-ledger/internal/models"
)

var (
	// ErrNotFound is returned when a wallet or entry document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a transaction lost a write race and must be
	// re-executed from scratch.
	ErrConflict = errors.New("transaction conflict")
)

// maxTxAttempts bounds the optimistic retry loop. Conflicts are transient by
// construction, so a handful of attempts is plenty before giving up.
const maxTxAttempts = 5

// Tx exposes the document operations available inside an atomic transaction.
// All reads a transaction needs to decide its outcome must happen through Tx,
// never through the surrounding Store.
type Tx interface {
	GetWallet(ctx context.Context, uid string) (*models.Wallet, error)
	PutWallet(ctx context.Context, w *models.Wallet) error
	GetEntry(ctx context.Context, uid, entryID string) (*models.LedgerEntry, error)
	PutEntry(ctx context.Context, e *models.LedgerEntry) error
}

// Store is the transactional document store the ledger engine is built on.
// RunTx re-executes fn from scratch on write conflicts; fn must therefore be
// side-effect-free with respect to external systems.
type Store interface {
	RunTx(ctx context.Context, fn func(tx Tx) error) error

	GetWallet(ctx context.Context, uid string) (*models.Wallet, error)
	ListEntries(ctx context.Context, uid string, limit int, cursorEntryID string) ([]models.LedgerEntry, string, error)

	// Wallets and EntrySum support the periodic ledger audit.
	Wallets(ctx context.Context) ([]models.Wallet, error)
	EntrySum(ctx context.Context, uid string) (int64, error)

	Ping(ctx context.Context) error
}

// runWithRetry drives the bounded conflict-retry loop shared by implementations.
func runWithRetry(ctx context.Context, attempt func(ctx context.Context) error) error {
	var err error
	for i := 0; i < maxTxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = attempt(ctx)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
