package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greyfinance/wallet-ledger/internal/models"
)

// Postgres implements Store on a pgx pool. Transactions run SERIALIZABLE so
// the database detects write races; serialization failures surface as
// ErrConflict and are replayed by the shared retry loop.
type Postgres struct {
	db *pgxpool.Pool
}

// Connect opens a tuned pgx pool and verifies connectivity.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return pool, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	uid        TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0,
	currency   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id             TEXT NOT NULL,
	uid            TEXT NOT NULL,
	type           TEXT NOT NULL,
	amount         BIGINT NOT NULL,
	currency       TEXT NOT NULL,
	status         TEXT NOT NULL,
	counterparty   TEXT NOT NULL DEFAULT '',
	note           TEXT NOT NULL DEFAULT '',
	admin_uid      TEXT NOT NULL DEFAULT '',
	order_id       TEXT NOT NULL DEFAULT '',
	capture_id     TEXT NOT NULL DEFAULT '',
	gross_amount   BIGINT NOT NULL DEFAULT 0,
	gross_currency TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (uid, id)
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_uid_created
	ON ledger_entries (uid, created_at DESC, id DESC);
`

// Migrate applies the document schema.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (s *Postgres) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	return runWithRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgTx{tx: tx}); err != nil {
			return classifyTxErr(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return classifyTxErr(fmt.Errorf("commit transaction: %w", err))
		}
		return nil
	})
}

// classifyTxErr maps serialization and deadlock failures onto ErrConflict so
// the retry loop replays them; everything else propagates as-is.
func classifyTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Code)
		}
	}
	return err
}

const walletColumns = "uid, balance, currency, created_at, updated_at"

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	w := &models.Wallet{}
	err := row.Scan(&w.UID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}

func (t *pgTx) GetWallet(ctx context.Context, uid string) (*models.Wallet, error) {
	row := t.tx.QueryRow(ctx, "SELECT "+walletColumns+" FROM wallets WHERE uid = $1", uid)
	return scanWallet(row)
}

func (t *pgTx) PutWallet(ctx context.Context, w *models.Wallet) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO wallets (uid, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO UPDATE SET balance = $2, updated_at = $5`,
		w.UID, w.Balance, w.Currency, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put wallet: %w", err)
	}
	return nil
}

const entryColumns = "id, uid, type, amount, currency, status, counterparty, note, admin_uid, order_id, capture_id, gross_amount, gross_currency, created_at"

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	e := &models.LedgerEntry{}
	err := row.Scan(&e.ID, &e.UID, &e.Type, &e.Amount, &e.Currency, &e.Status,
		&e.Counterparty, &e.Note, &e.AdminUID, &e.OrderID, &e.CaptureID,
		&e.GrossAmount, &e.GrossCurrency, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	return e, nil
}

func (t *pgTx) GetEntry(ctx context.Context, uid, entryID string) (*models.LedgerEntry, error) {
	row := t.tx.QueryRow(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE uid = $1 AND id = $2", uid, entryID)
	return scanEntry(row)
}

func (t *pgTx) PutEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.UID, e.Type, e.Amount, e.Currency, e.Status,
		e.Counterparty, e.Note, e.AdminUID, e.OrderID, e.CaptureID,
		e.GrossAmount, e.GrossCurrency, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("put ledger entry: %w", err)
	}
	return nil
}

func (s *Postgres) GetWallet(ctx context.Context, uid string) (*models.Wallet, error) {
	row := s.db.QueryRow(ctx, "SELECT "+walletColumns+" FROM wallets WHERE uid = $1", uid)
	return scanWallet(row)
}

func (s *Postgres) ListEntries(ctx context.Context, uid string, limit int, cursorEntryID string) ([]models.LedgerEntry, string, error) {
	args := []any{uid, limit}
	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE uid = $1"

	if cursorEntryID != "" {
		cursor, err := s.getEntry(ctx, uid, cursorEntryID)
		if err == nil {
			query += " AND (created_at, id) < ($3, $4)"
			args = append(args, cursor.CreatedAt, cursor.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
		// A cursor that no longer resolves restarts from the first page.
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT $2"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list ledger entries: %w", err)
	}

	next := ""
	if len(entries) == limit && limit > 0 {
		next = entries[len(entries)-1].ID
	}
	return entries, next, nil
}

func (s *Postgres) getEntry(ctx context.Context, uid, entryID string) (*models.LedgerEntry, error) {
	row := s.db.QueryRow(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE uid = $1 AND id = $2", uid, entryID)
	return scanEntry(row)
}

func (s *Postgres) Wallets(ctx context.Context) ([]models.Wallet, error) {
	rows, err := s.db.Query(ctx, "SELECT "+walletColumns+" FROM wallets ORDER BY uid")
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

func (s *Postgres) EntrySum(ctx context.Context, uid string) (int64, error) {
	var sum int64
	err := s.db.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE uid = $1", uid).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
