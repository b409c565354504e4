package store

import (
	"context"
	"sort"
	"sync"

	"github.com/greyfinance/wallet-ledger/internal/models"
)

// Memory is an in-process Store with optimistic concurrency control. Each
// transaction records the version of every wallet it reads; commit fails with
// ErrConflict if any of those versions moved, and RunTx re-executes the body.
// Used by tests and local development.
type Memory struct {
	mu       sync.Mutex
	wallets  map[string]models.Wallet
	versions map[string]uint64
	entries  map[string]map[string]models.LedgerEntry // uid -> entry id -> entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		wallets:  make(map[string]models.Wallet),
		versions: make(map[string]uint64),
		entries:  make(map[string]map[string]models.LedgerEntry),
	}
}

type memoryTx struct {
	s *Memory

	readVersions  map[string]uint64
	stagedWallets map[string]models.Wallet
	stagedEntries []models.LedgerEntry
}

func (s *Memory) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	return runWithRetry(ctx, func(ctx context.Context) error {
		tx := &memoryTx{
			s:             s,
			readVersions:  make(map[string]uint64),
			stagedWallets: make(map[string]models.Wallet),
		}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

func (t *memoryTx) GetWallet(ctx context.Context, uid string) (*models.Wallet, error) {
	if w, ok := t.stagedWallets[uid]; ok {
		clone := w
		return &clone, nil
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.readVersions[uid] = t.s.versions[uid]
	w, ok := t.s.wallets[uid]
	if !ok {
		return nil, ErrNotFound
	}
	clone := w
	return &clone, nil
}

func (t *memoryTx) PutWallet(ctx context.Context, w *models.Wallet) error {
	t.stagedWallets[w.UID] = *w
	return nil
}

func (t *memoryTx) GetEntry(ctx context.Context, uid, entryID string) (*models.LedgerEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	e, ok := t.s.entries[uid][entryID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := e
	return &clone, nil
}

func (t *memoryTx) PutEntry(ctx context.Context, e *models.LedgerEntry) error {
	t.stagedEntries = append(t.stagedEntries, *e)
	return nil
}

func (t *memoryTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for uid, seen := range t.readVersions {
		if t.s.versions[uid] != seen {
			return ErrConflict
		}
	}

	for uid, w := range t.stagedWallets {
		t.s.wallets[uid] = w
		t.s.versions[uid]++
	}
	for _, e := range t.stagedEntries {
		if t.s.entries[e.UID] == nil {
			t.s.entries[e.UID] = make(map[string]models.LedgerEntry)
		}
		t.s.entries[e.UID][e.ID] = e
	}
	return nil
}

func (s *Memory) GetWallet(ctx context.Context, uid string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[uid]
	if !ok {
		return nil, ErrNotFound
	}
	clone := w
	return &clone, nil
}

func (s *Memory) ListEntries(ctx context.Context, uid string, limit int, cursorEntryID string) ([]models.LedgerEntry, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.LedgerEntry, 0, len(s.entries[uid]))
	for _, e := range s.entries[uid] {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := 0
	if cursorEntryID != "" {
		// Unknown cursors restart from the first page.
		for i, e := range all {
			if e.ID == cursorEntryID {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := append([]models.LedgerEntry(nil), all[start:end]...)

	next := ""
	if len(page) == limit && end < len(all) {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

func (s *Memory) Wallets(ctx context.Context) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *Memory) EntrySum(ctx context.Context, uid string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, e := range s.entries[uid] {
		sum += e.Amount
	}
	return sum, nil
}

func (s *Memory) Ping(ctx context.Context) error {
	return nil
}
