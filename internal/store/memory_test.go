package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyfinance/wallet-ledger/internal/models"
)

func seedWallet(t *testing.T, s *Memory, uid string, balance int64) {
	t.Helper()
	err := s.RunTx(context.Background(), func(tx Tx) error {
		now := time.Now().UTC()
		return tx.PutWallet(context.Background(), &models.Wallet{
			UID: uid, Balance: balance, Currency: "USD", CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)
}

func TestMemory_RunTx_ConcurrentIncrements(t *testing.T) {
	s := NewMemory()
	seedWallet(t, s, "alice", 0)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				increment := func(tx Tx) error {
					w, err := tx.GetWallet(context.Background(), "alice")
					if err != nil {
						return err
					}
					w.Balance++
					return tx.PutWallet(context.Background(), w)
				}
				// The retry budget is bounded, so under heavy contention an
				// attempt may exhaust it; the caller simply goes again.
				for s.RunTx(context.Background(), increment) != nil {
				}
			}
		}()
	}
	wg.Wait()

	w, err := s.GetWallet(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), w.Balance)
}

func TestMemory_RunTx_NoPartialStateOnError(t *testing.T) {
	s := NewMemory()
	seedWallet(t, s, "bob", 100)

	err := s.RunTx(context.Background(), func(tx Tx) error {
		w, err := tx.GetWallet(context.Background(), "bob")
		if err != nil {
			return err
		}
		w.Balance = 0
		if err := tx.PutWallet(context.Background(), w); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	w, err := s.GetWallet(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.Balance, "aborted transaction must leave no trace")
}

func TestMemory_ListEntries_CursorWalk(t *testing.T) {
	s := NewMemory()
	base := time.Now().UTC()

	err := s.RunTx(context.Background(), func(tx Tx) error {
		for i := 0; i < 5; i++ {
			e := &models.LedgerEntry{
				ID:        fmt.Sprintf("e%d", i),
				UID:       "carol",
				Type:      "TOP_UP",
				Amount:    1_000_000,
				Currency:  "USD",
				Status:    "SUCCESS",
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}
			if err := tx.PutEntry(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	page1, cursor1, err := s.ListEntries(context.Background(), "carol", 2, "")
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "e4", page1[0].ID)
	assert.Equal(t, "e3", page1[1].ID)
	require.NotEmpty(t, cursor1)

	page2, cursor2, err := s.ListEntries(context.Background(), "carol", 2, cursor1)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "e2", page2[0].ID)
	assert.Equal(t, "e1", page2[1].ID)
	require.NotEmpty(t, cursor2)

	page3, cursor3, err := s.ListEntries(context.Background(), "carol", 2, cursor2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "e0", page3[0].ID)
	assert.Empty(t, cursor3)
}

func TestMemory_ListEntries_UnknownCursorFallsBack(t *testing.T) {
	s := NewMemory()
	err := s.RunTx(context.Background(), func(tx Tx) error {
		return tx.PutEntry(context.Background(), &models.LedgerEntry{
			ID: "only", UID: "dave", Type: "TOP_UP", Amount: 1, Currency: "USD",
			Status: "SUCCESS", CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	page, _, err := s.ListEntries(context.Background(), "dave", 10, "no-such-entry")
	require.NoError(t, err)
	require.Len(t, page, 1)
}
