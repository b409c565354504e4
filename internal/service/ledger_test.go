package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/store"
)

func newTestLedger(t *testing.T) (*LedgerService, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	return NewLedgerService(st, "USD"), st
}

func creditMicros(t *testing.T, svc *LedgerService, uid string, amount int64) {
	t.Helper()
	_, err := svc.Credit(context.Background(), CreditCmd{
		UID:    uid,
		Type:   domain.EntryTypeTopUp,
		Amount: amount,
	})
	require.NoError(t, err)
}

func TestTransferMovesFunds(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	creditMicros(t, svc, "alice", 100_000_000) // 100.00

	err := svc.Transfer(ctx, "alice", "bob", 40_000_000, "rent")
	require.NoError(t, err)

	aliceBal, _, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(60_000_000), aliceBal)

	bobBal, _, err := svc.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(40_000_000), bobBal)
}

func TestTransferEntriesArePaired(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	creditMicros(t, svc, "alice", 100_000_000)
	require.NoError(t, svc.Transfer(ctx, "alice", "bob", 40_000_000, "rent"))

	aliceEntries, _, err := svc.ListEntries(ctx, "alice", 10, "")
	require.NoError(t, err)
	require.Len(t, aliceEntries, 2) // top-up plus transfer out

	bobEntries, _, err := svc.ListEntries(ctx, "bob", 10, "")
	require.NoError(t, err)
	require.Len(t, bobEntries, 1)

	out := aliceEntries[0]
	in := bobEntries[0]
	assert.Equal(t, domain.EntryTypeTransferOut, out.Type)
	assert.Equal(t, domain.EntryTypeTransferIn, in.Type)
	assert.Equal(t, int64(-40_000_000), out.Amount)
	assert.Equal(t, int64(40_000_000), in.Amount)
	assert.Equal(t, "bob", out.Counterparty)
	assert.Equal(t, "alice", in.Counterparty)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
}

func TestTransferInsufficientBalance(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	creditMicros(t, svc, "alice", 10_000_000)

	err := svc.Transfer(ctx, "alice", "bob", 40_000_000, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindFailedPrecondition, domain.KindOf(err))

	// Nothing moved.
	aliceBal, _, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), aliceBal)

	bobBal, _, err := svc.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bobBal)

	bobEntries, _, err := svc.ListEntries(ctx, "bob", 10, "")
	require.NoError(t, err)
	assert.Empty(t, bobEntries)
}

func TestTransferRejectsSelfAndNonPositive(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	err := svc.Transfer(ctx, "alice", "alice", 1_000_000, "")
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))

	err = svc.Transfer(ctx, "alice", "bob", 0, "")
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))

	err = svc.Transfer(ctx, "alice", "bob", -5, "")
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
}

func TestConcurrentTransfersCannotOverdraw(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	// Enough for one 60.00 transfer but not two.
	creditMicros(t, svc, "alice", 100_000_000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	recipients := []string{"bob", "carol"}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Transfer(ctx, "alice", recipients[i], 60_000_000, "")
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, domain.KindFailedPrecondition, domain.KindOf(err))
			failed++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)

	aliceBal, _, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(40_000_000), aliceBal)
}

func TestBalanceEqualsEntrySum(t *testing.T) {
	svc, st := newTestLedger(t)
	ctx := context.Background()

	creditMicros(t, svc, "alice", 100_000_000)
	require.NoError(t, svc.Transfer(ctx, "alice", "bob", 25_000_000, ""))
	_, err := svc.AdminAdjust(ctx, Actor{UID: "root", Admin: true}, "alice", -10_000_000, "chargeback")
	require.NoError(t, err)

	for _, uid := range []string{"alice", "bob"} {
		bal, _, err := svc.GetBalance(ctx, uid)
		require.NoError(t, err)
		sum, err := st.EntrySum(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, sum, bal, "uid %s", uid)
	}
}

func TestCreditIdempotentOnEntryID(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	cmd := CreditCmd{
		UID:       "alice",
		EntryID:   "CAP-123",
		Type:      domain.EntryTypeTopUp,
		Amount:    50_000_000,
		CaptureID: "CAP-123",
	}

	first, err := svc.Credit(ctx, cmd)
	require.NoError(t, err)

	second, err := svc.Credit(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	bal, _, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50_000_000), bal)

	entries, _, err := svc.ListEntries(ctx, "alice", 10, "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAdminAdjustRequiresCapability(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := svc.AdminAdjust(ctx, Actor{UID: "mallory", Admin: false}, "alice", 1_000_000, "nope")
	require.Error(t, err)
	assert.Equal(t, domain.KindPermissionDenied, domain.KindOf(err))

	bal, _, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestAdminAdjustNegativeDelta(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	creditMicros(t, svc, "alice", 30_000_000)

	entry, err := svc.AdminAdjust(ctx, Actor{UID: "root", Admin: true}, "alice", -5_000_000, "correction")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryTypeAdminAdjust, entry.Type)
	assert.Equal(t, "root", entry.AdminUID)

	bal, _, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(25_000_000), bal)
}

func TestGetBalanceUnknownWallet(t *testing.T) {
	svc, _ := newTestLedger(t)

	bal, currency, err := svc.GetBalance(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, bal)
	assert.Equal(t, "USD", currency)
}

func TestListEntriesClampsLimit(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < domain.MaxPageSize+5; i++ {
		creditMicros(t, svc, "alice", 1_000_000)
	}

	entries, next, err := svc.ListEntries(ctx, "alice", 1000, "")
	require.NoError(t, err)
	assert.Len(t, entries, domain.MaxPageSize)
	assert.NotEmpty(t, next)
}
