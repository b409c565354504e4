package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, time.Hour)
}

func TestStore_ReserveFinalizeReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Lookup(ctx, "key-1", "hash-1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Reserve(ctx, "key-1", "hash-1", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second reservation for the same key must lose.
	ok, err = s.Reserve(ctx, "key-1", "hash-1", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Lookup(ctx, "key-1", "hash-1")
	assert.ErrorIs(t, err, ErrInProgress)

	_, err = s.Finalize(ctx, "key-1", "hash-1", 200, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)

	rec, err := s.Lookup(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Body))
}

func TestStore_HashMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Finalize(ctx, "key-2", "hash-a", 201, []byte(`{}`), "application/json")
	require.NoError(t, err)

	_, err = s.Lookup(ctx, "key-2", "hash-b")
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestStore_WaitForCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "key-3", "hash-3", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan *Record, 1)
	go func() {
		rec, err := s.WaitForCompletion(ctx, "key-3", "hash-3")
		assert.NoError(t, err)
		done <- rec
	}()

	time.Sleep(100 * time.Millisecond)
	_, err = s.Finalize(ctx, "key-3", "hash-3", 200, []byte(`{"replayed":true}`), "application/json")
	require.NoError(t, err)

	select {
	case rec := <-done:
		require.NotNil(t, rec)
		assert.Equal(t, 200, rec.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not observe finalization")
	}
}
