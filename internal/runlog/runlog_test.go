package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/shared"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestSaveAndLast(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, err := store.Last(ctx, "demand")
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, store.Save(ctx, Report{Stage: "demand", TraceID: "t-1", OK: true, Writes: 3}))
	require.NoError(t, store.Save(ctx, Report{Stage: "demand", TraceID: "t-2", Error: "boom"}))

	last, err := store.Last(ctx, "demand")
	require.NoError(t, err)
	require.Equal(t, "t-2", last.TraceID)
	require.False(t, last.OK)

	history, err := store.History(ctx, "demand", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "t-1", history[1].TraceID)

	require.Equal(t, time.Hour, mr.TTL("replenish:run:demand"))
	mr.FastForward(2 * time.Hour)
	_, err = store.Last(ctx, "demand")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHistoryIsBounded(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	for i := 0; i < historyLimit+5; i++ {
		require.NoError(t, store.Save(ctx, Report{Stage: "schedule"}))
	}
	history, err := store.History(ctx, "schedule", 100)
	require.NoError(t, err)
	require.Len(t, history, historyLimit)
}

func TestNilStoreIsNoop(t *testing.T) {
	var store *Store
	require.NoError(t, store.Save(context.Background(), Report{Stage: "x"}))
	_, err := store.Last(context.Background(), "x")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaveRequiresStage(t *testing.T) {
	store, _ := newStore(t)
	require.Error(t, store.Save(context.Background(), Report{}))
}
