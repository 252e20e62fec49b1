package gate

import (
	"context"
	"testing"
	"time"

	"github.com/passgate/passgate/physical"
	"github.com/passgate/passgate/physical/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, physical.Storage) {
	t.Helper()
	storage, err := inmem.NewInmem(nil, nil)
	require.NoError(t, err)
	return NewStore(storage, nil, time.Second), storage
}

func TestStore_PutGetDelete(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	rec := testRecord(time.Hour)

	require.NoError(t, store.Put(ctx, rec))

	got, err := store.GetExact(ctx, rec.OwnerID, rec.Token)
	require.NoError(t, err)
	assert.Equal(t, rec.TargetURL, got.TargetURL)
	assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))

	require.NoError(t, store.DeleteExact(ctx, rec.OwnerID, rec.Token))

	_, err = store.GetExact(ctx, rec.OwnerID, rec.Token)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// Deleting again is a no-op.
	require.NoError(t, store.DeleteExact(ctx, rec.OwnerID, rec.Token))
}

func TestStore_GetExactAbsent(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.GetExact(context.Background(), "t1", "deadbeef")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStore_GetExactUndecodable(t *testing.T) {
	store, storage := testStore(t)
	ctx := context.Background()

	require.NoError(t, storage.Put(ctx, &physical.Entry{
		Key:   recordKey("t1", "deadbeef"),
		Value: []byte("not json"),
	}))

	_, err := store.GetExact(ctx, "t1", "deadbeef")
	assert.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestStore_ReplaceRequiresExisting(t *testing.T) {
	store, _ := testStore(t)
	rec := testRecord(time.Hour)

	err := store.Replace(context.Background(), rec)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStore_Replace(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	rec := testRecord(time.Hour)
	require.NoError(t, store.Put(ctx, rec))

	now := time.Now()
	rec.Revoked = true
	rec.RevokedAt = &now
	require.NoError(t, store.Replace(ctx, rec))

	got, err := store.GetExact(ctx, rec.OwnerID, rec.Token)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestStore_ListOwnersAndTokens(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	for _, pair := range [][2]string{{"t1", "tok1"}, {"t1", "tok2"}, {"t2", "tok3"}} {
		rec := testRecord(time.Hour)
		rec.OwnerID, rec.Token = pair[0], pair[1]
		require.NoError(t, store.Put(ctx, rec))
	}

	owners, err := store.ListOwners(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, owners)

	tokens, err := store.ListTokens(ctx, "t1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tok1", "tok2"}, tokens)

	tokens, err = store.ListTokens(ctx, "t3")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestStore_OwnersAreIsolated(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	rec := testRecord(time.Hour)
	require.NoError(t, store.Put(ctx, rec))

	// Same token string under a different owner is a distinct key.
	_, err := store.GetExact(ctx, "t2", rec.Token)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
