package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepAll_DeletesOnlyExpired(t *testing.T) {
	core, _ := setupTestCore(t)
	ctx := context.Background()

	live := testRecord(time.Hour)
	live.Token = "live"
	putRecord(t, core, live)

	expired := testRecord(-time.Minute)
	expired.Token = "dead"
	putRecord(t, core, expired)

	other := testRecord(-time.Minute)
	other.OwnerID, other.Token = "t2", "dead2"
	putRecord(t, core, other)

	core.Sweeper().sweepAll(ctx)

	_, err := core.Store().GetExact(ctx, "t1", "live")
	assert.NoError(t, err)

	_, err = core.Store().GetExact(ctx, "t1", "dead")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = core.Store().GetExact(ctx, "t2", "dead2")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	assert.Equal(t, int64(2), core.Metrics().GetSnapshot()["tokens_swept"])
}

func TestSweepAll_EmptyStore(t *testing.T) {
	core, _ := setupTestCore(t)

	core.Sweeper().sweepAll(context.Background())
	assert.Equal(t, int64(0), core.Metrics().GetSnapshot()["tokens_swept"])
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	core, _ := setupTestCore(t)

	expired := testRecord(-time.Minute)
	putRecord(t, core, expired)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		core.Sweeper().Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := core.Store().GetExact(context.Background(), expired.OwnerID, expired.Token)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
