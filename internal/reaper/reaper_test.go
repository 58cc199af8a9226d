package reaper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

func TestReapOnceRecoversStaleInProgressJobs(t *testing.T) {
	store, err := syncjob.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", JobType: "metadata"}))
	_, err = store.Claim(ctx, 10)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	r := NewWithThreshold(store, time.Millisecond, zap.NewNop())
	r.ReapOnce(ctx)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Ready)
	require.Equal(t, 0, stats.InProgress)
}

func TestReapOnceLeavesFreshInProgressJobsAlone(t *testing.T) {
	store, err := syncjob.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", JobType: "metadata"}))
	_, err = store.Claim(ctx, 10)
	require.NoError(t, err)

	r := New(store, zap.NewNop())
	r.ReapOnce(ctx)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.InProgress)
}
