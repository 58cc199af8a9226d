package syncjob

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnqueueClaimAck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Enqueue(ctx, Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))

	claimed, err := s.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, StatusInProgress, claimed[0].Status)

	require.NoError(t, s.Ack(ctx, "j1"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Completed)
}

func TestNackReturnsToReady(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Enqueue(ctx, Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))
	_, err := s.Claim(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, s.Nack(ctx, "j1", "transient failure", 0))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Ready)
}

func TestClearPendingLeavesTerminalStates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Enqueue(ctx, Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))
	require.NoError(t, s.Enqueue(ctx, Job{ID: "j2", SceneID: "s2", ScenePath: "/b", JobType: "metadata"}))
	require.NoError(t, s.Fail(ctx, "j2", "permanent", 1))

	n, err := s.ClearPending(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Ready)
	require.Equal(t, 1, stats.Failed)
}

func TestPurgeTerminalOlderThanRespectsCutoff(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Enqueue(ctx, Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))
	require.NoError(t, s.Enqueue(ctx, Job{ID: "j2", SceneID: "s2", ScenePath: "/b", JobType: "metadata"}))
	_, err := s.Claim(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, s.Ack(ctx, "j1"))
	require.NoError(t, s.Fail(ctx, "j2", "permanent", 1))

	n, err := s.PurgeTerminalOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "jobs updated moments ago must survive a past cutoff")

	n, err = s.PurgeTerminalOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), n, "a future cutoff must purge both terminal jobs")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Completed)
	require.Equal(t, 0, stats.Failed)
}

func TestQueuedSceneIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Enqueue(ctx, Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))

	ids, err := s.QueuedSceneIDs(ctx)
	require.NoError(t, err)
	require.True(t, ids["s1"])
}

func TestSyncTimestampRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveSyncTimestamp(ctx, "s1", now))
	got, err := s.LoadSyncTimestamp(ctx, "s1")
	require.NoError(t, err)
	require.WithinDuration(t, now, got, 0)
}
