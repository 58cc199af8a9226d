package dlq

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trek-e/stash2plex-sync/internal/classify"
	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

type alwaysHealthy struct{}

func (alwaysHealthy) Healthy(ctx context.Context) bool { return true }

type alwaysExists struct{}

func (alwaysExists) SceneExists(ctx context.Context, sceneID string) (bool, error) { return true, nil }

type neverExists struct{}

func (neverExists) SceneExists(ctx context.Context, sceneID string) (bool, error) { return false, nil }

func newStore(t *testing.T) *syncjob.Store {
	t.Helper()
	s, err := syncjob.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecoverSafeErrorsAreRequeued(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))
	_, err := store.Claim(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "j1", "server down", int(classify.ServerDown)))

	r := New(store, alwaysHealthy{}, alwaysExists{})
	res, err := r.RecoverSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, res.Recovered)
}

func TestRecoverPermanentErrorsAreSkipped(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))
	_, err := store.Claim(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "j1", "bad data", int(classify.Permanent)))

	r := New(store, alwaysHealthy{}, alwaysExists{})
	res, err := r.RecoverSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, res.Permanent)
	require.Equal(t, 0, res.Recovered)
}

func TestRecoverNotFoundSkippedWhenSceneGone(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))
	_, err := store.Claim(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "j1", "not found", int(classify.NotFound)))

	r := New(store, alwaysHealthy{}, neverExists{})
	res, err := r.RecoverSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
}

func TestRecoverNoopWhenTargetUnhealthy(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	r := New(store, unhealthy{}, alwaysExists{})
	res, err := r.RecoverSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, Result{}, res)
}

type unhealthy struct{}

func (unhealthy) Healthy(ctx context.Context) bool { return false }
