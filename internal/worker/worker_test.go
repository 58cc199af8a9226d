package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trek-e/stash2plex-sync/internal/breaker"
	"github.com/trek-e/stash2plex-sync/internal/config"
	"github.com/trek-e/stash2plex-sync/internal/outage"
	"github.com/trek-e/stash2plex-sync/internal/ratelimit"
	"github.com/trek-e/stash2plex-sync/internal/recovery"
	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/syncjob"
	"github.com/trek-e/stash2plex-sync/internal/targetapi"
	"github.com/trek-e/stash2plex-sync/internal/writer"
)

func newTestWorker(t *testing.T, sourceURL, targetURL string) (*Worker, *syncjob.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := syncjob.Open(filepath.Join(dir, "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b, err := breaker.New(filepath.Join(dir, "breaker.json"), time.Minute, 3)
	require.NoError(t, err)
	h, err := outage.Load(filepath.Join(dir, "outage.json"))
	require.NoError(t, err)
	l, err := ratelimit.Load(filepath.Join(dir, "ratelimit.json"), ratelimit.DefaultConfig)
	require.NoError(t, err)
	rec, err := recovery.New(filepath.Join(dir, "recovery.json"), b, h, l)
	require.NoError(t, err)

	source := sourceapi.New(sourceURL, "", time.Second)
	target := targetapi.New(targetURL, "tok", time.Second, time.Second)
	wr := writer.New(target, config.SyncToggles{Master: true, Summary: true}, 100, false)

	w := New(Config{Concurrency: 2, MaxRetries: 3, LibrarySectionKey: "1", StrictMatching: false},
		store, b, l, rec, source, target, wr, nil, nil, zap.NewNop())
	return w, store
}

func TestRunProcessesAndAcksSuccessfulJob(t *testing.T) {
	sourceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"findScene": map[string]any{
					"id": "s1", "title": "Scene One",
					"files": []map[string]any{{"path": "/data/scenes/Scene One.mp4"}},
				},
			},
		})
	}))
	defer sourceSrv.Close()

	targetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/library/sections/1/search" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"MediaContainer":{"Metadata":[{"ratingKey":"100","title":"Scene One","filePath":"/media/scenes/Scene One.mp4"}]}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer targetSrv.Close()

	w, store := newTestWorker(t, sourceSrv.URL, targetSrv.URL)
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", ScenePath: "/data/scenes/Scene One.mp4", JobType: "metadata"}))

	require.NoError(t, w.Run(ctx, 10))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Completed)
}

func TestRunPreservesFieldAbsentFromEventPayload(t *testing.T) {
	sourceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"findScene": map[string]any{
					"id": "s1", "title": "Scene One", "details": "fresh summary from Source",
					"files": []map[string]any{{"path": "/data/scenes/Scene One.mp4"}},
				},
			},
		})
	}))
	defer sourceSrv.Close()

	var gotQuery string
	targetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/library/sections/1/search" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"MediaContainer":{"Metadata":[{"ratingKey":"100","title":"Scene One","filePath":"/media/scenes/Scene One.mp4"}]}}`))
			return
		}
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer targetSrv.Close()

	w, store := newTestWorker(t, sourceSrv.URL, targetSrv.URL)
	ctx := context.Background()
	payload, err := json.Marshal(map[string]any{"title": "New Title"})
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{
		ID: "j1", SceneID: "s1", ScenePath: "/data/scenes/Scene One.mp4", JobType: "metadata", Payload: payload,
	}))

	require.NoError(t, w.Run(ctx, 10))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Completed)
	require.NotContains(t, gotQuery, "summary.value", "summary toggle is on but the event never mentioned details")
}

func TestRunRetriesOnTransientFailure(t *testing.T) {
	sourceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sourceSrv.Close()

	targetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer targetSrv.Close()

	w, store := newTestWorker(t, sourceSrv.URL, targetSrv.URL)
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))

	require.NoError(t, w.Run(ctx, 10))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Ready)
	require.Equal(t, 0, stats.Failed)
}

func TestRunFailsPermanentErrorWithoutRetry(t *testing.T) {
	sourceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer sourceSrv.Close()

	targetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer targetSrv.Close()

	w, store := newTestWorker(t, sourceSrv.URL, targetSrv.URL)
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, syncjob.Job{ID: "j1", SceneID: "s1", ScenePath: "/a", JobType: "metadata"}))

	require.NoError(t, w.Run(ctx, 10))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
}
