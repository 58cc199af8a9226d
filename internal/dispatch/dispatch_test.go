package dispatch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

func newTestStore(t *testing.T) *syncjob.Store {
	t.Helper()
	store, err := syncjob.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func buildInput(hook, id string, hookInput any) Input {
	var in Input
	in.Args.Hook = hook
	in.Args.HookContext.ID = id
	in.Args.HookContext.Type = "Scene"
	if hookInput != nil {
		raw, _ := json.Marshal(hookInput)
		in.Args.HookContext.Input = raw
	}
	return in
}

func TestHandleIgnoresEmptyUpdate(t *testing.T) {
	store := newTestStore(t)
	in := buildInput("Scene.Update.Post", "scene-1", nil)

	out, err := Handle(context.Background(), store, in)
	require.NoError(t, err)
	require.Equal(t, "ignored: empty update", out.Output)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Ready)
}

func TestHandleIgnoresEmptyObjectUpdate(t *testing.T) {
	store := newTestStore(t)
	in := buildInput("Scene.Update.Post", "scene-1", map[string]any{})

	out, err := Handle(context.Background(), store, in)
	require.NoError(t, err)
	require.Equal(t, "ignored: empty update", out.Output)
}

func TestHandleEnqueuesNonEmptyUpdate(t *testing.T) {
	store := newTestStore(t)
	in := buildInput("Scene.Update.Post", "scene-1", map[string]any{"title": "New Title"})

	out, err := Handle(context.Background(), store, in)
	require.NoError(t, err)
	require.Equal(t, "enqueued", out.Output)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Ready)
}

func TestHandleDedupsAgainstAlreadyQueuedScene(t *testing.T) {
	store := newTestStore(t)
	in := buildInput("Scene.Update.Post", "scene-1", map[string]any{"title": "New Title"})

	out, err := Handle(context.Background(), store, in)
	require.NoError(t, err)
	require.Equal(t, "enqueued", out.Output)

	out, err = Handle(context.Background(), store, in)
	require.NoError(t, err)
	require.Equal(t, "ignored: scene already queued", out.Output)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Ready)
}

func TestHandleAlwaysEnqueuesIdentificationHooks(t *testing.T) {
	for _, hook := range []string{"Scene.Create.Post", "Scene.Identify.Post"} {
		store := newTestStore(t)
		in := buildInput(hook, "scene-1", nil)

		out, err := Handle(context.Background(), store, in)
		require.NoError(t, err)
		require.Equal(t, "enqueued", out.Output)
	}
}

func TestExtractField(t *testing.T) {
	raw := json.RawMessage(`{"title": "New Title", "performer_ids": ["p1", "p2"]}`)

	v, err := ExtractField(raw, "$.performer_ids[0]")
	require.NoError(t, err)
	require.Equal(t, "p1", v)
}

func TestHandleRejectsMissingSceneID(t *testing.T) {
	store := newTestStore(t)
	in := buildInput("Scene.Update.Post", "", map[string]any{"title": "x"})

	_, err := Handle(context.Background(), store, in)
	require.Error(t, err)
}
