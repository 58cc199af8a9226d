package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

// pageSize bounds each Source batch fetched during a scan, keeping
// memory use and per-request latency predictable on large libraries.
const pageSize = 100

// completedWindow excludes jobs completed very recently from re-detection,
// giving an in-flight event-driven sync time to land before the gap
// scanner double-enqueues the same scene.
const completedWindow = 7 * 24 * time.Hour

// TargetLookup resolves a batch of scenes to their Target-side match
// state, so the engine can run without holding a targetapi.Client
// directly — callers supply whatever matching strategy (cached ID map,
// live search) fits their deployment.
type TargetLookup interface {
	Lookup(ctx context.Context, scenes []sourceapi.Scene) (map[string]TargetMetadataView, error)
}

// Engine runs a gap-detection pass: fetch a scope of scenes from the
// Source, run all three detectors, dedup against already-queued work,
// and enqueue repair jobs for anything still uncovered.
type Engine struct {
	source *sourceapi.Client
	store  *syncjob.Store
	lookup TargetLookup
}

// New builds an Engine.
func New(source *sourceapi.Client, store *syncjob.Store, lookup TargetLookup) *Engine {
	return &Engine{source: source, store: store, lookup: lookup}
}

// RunResult summarises one reconcile pass.
type RunResult struct {
	ScenesScanned int
	GapsFound     int
	JobsEnqueued  int
}

// Run scans the Source for scope's window and enqueues jobs for any
// detected gap not already covered by an in-flight job or a job
// completed within completedWindow.
func (e *Engine) Run(ctx context.Context, scope string) (RunResult, error) {
	var result RunResult

	filter := scopeFilter(scope)
	var all []sourceapi.Scene
	page := 1
	for {
		batch, err := e.source.FindScenes(ctx, filter, page, pageSize)
		if err != nil {
			return result, fmt.Errorf("reconcile: fetch page %d: %w", page, err)
		}
		all = append(all, batch.Scenes...)
		if len(batch.Scenes) < pageSize {
			break
		}
		page++
	}
	result.ScenesScanned = len(all)

	targetState, err := e.lookup.Lookup(ctx, all)
	if err != nil {
		return result, fmt.Errorf("reconcile: target lookup: %w", err)
	}

	lastSync := make(map[string]time.Time, len(all))
	for _, scene := range all {
		ts, err := e.store.LoadSyncTimestamp(ctx, scene.ID)
		if err != nil {
			return result, err
		}
		if !ts.IsZero() {
			lastSync[scene.ID] = ts
		}
	}

	var gaps []Gap
	gaps = append(gaps, DetectMissing(all, targetState)...)
	gaps = append(gaps, DetectEmptyMetadata(all, targetState)...)
	gaps = append(gaps, DetectStaleSyncs(all, lastSync)...)
	result.GapsFound = len(gaps)

	n, err := e.enqueueGaps(ctx, gaps)
	if err != nil {
		return result, err
	}
	result.JobsEnqueued = n
	return result, nil
}

// enqueueGaps deduplicates gaps against already-queued scenes (cross-gap:
// a scene flagged by two detectors only gets one job) and against
// recently-completed jobs, then enqueues the rest.
func (e *Engine) enqueueGaps(ctx context.Context, gaps []Gap) (int, error) {
	queued, err := e.store.QueuedSceneIDs(ctx)
	if err != nil {
		return 0, err
	}
	recentlyCompleted, err := e.store.CompletedSceneIDsSince(ctx, time.Now().Add(-completedWindow))
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	enqueued := 0
	for _, g := range gaps {
		if seen[g.SceneID] || queued[g.SceneID] || recentlyCompleted[g.SceneID] {
			continue
		}
		seen[g.SceneID] = true

		payload, err := json.Marshal(map[string]string{"reason": g.Kind.String()})
		if err != nil {
			return enqueued, err
		}
		err = e.store.Enqueue(ctx, syncjob.Job{
			ID:       uuid.NewString(),
			SceneID:  g.SceneID,
			JobType:  "reconcile",
			Priority: -1, // reconcile-sourced jobs yield to event-driven ones
			Payload:  payload,
		})
		if err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

func scopeFilter(scope string) map[string]any {
	window := ScopeWindow(scope)
	if window == 0 {
		return nil
	}
	since := time.Now().Add(-window).UTC().Format(time.RFC3339)
	return map[string]any{
		"updated_at": map[string]any{"value": since, "modifier": "GREATER_THAN"},
	}
}
