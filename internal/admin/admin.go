// Copyright 2025 James Ross
// Package admin implements the operator-facing inspection and repair
// commands exposed through the plugin's "admin" run mode: queue stats, a
// peek at dead-lettered (Failed) jobs, and a purge of pending jobs.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

// StatsResult summarises job counts per lifecycle state.
type StatsResult struct {
	Inited     int `json:"inited"`
	Ready      int `json:"ready"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Stats reports current job counts by status.
func Stats(ctx context.Context, store *syncjob.Store) (StatsResult, error) {
	s, err := store.Stats(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{Inited: s.Inited, Ready: s.Ready, InProgress: s.InProgress, Completed: s.Completed, Failed: s.Failed}, nil
}

// PeekItem is one job surfaced by Peek, trimmed to what an operator needs
// to decide whether it's worth inspecting further.
type PeekItem struct {
	ID        string `json:"id"`
	SceneID   string `json:"scene_id"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// PeekDLQ returns the n most recently failed jobs updated at or after
// since, oldest of those first, for an operator to inspect without
// resolving them.
func PeekDLQ(ctx context.Context, store *syncjob.Store, since time.Time, n int) ([]PeekItem, error) {
	jobs, err := store.FailedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	if n > 0 && n < len(jobs) {
		jobs = jobs[len(jobs)-n:]
	}
	out := make([]PeekItem, len(jobs))
	for i, j := range jobs {
		out[i] = PeekItem{ID: j.ID, SceneID: j.SceneID, Status: j.Status.String(), Attempts: j.Attempts, LastError: j.LastError}
	}
	return out, nil
}

// PurgeDLQ removes every job stuck in a non-terminal state, leaving
// Completed/Failed history intact. It does not touch Failed jobs — those
// are cleared by the DLQ recoverer or expire via dlq_retention_days, not
// by an operator command, since a blind Failed-job purge would discard
// the diagnostic trail a real incident needs.
func PurgeDLQ(ctx context.Context, store *syncjob.Store) (int64, error) {
	return store.ClearPending(ctx)
}

// FormatStats renders StatsResult as a human-readable summary line, used
// by the admin CLI's default text output.
func FormatStats(s StatsResult) string {
	return fmt.Sprintf("inited=%d ready=%d in_progress=%d completed=%d failed=%d",
		s.Inited, s.Ready, s.InProgress, s.Completed, s.Failed)
}
