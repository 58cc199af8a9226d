// Copyright 2025 James Ross
// Package reaper recovers jobs orphaned by a crashed or killed worker
// process. Because each invocation runs as its own short-lived
// subprocess, there is no per-worker heartbeat to watch the way a
// long-lived pool would use — staleness is judged purely by how long a
// job has sat in InProgress.
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

// staleAfter is how long a job may sit InProgress before the reaper
// assumes its claiming process died without resolving it.
const staleAfter = 10 * time.Minute

// Reaper periodically returns stale InProgress jobs to Ready.
type Reaper struct {
	store      *syncjob.Store
	staleAfter time.Duration
	log        *zap.Logger
}

// New builds a Reaper over store using the default staleness threshold.
func New(store *syncjob.Store, log *zap.Logger) *Reaper {
	return &Reaper{store: store, staleAfter: staleAfter, log: log}
}

// NewWithThreshold builds a Reaper with a caller-supplied staleness
// threshold, used by tests that can't wait out the production default.
func NewWithThreshold(store *syncjob.Store, threshold time.Duration, log *zap.Logger) *Reaper {
	return &Reaper{store: store, staleAfter: threshold, log: log}
}

// Run scans for stale jobs every interval until ctx is cancelled. It is
// intended for daemon mode; invoke mode calls ReapOnce directly since the
// process won't live long enough for a ticker to fire.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(ctx)
		}
	}
}

// ReapOnce runs a single reap pass and logs what it recovered.
func (r *Reaper) ReapOnce(ctx context.Context) {
	n, err := r.store.ReapStale(ctx, time.Now().Add(-r.staleAfter))
	if err != nil {
		r.log.Warn("reap stale jobs failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("reaped stale in-progress jobs", zap.Int64("count", n))
	}
}
