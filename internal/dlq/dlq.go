// Package dlq implements selective recovery of dead-lettered jobs after a
// Target outage clears: not every Failed job is safe to retry blind, so
// recovery is gated by the error kind that originally failed it.
package dlq

import (
	"context"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/classify"
	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

// class buckets error kinds into how safe blind re-enqueue is.
type class int

const (
	// safe errors were almost certainly caused by the outage itself and
	// can be retried without further checks.
	safe class = iota
	// optional errors might still fail the same way; recovery re-checks
	// Target health and Source existence before re-enqueuing.
	optional
	// permanent errors are never auto-recovered.
	permanent
)

func classify_(kind classify.Kind) class {
	switch kind {
	case classify.ServerDown, classify.Transient:
		return safe
	case classify.NotFound:
		return optional
	default:
		return permanent
	}
}

// SceneChecker reports whether a scene still exists on the Source, used
// as a recovery gate so a scene deleted during the outage isn't
// resurrected by a blind retry.
type SceneChecker interface {
	SceneExists(ctx context.Context, sceneID string) (bool, error)
}

// TargetHealthChecker reports whether the Target is currently reachable,
// the first gate recovery checks before doing anything else.
type TargetHealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Result summarises one recovery pass.
type Result struct {
	Recovered int
	Skipped   int
	Permanent int
}

// Recoverer re-enqueues DLQ entries that failed because the Target was
// down, once it has come back up.
type Recoverer struct {
	store   *syncjob.Store
	health  TargetHealthChecker
	scenes  SceneChecker
}

// New builds a Recoverer over store, gating recovery on health and scenes.
func New(store *syncjob.Store, health TargetHealthChecker, scenes SceneChecker) *Recoverer {
	return &Recoverer{store: store, health: health, scenes: scenes}
}

// RecoverSince re-enqueues Failed jobs updated at or after since whose
// error kind indicates the failure was outage-related, skipping jobs
// already back in the active queue and, for NotFound failures, jobs whose
// scene no longer exists.
func (r *Recoverer) RecoverSince(ctx context.Context, since time.Time) (Result, error) {
	var res Result

	if r.health != nil && !r.health.Healthy(ctx) {
		return res, nil
	}

	failed, err := r.store.FailedSince(ctx, since)
	if err != nil {
		return res, err
	}

	queued, err := r.store.QueuedSceneIDs(ctx)
	if err != nil {
		return res, err
	}

	for _, j := range failed {
		switch classify_(j.ErrorKind) {
		case permanent:
			res.Permanent++
			continue
		case optional:
			if r.scenes != nil {
				ok, err := r.scenes.SceneExists(ctx, j.SceneID)
				if err != nil || !ok {
					res.Skipped++
					continue
				}
			}
		}

		if queued[j.SceneID] {
			res.Skipped++
			continue
		}

		j.Attempts = 0
		j.LastError = ""
		if err := r.store.Enqueue(ctx, j); err != nil {
			return res, err
		}
		res.Recovered++
	}
	return res, nil
}
