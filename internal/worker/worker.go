// Copyright 2025 James Ross
// Package worker drains the sync job queue: it claims a batch of jobs,
// processes them on up to one goroutine per configured slot, applies the
// circuit breaker and rate limiter around each Target call, and routes
// failures to retry or the DLQ based on their classified error kind.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/trek-e/stash2plex-sync/internal/backoff"
	"github.com/trek-e/stash2plex-sync/internal/breaker"
	"github.com/trek-e/stash2plex-sync/internal/classify"
	"github.com/trek-e/stash2plex-sync/internal/match"
	"github.com/trek-e/stash2plex-sync/internal/metrics"
	"github.com/trek-e/stash2plex-sync/internal/pathmap"
	"github.com/trek-e/stash2plex-sync/internal/pathpriv"
	"github.com/trek-e/stash2plex-sync/internal/ratelimit"
	"github.com/trek-e/stash2plex-sync/internal/recovery"
	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/syncjob"
	"github.com/trek-e/stash2plex-sync/internal/targetapi"
	"github.com/trek-e/stash2plex-sync/internal/writer"
)

// Config tunes the worker's retry and concurrency posture.
type Config struct {
	Concurrency       int
	MaxRetries        int
	LibrarySectionKey string
	StrictMatching    bool
	ExcludeGlobs      []string
}

// Worker processes jobs from a syncjob.Store against the Target, guarded
// by a circuit breaker and a post-recovery rate limiter.
type Worker struct {
	cfg      Config
	store    *syncjob.Store
	breaker  *breaker.CircuitBreaker
	limiter  *ratelimit.Limiter
	recovery *recovery.Scheduler
	source   *sourceapi.Client
	target   *targetapi.Client
	writer   *writer.Writer
	pathmap  *pathmap.Mapper
	obfs     *pathpriv.Obfuscator
	log      *zap.Logger
}

// New builds a Worker. obfs may be nil, in which case scene paths are
// logged verbatim; callers pass a fresh pathpriv.Obfuscator per
// invocation when the operator has enabled path obfuscation in logs.
func New(cfg Config, store *syncjob.Store, b *breaker.CircuitBreaker, l *ratelimit.Limiter, r *recovery.Scheduler,
	source *sourceapi.Client, target *targetapi.Client, w *writer.Writer, pm *pathmap.Mapper, obfs *pathpriv.Obfuscator, log *zap.Logger) *Worker {
	return &Worker{cfg: cfg, store: store, breaker: b, limiter: l, recovery: r, source: source, target: target, writer: w, pathmap: pm, obfs: obfs, log: log}
}

// logPath returns a scene path suitable for inclusion in a log line,
// obfuscated when the worker was built with an Obfuscator.
func (w *Worker) logPath(p string) string {
	if w.obfs == nil {
		return p
	}
	return w.obfs.Path(p)
}

// excluded reports whether path matches one of the operator-configured
// exclude globs (e.g. "**/sample/**"), used to skip sample clips and
// other scenes that were never meant to reach the Target library.
func (w *Worker) excluded(path string) bool {
	for _, g := range w.cfg.ExcludeGlobs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

// Run drains up to `limit` claimed jobs across cfg.Concurrency goroutines
// and returns once they are all processed. It is designed to be called
// once per plugin invocation rather than looped forever, since the
// plugin process itself is short-lived.
func (w *Worker) Run(ctx context.Context, limit int) error {
	jobs, err := w.store.Claim(ctx, limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	slots := w.cfg.Concurrency
	if slots < 1 {
		slots = 1
	}
	sem := make(chan struct{}, slots)
	var wg sync.WaitGroup
	for _, j := range jobs {
		j := j
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.processOne(ctx, j)
		}()
	}
	wg.Wait()
	return nil
}

func (w *Worker) processOne(ctx context.Context, job syncjob.Job) {
	if w.excluded(job.ScenePath) {
		if err := w.store.Ack(ctx, job.ID); err != nil {
			w.log.Error("ack excluded job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	if !w.breaker.Allow() {
		if err := w.store.Release(ctx, job.ID); err != nil {
			w.log.Error("release job after breaker block", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	if wait := w.limiter.ShouldWait(time.Now()); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			_ = w.store.Release(ctx, job.ID)
			return
		}
	}
	w.limiter.RecordAllowed(time.Now())

	err := w.process(ctx, job)
	ok := err == nil

	w.breaker.Record(ok)
	w.limiter.RecordOutcome(time.Now(), ok)
	if w.breaker.State() == breaker.Open {
		metrics.BreakerOpen.Set(1)
	} else {
		metrics.BreakerOpen.Set(0)
	}

	if ok {
		metrics.JobsProcessed.WithLabelValues("completed").Inc()
		if w.recovery.IsOutageOpen() {
			w.recovery.RecordRecovered(time.Now())
		}
		if err := w.store.Ack(ctx, job.ID); err != nil {
			w.log.Error("ack job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	kind := classify.Err(err)
	if kind == classify.ServerDown {
		w.recovery.RecordOutageDetected(time.Now())
	}

	if kind == classify.Permanent || job.Attempts+1 >= backoff.MaxAttemptsFor(kind, nil) {
		metrics.JobsProcessed.WithLabelValues("failed").Inc()
		if failErr := w.store.Fail(ctx, job.ID, err.Error(), int(kind)); failErr != nil {
			w.log.Error("fail job", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return
	}

	metrics.JobsProcessed.WithLabelValues("retried").Inc()
	if nackErr := w.store.Nack(ctx, job.ID, err.Error(), int(kind)); nackErr != nil {
		w.log.Error("nack job", zap.String("job_id", job.ID), zap.Error(nackErr))
	}
}

// process performs the actual sync work for one job: fetch the scene,
// find its Target counterpart, and write metadata. The retry delay for a
// failed attempt is applied by the caller's next poll interval, not by
// sleeping inside this call.
func (w *Worker) process(ctx context.Context, job syncjob.Job) error {
	w.log.Debug("processing job", zap.String("job_id", job.ID), zap.String("scene_path", w.logPath(job.ScenePath)))

	scene, err := w.source.FindScene(ctx, job.SceneID)
	if err != nil {
		return err
	}

	candidates, err := w.target.SearchLibrary(ctx, w.cfg.LibrarySectionKey, scene.Title)
	if err != nil {
		return err
	}

	matchCandidates := make([]match.Candidate, len(candidates))
	for i, c := range candidates {
		matchCandidates[i] = match.Candidate{ID: c.RatingKey, Title: c.Title, FilePath: c.FilePath}
	}

	scenePath := ""
	if len(scene.Files) > 0 {
		scenePath = scene.Files[0].Path
	}
	result := match.Find(match.Scene{Title: scene.Title, FilePath: scenePath}, matchCandidates, w.pathmap)

	if result.Confidence == match.None {
		return &classify.NotFoundError{Msg: "no target match for scene " + job.SceneID}
	}
	if result.Confidence == match.Low && w.cfg.StrictMatching {
		// An ambiguous match can't be resolved by retrying: the same
		// candidates are still tied on the next attempt. DLQ it.
		return &classify.ValidationError{Msg: "only a low-confidence match for scene " + job.SceneID}
	}

	// A reconcile-sourced job carries a repair reason, not a field diff,
	// so it always gets a full write; an event-sourced job's payload (when
	// present) is the authoritative record of which fields actually
	// changed at the Source.
	var touched *writer.TouchedFields
	if job.JobType != "reconcile" {
		touched, err = writer.DecodeTouchedFields(job.Payload)
		if err != nil {
			return &classify.ValidationError{Msg: err.Error()}
		}
	}

	var existing *writer.ExistingItem
	for _, c := range candidates {
		if c.RatingKey == result.Candidate.ID {
			existing = &writer.ExistingItem{Title: c.Title, Summary: c.Summary}
			break
		}
	}

	if err := w.writer.Apply(ctx, result.Candidate.ID, scene, existing, touched); err != nil {
		return err
	}

	return w.store.SaveSyncTimestamp(ctx, job.SceneID, time.Now().UTC())
}
