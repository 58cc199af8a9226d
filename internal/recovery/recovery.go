// Package recovery drives Target outage detection and probing on a
// check-on-invocation basis: there are no background timers, since the
// plugin only runs for the duration of a single request. Each invocation
// asks the scheduler whether enough time has elapsed to justify a probe.
package recovery

import (
	"time"

	"github.com/trek-e/stash2plex-sync/internal/breaker"
	"github.com/trek-e/stash2plex-sync/internal/outage"
	"github.com/trek-e/stash2plex-sync/internal/ratelimit"
	"github.com/trek-e/stash2plex-sync/internal/state"
)

// ProbeInterval is how often a HalfOpen probe is attempted while the
// Target is considered down.
const ProbeInterval = 5 * time.Second

type persisted struct {
	LastProbeAt       time.Time `json:"last_probe_at"`
	LastRecoveryTime  time.Time `json:"last_recovery_time"`
	RecoveryStartedAt time.Time `json:"recovery_started_at"`
	OutageOpen        bool      `json:"outage_open"`
}

// Scheduler coordinates the breaker, outage history, and rate limiter
// around a single Target health signal.
type Scheduler struct {
	path    string
	p       persisted
	breaker *breaker.CircuitBreaker
	history *outage.History
	limiter *ratelimit.Limiter
}

// New loads scheduler state from path.
func New(path string, b *breaker.CircuitBreaker, h *outage.History, l *ratelimit.Limiter) (*Scheduler, error) {
	s := &Scheduler{path: path, breaker: b, history: h, limiter: l}
	if _, err := state.Load(path, &s.p); err != nil {
		return nil, err
	}
	return s, nil
}

// ShouldProbe reports whether enough time has elapsed since the last
// probe attempt to justify another one. It does not consult the breaker's
// own cooldown — callers are expected to check breaker.Allow() as well.
func (s *Scheduler) ShouldProbe(now time.Time) bool {
	if s.p.LastProbeAt.IsZero() {
		return true
	}
	return now.Sub(s.p.LastProbeAt) >= ProbeInterval
}

// RecordProbeAttempt stamps the probe clock regardless of outcome.
func (s *Scheduler) RecordProbeAttempt(now time.Time) {
	s.p.LastProbeAt = now
	s.save()
}

// RecordOutageDetected opens an outage record the first time the breaker
// trips; repeated calls while already open are no-ops.
func (s *Scheduler) RecordOutageDetected(now time.Time) {
	if s.p.OutageOpen {
		return
	}
	s.p.OutageOpen = true
	s.history.RecordStart(now)
	s.save()
}

// RecordRecovered closes the outage record and starts the rate limiter's
// recovery ramp. Both last_recovery_time and recovery_started_at are
// stamped with `now`; the latter is what the rate limiter reads to know
// when the ramp began.
func (s *Scheduler) RecordRecovered(now time.Time) {
	if s.p.OutageOpen {
		s.history.RecordEnd(now)
	}
	s.p.OutageOpen = false
	s.p.LastRecoveryTime = now
	s.p.RecoveryStartedAt = now
	s.save()
	s.limiter.StartRecovery(now)
}

// ClearRecoveryPeriod ends the ramp early, e.g. an operator override.
func (s *Scheduler) ClearRecoveryPeriod() {
	s.p.RecoveryStartedAt = time.Time{}
	s.save()
	s.limiter.ClearRecovery()
}

// IsOutageOpen reports whether the scheduler believes the Target is
// currently down.
func (s *Scheduler) IsOutageOpen() bool { return s.p.OutageOpen }

func (s *Scheduler) save() {
	_ = state.Save(s.path, s.p)
}
