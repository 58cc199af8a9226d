// Package ratelimit implements the post-recovery ramp limiter: after an
// outage clears, requests are throttled back up from an initial rate to
// the target rate over a fixed ramp duration. Outside of a recovery
// period no throttling is applied at all — this mirrors the upstream
// limiter exactly, which is intentionally a no-op in steady state.
package ratelimit

import (
	"sync"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/state"
)

// Config tunes the ramp curve.
type Config struct {
	InitialRate       float64       // requests/sec at the start of the ramp
	TargetRate        float64       // requests/sec once the ramp completes
	RampDuration      time.Duration // time to go from InitialRate to TargetRate
	ErrorRateWindow   int           // number of recent outcomes used for the rolling error rate
	ErrorRateThresh   float64       // rolling error rate that triggers adaptive backoff
	AdaptiveBackoffPct float64      // fraction to cut the current rate by when ErrorRateThresh is exceeded
}

// DefaultConfig matches the original recovery limiter's tuning.
var DefaultConfig = Config{
	InitialRate:        5,
	TargetRate:         20,
	RampDuration:       5 * time.Minute,
	ErrorRateWindow:    20,
	ErrorRateThresh:    0.3,
	AdaptiveBackoffPct: 0.5,
}

type persisted struct {
	RecoveryStartedAt time.Time `json:"recovery_started_at"`
	LastAllowedAt     time.Time `json:"last_allowed_at"`
	CurrentRateCutPct float64   `json:"current_rate_cut_pct"`
}

// Limiter is the recovery-ramp rate limiter. It is safe to share across
// goroutines but, like the breaker, is designed to be reloaded fresh on
// every per-request plugin invocation.
type Limiter struct {
	mu     sync.Mutex
	path   string
	cfg    Config
	p      persisted
	recent []bool // true = success, ring of the last ErrorRateWindow outcomes
}

// Load reads limiter state from path, starting un-throttled if absent.
func Load(path string, cfg Config) (*Limiter, error) {
	l := &Limiter{path: path, cfg: cfg}
	if _, err := state.Load(path, &l.p); err != nil {
		return nil, err
	}
	return l, nil
}

// StartRecovery begins a new ramp period, called when the circuit breaker
// transitions from HalfOpen to Closed after a successful probe.
func (l *Limiter) StartRecovery(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p.RecoveryStartedAt = now
	l.p.CurrentRateCutPct = 0
	l.save()
}

// ClearRecovery ends the ramp, returning the limiter to its unthrottled
// steady state.
func (l *Limiter) ClearRecovery() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p.RecoveryStartedAt = time.Time{}
	l.save()
}

// InRecovery reports whether a ramp is currently active.
func (l *Limiter) InRecovery(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inRecovery(now)
}

func (l *Limiter) inRecovery(now time.Time) bool {
	if l.p.RecoveryStartedAt.IsZero() {
		return false
	}
	return now.Sub(l.p.RecoveryStartedAt) < l.cfg.RampDuration
}

// ShouldWait returns how long the caller must wait before the next request
// is allowed. Outside of a recovery period this is always zero — the
// limiter applies no steady-state throttling at all.
func (l *Limiter) ShouldWait(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.inRecovery(now) {
		return 0
	}

	rate := l.currentRate(now)
	if rate <= 0 {
		return time.Hour
	}
	interval := time.Duration(float64(time.Second) / rate)
	if l.p.LastAllowedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(l.p.LastAllowedAt)
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// RecordAllowed marks that a request was just let through, advancing the
// pacing clock used by ShouldWait.
func (l *Limiter) RecordAllowed(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p.LastAllowedAt = now
	l.save()
}

// RecordOutcome feeds the rolling error-rate window that drives adaptive
// backoff during a ramp. It is a no-op outside of a recovery period.
func (l *Limiter) RecordOutcome(now time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.inRecovery(now) {
		return
	}
	l.recent = append(l.recent, ok)
	if len(l.recent) > l.cfg.ErrorRateWindow {
		l.recent = l.recent[len(l.recent)-l.cfg.ErrorRateWindow:]
	}
	if len(l.recent) < l.cfg.ErrorRateWindow {
		return
	}
	failures := 0
	for _, o := range l.recent {
		if !o {
			failures++
		}
	}
	errRate := float64(failures) / float64(len(l.recent))
	if errRate >= l.cfg.ErrorRateThresh && l.p.CurrentRateCutPct == 0 {
		l.p.CurrentRateCutPct = l.cfg.AdaptiveBackoffPct
		l.save()
	}
}

// currentRate computes the linearly-interpolated ramp rate at `now`,
// scaled down by any adaptive backoff cut in effect.
func (l *Limiter) currentRate(now time.Time) float64 {
	elapsed := now.Sub(l.p.RecoveryStartedAt)
	frac := float64(elapsed) / float64(l.cfg.RampDuration)
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	rate := l.cfg.InitialRate + frac*(l.cfg.TargetRate-l.cfg.InitialRate)
	if l.p.CurrentRateCutPct > 0 {
		rate *= 1 - l.p.CurrentRateCutPct
	}
	return rate
}

func (l *Limiter) save() {
	_ = state.Save(l.path, l.p)
}
