// Package backoff computes retry delays for failed sync jobs.
package backoff

import (
	"math"
	"math/rand"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/classify"
)

// Params configures the exponential curve for one error kind.
type Params struct {
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultParams mirrors the retry posture the original worker used per
// error kind: Transient gets the short ladder, NotFound
// gets a much longer one since the target item may only appear after a
// library scan runs, and ServerDown caps high since the circuit breaker
// is already shedding load by the time these fire. Permanent errors are
// never actually retried — the worker routes them straight to the DLQ —
// so its MaxAttempts here only documents that a single attempt is all it
// gets.
var DefaultParams = map[classify.Kind]Params{
	classify.Transient:  {Base: 5 * time.Second, Max: 80 * time.Second, Multiplier: 2, MaxAttempts: 5},
	classify.ServerDown: {Base: 5 * time.Second, Max: 5 * time.Minute, Multiplier: 2, MaxAttempts: 5},
	classify.Permanent:  {Base: 0, Max: 0, Multiplier: 1, MaxAttempts: 1},
	classify.NotFound:   {Base: 30 * time.Second, Max: 600 * time.Second, Multiplier: 2, MaxAttempts: 12},
}

// Next returns a full-jitter delay for the given retry attempt (1-based)
// and error kind. Permanent never retries and returns 0.
func Next(kind classify.Kind, attempt int, params map[classify.Kind]Params) time.Duration {
	if params == nil {
		params = DefaultParams
	}
	p, ok := params[kind]
	if !ok || p.Base <= 0 || attempt < 1 {
		return 0
	}
	capped := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if capped > float64(p.Max) {
		capped = float64(p.Max)
	}
	return time.Duration(rand.Int63n(int64(capped) + 1))
}

// MaxAttemptsFor returns how many attempts a job of the given kind gets
// before it is routed to the DLQ.
func MaxAttemptsFor(kind classify.Kind, params map[classify.Kind]Params) int {
	if params == nil {
		params = DefaultParams
	}
	if p, ok := params[kind]; ok && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 1
}
