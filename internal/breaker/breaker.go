// Copyright 2025 James Ross
package breaker

import (
	"sync"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/state"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// persisted is the on-disk representation, reloaded on every plugin
// invocation so the breaker's trip state survives across the
// per-request process lifetime.
type persisted struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at"`
	LastFailureAt       time.Time `json:"last_failure_at"`
	HalfOpenInFlight    bool      `json:"half_open_in_flight"`
}

// CircuitBreaker trips to Open after failureThresh consecutive failures,
// moves to HalfOpen once cooldown has elapsed, and allows exactly one
// probe through in HalfOpen. A successful probe closes it; a failed probe
// reopens it and restarts the cooldown. Unlike a sliding-window breaker,
// state is tracked as a simple consecutive-failure count, matching the
// upstream system this one replaced.
type CircuitBreaker struct {
	mu            sync.Mutex
	path          string
	cooldown      time.Duration
	failureThresh int
	p             persisted
}

// New loads breaker state from path, or starts Closed if no state file
// exists yet.
func New(path string, cooldown time.Duration, failureThresh int) (*CircuitBreaker, error) {
	cb := &CircuitBreaker{path: path, cooldown: cooldown, failureThresh: failureThresh}
	if _, err := state.Load(path, &cb.p); err != nil {
		return nil, err
	}
	return cb, nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.p.State
}

// Allow reports whether a call should proceed, performing the
// Open->HalfOpen transition as a side effect once cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.p.State {
	case Open:
		if time.Since(cb.p.OpenedAt) >= cb.cooldown {
			cb.p.State = HalfOpen
			cb.p.HalfOpenInFlight = true
			cb.save()
			return true
		}
		return false
	case HalfOpen:
		if cb.p.HalfOpenInFlight {
			return false
		}
		cb.p.HalfOpenInFlight = true
		cb.save()
		return true
	default:
		return true
	}
}

// Record reports the outcome of a call Allow permitted.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()

	if ok {
		cb.p.ConsecutiveFailures = 0
		cb.p.State = Closed
		cb.p.HalfOpenInFlight = false
		cb.save()
		return
	}

	cb.p.ConsecutiveFailures++
	cb.p.LastFailureAt = now

	switch cb.p.State {
	case HalfOpen:
		cb.p.State = Open
		cb.p.OpenedAt = now
		cb.p.HalfOpenInFlight = false
	case Closed:
		if cb.p.ConsecutiveFailures >= cb.failureThresh {
			cb.p.State = Open
			cb.p.OpenedAt = now
		}
	}
	cb.save()
}

func (cb *CircuitBreaker) save() {
	_ = state.Save(cb.path, cb.p)
}
