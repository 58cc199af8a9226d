// Package reconcile implements gap detection: an out-of-band scan that
// finds scenes the event-driven sync path missed (empty metadata, stale
// syncs, scenes never pushed to the Target) and enqueues repair jobs.
package reconcile

import (
	"time"

	"github.com/trek-e/stash2plex-sync/internal/state"
)

// intervalDurations maps a configured interval name to a concrete
// duration. "never" is intentionally absent: IsDue always returns false
// for it, handled as a special case below.
var intervalDurations = map[string]time.Duration{
	"hourly": time.Hour,
	"daily":  24 * time.Hour,
	"weekly": 7 * 24 * time.Hour,
}

// scopeWindows maps a reconcile scope name to the lookback window used
// when querying the Source for candidate scenes. "all" has no window.
var scopeWindows = map[string]time.Duration{
	"24h":   24 * time.Hour,
	"7days": 7 * 24 * time.Hour,
}

// startupGracePeriod is how long since the last reconcile run before a
// run is "due at startup", used to catch up after a period the plugin
// was not invoked at all (e.g. Source was offline).
const startupGracePeriod = time.Hour

type persistedSchedule struct {
	LastRunAt time.Time `json:"last_run_at"`
}

// Scheduler decides whether a reconcile pass is due.
type Scheduler struct {
	path     string
	interval string
	p        persistedSchedule
}

// NewScheduler loads schedule state from path.
func NewScheduler(path, interval string) (*Scheduler, error) {
	s := &Scheduler{path: path, interval: interval}
	if _, err := state.Load(path, &s.p); err != nil {
		return nil, err
	}
	return s, nil
}

// IsDue reports whether enough time has elapsed since the last run to
// justify another one, per the configured interval.
func (s *Scheduler) IsDue(now time.Time) bool {
	if s.interval == "never" {
		return false
	}
	d, ok := intervalDurations[s.interval]
	if !ok {
		return false
	}
	if s.p.LastRunAt.IsZero() {
		return true
	}
	return now.Sub(s.p.LastRunAt) >= d
}

// IsStartupDue reports whether the plugin has gone at least
// startupGracePeriod without a reconcile run, so one fires on this
// invocation even if the regular interval hasn't elapsed, catching up
// after extended downtime.
func (s *Scheduler) IsStartupDue(now time.Time) bool {
	if s.interval == "never" {
		return false
	}
	if s.p.LastRunAt.IsZero() {
		return true
	}
	if _, ok := intervalDurations[s.interval]; !ok {
		return false
	}
	return now.Sub(s.p.LastRunAt) >= startupGracePeriod
}

// RecordRun stamps the schedule with the time a reconcile pass completed.
func (s *Scheduler) RecordRun(at time.Time) {
	s.p.LastRunAt = at
	_ = state.Save(s.path, s.p)
}

// ScopeWindow returns the lookback window for a reconcile scope, or zero
// (no window, meaning "all time") for "all" or an unrecognised scope.
func ScopeWindow(scope string) time.Duration {
	return scopeWindows[scope]
}
