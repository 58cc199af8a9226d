// Package outage tracks a bounded history of Target outages for
// observability: mean time to recovery, mean time between failures, and
// availability over the retained window.
package outage

import (
	"time"

	"github.com/trek-e/stash2plex-sync/internal/state"
)

// maxRecords bounds the history to a fixed-size circular buffer, matching
// the retention window of the upstream outage tracker.
const maxRecords = 30

// Record describes a single outage, open (EndedAt zero) or closed.
type Record struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

func (r Record) open() bool { return r.EndedAt.IsZero() }

type persisted struct {
	Records []Record `json:"records"`
}

// History is a FIFO of at most maxRecords outages, persisted to disk.
type History struct {
	path string
	p    persisted
}

// Load reads outage history from path, starting empty if absent.
func Load(path string) (*History, error) {
	h := &History{path: path}
	if _, err := state.Load(path, &h.p); err != nil {
		return nil, err
	}
	return h, nil
}

// RecordStart opens a new outage record and evicts the oldest when the
// history exceeds its retention window.
func (h *History) RecordStart(at time.Time) {
	h.p.Records = append(h.p.Records, Record{StartedAt: at})
	if len(h.p.Records) > maxRecords {
		h.p.Records = h.p.Records[len(h.p.Records)-maxRecords:]
	}
	h.save()
}

// RecordEnd closes the most recent open outage record, if any. Calling it
// with no open record is a no-op.
func (h *History) RecordEnd(at time.Time) {
	for i := len(h.p.Records) - 1; i >= 0; i-- {
		if h.p.Records[i].open() {
			h.p.Records[i].EndedAt = at
			h.save()
			return
		}
	}
}

// Records returns a copy of the retained outage records, oldest first.
func (h *History) Records() []Record {
	out := make([]Record, len(h.p.Records))
	copy(out, h.p.Records)
	return out
}

// Stats summarises the retained outage history.
type Stats struct {
	Count        int
	MTTR         time.Duration // mean time to recovery across closed outages
	MTBF         time.Duration // mean time between the start of consecutive outages
	Availability float64       // fraction of the observed window spent not in an outage
}

// Summarize computes Stats over the retained history as of `now`.
func (h *History) Summarize(now time.Time) Stats {
	recs := h.p.Records
	if len(recs) == 0 {
		return Stats{Availability: 1}
	}

	var totalDown time.Duration
	closedCount := 0
	for _, r := range recs {
		end := r.EndedAt
		if r.open() {
			end = now
		} else {
			closedCount++
		}
		totalDown += end.Sub(r.StartedAt)
	}

	var mttr time.Duration
	if closedCount > 0 {
		var sum time.Duration
		for _, r := range recs {
			if !r.open() {
				sum += r.EndedAt.Sub(r.StartedAt)
			}
		}
		mttr = sum / time.Duration(closedCount)
	}

	var mtbf time.Duration
	if len(recs) > 1 {
		span := recs[len(recs)-1].StartedAt.Sub(recs[0].StartedAt)
		mtbf = span / time.Duration(len(recs)-1)
	}

	windowStart := recs[0].StartedAt
	window := now.Sub(windowStart)
	availability := 1.0
	if window > 0 {
		availability = 1 - float64(totalDown)/float64(window)
		if availability < 0 {
			availability = 0
		}
	}

	return Stats{Count: len(recs), MTTR: mttr, MTBF: mtbf, Availability: availability}
}

func (h *History) save() {
	_ = state.Save(h.path, h.p)
}
