// Package syncjob implements the durable job queue: a single SQLite table
// holding one row per sync job, with a small status state machine modeled
// on the ack-queue pattern of persistent work queues — Inited jobs become
// Ready, a worker claims a Ready job into InProgress, and it resolves to
// either Completed or Failed.
package syncjob

import (
	"encoding/json"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/classify"
)

// Status is the lifecycle state of a queued job.
type Status int

// Status values mirror the ack-queue convention this store's SQLite schema
// was modeled on, kept numerically distinct (not sequential) so a stray
// off-by-one in a migration can't silently relabel a state.
const (
	StatusInited     Status = 0
	StatusReady      Status = 1
	StatusInProgress Status = 2
	StatusCompleted  Status = 5
	StatusFailed     Status = 9
)

func (s Status) String() string {
	switch s {
	case StatusInited:
		return "inited"
	case StatusReady:
		return "ready"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one unit of sync work: bring one Source scene's metadata in line
// with the Target.
type Job struct {
	ID         string          `json:"id"`
	SceneID    string          `json:"scene_id"`
	ScenePath  string          `json:"scene_path"`
	Priority   int             `json:"priority"`
	JobType    string          `json:"job_type"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorKind  classify.Kind   `json:"error_kind,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
