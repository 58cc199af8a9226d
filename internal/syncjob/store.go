package syncjob

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed job queue. A single table holds every job
// regardless of status; Failed jobs simply remain in place and double as
// the dead-letter queue, mirroring the original single-table design.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_jobs (
	id          TEXT PRIMARY KEY,
	scene_id    TEXT NOT NULL,
	scene_path  TEXT NOT NULL,
	priority    INTEGER NOT NULL DEFAULT 0,
	job_type    TEXT NOT NULL,
	payload     BLOB,
	status      INTEGER NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT,
	error_kind  INTEGER,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs(status, priority DESC, created_at);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_scene ON sync_jobs(scene_id);

CREATE TABLE IF NOT EXISTS sync_timestamps (
	scene_id   TEXT PRIMARY KEY,
	synced_at  TIMESTAMP NOT NULL
);
`

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("syncjob: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("syncjob: migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Enqueue inserts a new job in the Ready state. Enqueuing an id that
// already exists (the DLQ recoverer re-enqueuing a Failed job) returns
// that row to Ready with the given attempt count and no last error.
func (s *Store) Enqueue(ctx context.Context, j Job) error {
	now := time.Now().UTC()
	j.Status = StatusReady
	j.CreatedAt, j.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, scene_id, scene_path, priority, job_type, payload, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, attempts = excluded.attempts,
			last_error = NULL, error_kind = NULL, updated_at = excluded.updated_at`,
		j.ID, j.SceneID, j.ScenePath, j.Priority, j.JobType, []byte(j.Payload), j.Status, j.Attempts, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("syncjob: enqueue %s: %w", j.ID, err)
	}
	return nil
}

// Claim atomically moves up to n Ready jobs, highest priority and oldest
// first, into InProgress and returns them.
func (s *Store) Claim(ctx context.Context, n int) ([]Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, scene_id, scene_path, priority, job_type, payload, status, attempts, last_error, error_kind, created_at, updated_at
		FROM sync_jobs WHERE status = ? ORDER BY priority DESC, created_at ASC LIMIT ?`,
		StatusReady, n)
	if err != nil {
		return nil, fmt.Errorf("syncjob: claim query: %w", err)
	}
	jobs, err := scanJobs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, `UPDATE sync_jobs SET status = ?, updated_at = ? WHERE id = ?`,
			StatusInProgress, now, j.ID); err != nil {
			return nil, fmt.Errorf("syncjob: claim update %s: %w", j.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Status = StatusInProgress
	}
	return jobs, nil
}

// Release returns a job to Ready without bumping its attempt counter,
// used when a claimed job could not even be attempted because the
// circuit breaker was open.
func (s *Store) Release(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusReady, "", 0, false)
}

// Ack marks a job Completed.
func (s *Store) Ack(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusCompleted, "", 0, false)
}

// Nack returns a job to Ready for another attempt, recording the error
// that caused the retry and bumping its attempt counter.
func (s *Store) Nack(ctx context.Context, id string, errMsg string, kind int) error {
	return s.setStatus(ctx, id, StatusReady, errMsg, kind, true)
}

// Fail moves a job to Failed — the dead-letter state — recording the
// terminal error.
func (s *Store) Fail(ctx context.Context, id string, errMsg string, kind int) error {
	return s.setStatus(ctx, id, StatusFailed, errMsg, kind, true)
}

func (s *Store) setStatus(ctx context.Context, id string, status Status, errMsg string, kind int, bumpAttempts bool) error {
	now := time.Now().UTC()
	q := `UPDATE sync_jobs SET status = ?, last_error = ?, error_kind = ?, updated_at = ?`
	args := []any{status, errMsg, kind, now}
	if bumpAttempts {
		q += `, attempts = attempts + 1`
	}
	q += ` WHERE id = ?`
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("syncjob: set status %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("syncjob: job %s not found", id)
	}
	return nil
}

// ReapStale returns InProgress jobs last touched before olderThan back to
// Ready without bumping their attempt counter, recovering jobs orphaned
// by a worker process that crashed or was killed mid-claim. It returns
// the number of jobs reaped.
func (s *Store) ReapStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sync_jobs SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		StatusReady, time.Now().UTC(), StatusInProgress, olderThan)
	if err != nil {
		return 0, fmt.Errorf("syncjob: reap stale: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarises job counts per status.
type Stats struct {
	Inited, Ready, InProgress, Completed, Failed int
}

// Stats returns current job counts grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_jobs GROUP BY status`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusInited:
			st.Inited = count
		case StatusReady:
			st.Ready = count
		case StatusInProgress:
			st.InProgress = count
		case StatusCompleted:
			st.Completed = count
		case StatusFailed:
			st.Failed = count
		}
	}
	return st, rows.Err()
}

// ClearPending deletes every job in a non-terminal state (Inited, Ready,
// InProgress), leaving Completed and Failed history intact. It returns
// the number of rows removed.
func (s *Store) ClearPending(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_jobs WHERE status IN (?, ?, ?)`,
		StatusInited, StatusReady, StatusInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeTerminalOlderThan deletes Completed and Failed jobs last updated
// before olderThan, enforcing the configured retention window on the
// queue's terminal history. It returns the number of rows removed.
func (s *Store) PurgeTerminalOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_jobs WHERE status IN (?, ?) AND updated_at < ?`,
		StatusCompleted, StatusFailed, olderThan)
	if err != nil {
		return 0, fmt.Errorf("syncjob: purge terminal: %w", err)
	}
	return res.RowsAffected()
}

// QueuedSceneIDs returns the set of scene IDs with a non-terminal job
// already queued, used to avoid enqueuing duplicate work for the same
// scene.
func (s *Store) QueuedSceneIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT scene_id FROM sync_jobs WHERE status IN (?, ?, ?)`,
		StatusInited, StatusReady, StatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// CompletedSceneIDsSince returns the set of scene IDs with a job
// completed at or after since, used to avoid re-detecting a gap an
// event-driven sync only just closed.
func (s *Store) CompletedSceneIDsSince(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT scene_id FROM sync_jobs WHERE status = ? AND updated_at >= ?`,
		StatusCompleted, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// FailedSince returns Failed jobs whose last update is at or after since,
// used by the DLQ recoverer to scope recovery to a given outage window.
func (s *Store) FailedSince(ctx context.Context, since time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scene_id, scene_path, priority, job_type, payload, status, attempts, last_error, error_kind, created_at, updated_at
		FROM sync_jobs WHERE status = ? AND updated_at >= ? ORDER BY updated_at ASC`,
		StatusFailed, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// LoadSyncTimestamp returns the last successful sync time recorded for a
// scene, or the zero time if none is recorded.
func (s *Store) LoadSyncTimestamp(ctx context.Context, sceneID string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT synced_at FROM sync_timestamps WHERE scene_id = ?`, sceneID).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return t, err
}

// SaveSyncTimestamp records the time a scene's metadata was last
// successfully synced.
func (s *Store) SaveSyncTimestamp(ctx context.Context, sceneID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_timestamps (scene_id, synced_at) VALUES (?, ?)
		ON CONFLICT(scene_id) DO UPDATE SET synced_at = excluded.synced_at`,
		sceneID, at.UTC())
	return err
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var j Job
		var payload []byte
		var lastError sql.NullString
		var errorKind sql.NullInt64
		if err := rows.Scan(&j.ID, &j.SceneID, &j.ScenePath, &j.Priority, &j.JobType, &payload,
			&j.Status, &j.Attempts, &lastError, &errorKind, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("syncjob: scan: %w", err)
		}
		j.Payload = json.RawMessage(payload)
		j.LastError = lastError.String
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
