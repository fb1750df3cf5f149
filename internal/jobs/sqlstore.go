package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SQLStore keeps job history in the server_jobs table so it survives restarts.
// Writes are serialised in-process; the store assumes a single manager owns the database.
type SQLStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLStore wraps a migrated database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const jobColumns = `id, server_name, operation, status, progress, message, error, started_at, completed_at, result`

func (s *SQLStore) Create(job *ServerJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM server_jobs WHERE id = ?`, job.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}

	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO server_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(id string) (*ServerJob, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM server_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func (s *SQLStore) Update(id string, mutate func(job *ServerJob) error) (*ServerJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return current, ErrJobFinalized
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return current, err
	}
	if err := checkTransition(current, next); err != nil {
		return current, err
	}

	var completedAt any
	if next.CompletedAt != nil {
		completedAt = next.CompletedAt.UnixMilli()
	}
	result, err := encodeResult(next.Result)
	if err != nil {
		return current, err
	}

	_, err = s.db.Exec(`
		UPDATE server_jobs
		SET status = ?, progress = ?, message = ?, error = ?, completed_at = ?, result = ?
		WHERE id = ?
	`, string(next.Status), next.Progress, next.Message, next.Error, completedAt, result, id)
	if err != nil {
		return current, fmt.Errorf("failed to update job: %w", err)
	}

	return next, nil
}

func (s *SQLStore) ActiveForServer(serverName string) (*ServerJob, bool) {
	row := s.db.QueryRow(`
		SELECT `+jobColumns+` FROM server_jobs
		WHERE server_name = ? AND status IN (?, ?)
		ORDER BY started_at ASC, id ASC
		LIMIT 1
	`, serverName, string(StatusPending), string(StatusRunning))

	job, err := scanJob(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("active job lookup failed", "component", "jobs", "server", serverName, "error", err)
		}
		return nil, false
	}
	return job, true
}

func (s *SQLStore) List() []*ServerJob {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM server_jobs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		slog.Warn("job list failed", "component", "jobs", "error", err)
		return []*ServerJob{}
	}
	defer rows.Close()

	result := make([]*ServerJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			slog.Warn("job row scan failed", "component", "jobs", "error", err)
			continue
		}
		result = append(result, job)
	}
	return result
}

func (s *SQLStore) Prune(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM server_jobs
		WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`, string(StatusCompleted), string(StatusFailed), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FailInterrupted fails every job left active by a previous process. Their
// goroutines no longer exist, so they could never reach a terminal state.
func (s *SQLStore) FailInterrupted(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE server_jobs
		SET status = ?, message = 'Failed', error = 'interrupted by manager restart', completed_at = ?
		WHERE status IN (?, ?)
	`, string(StatusFailed), now.UnixMilli(), string(StatusPending), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*ServerJob, error) {
	var (
		job         ServerJob
		operation   string
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		result      sql.NullString
	)
	err := row.Scan(&job.ID, &job.ServerName, &operation, &status, &job.Progress,
		&job.Message, &job.Error, &startedAt, &completedAt, &result)
	if err != nil {
		return nil, err
	}

	job.Operation = Operation(operation)
	job.Status = Status(status)
	job.StartedAt = time.UnixMilli(startedAt)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		job.CompletedAt = &t
	}
	if result.Valid && result.String != "" {
		var r Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		job.Result = &r
	}
	return &job, nil
}

func jobArgs(job *ServerJob) ([]any, error) {
	var completedAt any
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.UnixMilli()
	}
	result, err := encodeResult(job.Result)
	if err != nil {
		return nil, err
	}
	return []any{
		job.ID, job.ServerName, string(job.Operation), string(job.Status), job.Progress,
		job.Message, job.Error, job.StartedAt.UnixMilli(), completedAt, result,
	}, nil
}

func encodeResult(r *Result) (any, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}
	return string(data), nil
}
