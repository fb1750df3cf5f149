// Package jobs tracks asynchronous server lifecycle operations.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation is the lifecycle action a job performs.
type Operation string

const (
	OperationStart Operation = "start"
	OperationStop  Operation = "stop"
)

// Status is the position of a job in its state machine:
// pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether the job is still pending or running.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobFinalized = errors.New("job already finished")
	ErrJobExists    = errors.New("job already exists")
)

// Result is the payload stored on a completed job.
type Result struct {
	PID     int    `json:"pid,omitempty"`
	Session string `json:"session,omitempty"`
}

// ServerJob is one tracked invocation of a lifecycle operation.
type ServerJob struct {
	ID          string     `json:"id"`
	ServerName  string     `json:"server_name"`
	Operation   Operation  `json:"operation"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
}

// New creates a pending job for serverName.
func New(op Operation, serverName string, now time.Time) *ServerJob {
	return &ServerJob{
		ID:         NewID(op, now),
		ServerName: serverName,
		Operation:  op,
		Status:     StatusPending,
		Message:    "Queued",
		StartedAt:  now,
	}
}

// NewID returns an id of the form <operation>-<epochMillis>-<rand>.
func NewID(op Operation, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", op, now.UnixMilli(), uuid.NewString()[:8])
}

// Clone returns a deep copy safe to hand to callers.
func (j *ServerJob) Clone() *ServerJob {
	if j == nil {
		return nil
	}
	clone := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		clone.Result = &r
	}
	return &clone
}

// Advance moves a running job to a later stage. Progress never decreases and
// never reaches 100 here; 100 is reserved for Complete.
func (j *ServerJob) Advance(progress int, message string) {
	if progress > 99 {
		progress = 99
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.Message = message
}

// Complete marks the job as successfully finished.
func (j *ServerJob) Complete(message string, result *Result, now time.Time) {
	j.Status = StatusCompleted
	j.Progress = 100
	j.Message = message
	j.Error = ""
	j.Result = result
	j.CompletedAt = &now
}

// Fail marks the job as failed, freezing its progress.
func (j *ServerJob) Fail(errMsg string, now time.Time) {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	j.Status = StatusFailed
	j.Message = "Failed"
	j.Error = errMsg
	j.Result = nil
	j.CompletedAt = &now
}
