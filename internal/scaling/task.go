// Package scaling implements the banner classification engine, the scaling
// orchestrator and the manual duplication worker, together with the task
// records that track their progress.
package scaling

import (
	"time"

	"github.com/google/uuid"
)

// TaskType distinguishes rule-driven runs from operator-requested ones.
type TaskType string

const (
	TaskAuto   TaskType = "auto"
	TaskManual TaskType = "manual"
)

// TaskStatus is the lifecycle state of a scaling task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is final. A terminal status is set
// exactly once and never changes afterwards.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskError is one structured failure within a run, with enough context for
// an operator to diagnose without re-running.
type TaskError struct {
	Message   string    `json:"message"`
	AccountID int64     `json:"account_id"`
	GroupID   int64     `json:"group_id"`
	GroupName string    `json:"group_name"`
	At        time.Time `json:"at"`
}

// Task is the mutable progress record of one scaling or duplication run.
// It has a single writer (the orchestrator goroutine driving the run); the
// API layer only reads it for status polling.
type Task struct {
	ID       string
	Type     TaskType
	ConfigID int64
	Status   TaskStatus

	TotalOperations      int
	CompletedOperations  int
	SuccessfulOperations int
	FailedOperations     int

	CurrentGroupID   int64
	CurrentGroupName string

	Errors    []TaskError
	LastError string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// NewTask creates a pending task.
func NewTask(taskType TaskType, configID int64) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		ConfigID:  configID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Start transitions the task to running.
func (t *Task) Start() {
	now := time.Now().UTC()
	t.Status = StatusRunning
	t.StartedAt = &now
}

// RecordSuccess accounts one completed, successful operation.
func (t *Task) RecordSuccess() {
	t.CompletedOperations++
	t.SuccessfulOperations++
}

// RecordFailure accounts one completed, failed operation and appends the
// structured error.
func (t *Task) RecordFailure(e TaskError) {
	t.CompletedOperations++
	t.FailedOperations++
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	t.Errors = append(t.Errors, e)
	t.LastError = e.Message
}

// FinalStatus computes the terminal status for the run. Partial success still
// reports completed; failed is reserved for runs where every attempted
// operation failed. A run with nothing to do completes.
func (t *Task) FinalStatus(cancelled bool) TaskStatus {
	if cancelled {
		return StatusCancelled
	}
	if t.FailedOperations == 0 || t.SuccessfulOperations > 0 {
		return StatusCompleted
	}
	return StatusFailed
}

// Finish sets the terminal status once. Subsequent calls are no-ops.
func (t *Task) Finish(cancelled bool) {
	if t.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	t.Status = t.FinalStatus(cancelled)
	t.FinishedAt = &now
}

// Fail forces the task into a failed terminal state; used at the task
// boundary when the run itself blew up.
func (t *Task) Fail(reason string) {
	if t.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.LastError = reason
	t.FinishedAt = &now
}
