package pipeline

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task context. Transitions are monotonic
// except AWAITING_EXTERNAL_INPUT, which re-enters RUNNING on resume.
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusAwaitingInput Status = "awaiting_external_input"
	StatusCompleted     Status = "completed"
	StatusPartial       Status = "partial"
	StatusFailed        Status = "failed"
)

// Terminal reports whether the status can never be resumed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome classifies a single stage attempt in the history log.
type Outcome string

const (
	OutcomeSucceeded         Outcome = "succeeded"
	OutcomeTransientFailure  Outcome = "transient_failure"
	OutcomePermanentFailure  Outcome = "permanent_failure"
	OutcomeContractViolation Outcome = "contract_violation"
	OutcomeLowConfidence     Outcome = "low_confidence"
)

// Attempt is one history record: a single invocation of a stage's capability.
type Attempt struct {
	Stage     string    `json:"stage"`
	Attempt   int       `json:"attempt"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskError is the structured error carried by a halted context.
// It is the only failure channel crossing the orchestration boundary.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// Context is the mutable record threaded through a pipeline run.
// Fields accumulate across stages and never lose a key once written;
// History is append-only audit evidence of every attempt.
type Context struct {
	TaskID       uuid.UUID      `json:"task_id"`
	OwnerID      string         `json:"owner_id"`
	Status       Status         `json:"status"`
	CurrentStage string         `json:"current_stage,omitempty"`
	Fields       map[string]any `json:"fields"`
	Error        *TaskError     `json:"error,omitempty"`
	History      []Attempt      `json:"history"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewContext creates a pending context for the given task and owner
// with empty fields and history.
func NewContext(taskID uuid.UUID, ownerID string) *Context {
	now := time.Now().UTC()
	return &Context{
		TaskID:    taskID,
		OwnerID:   ownerID,
		Status:    StatusPending,
		Fields:    make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns an independent snapshot copy. Field values are treated as
// immutable once written, so the fields map is copied one level deep.
func (c *Context) Clone() *Context {
	clone := *c
	clone.Fields = maps.Clone(c.Fields)
	clone.History = slices.Clone(c.History)
	if c.Error != nil {
		e := *c.Error
		clone.Error = &e
	}
	return &clone
}

// Field returns the named accumulated field value.
func (c *Context) Field(key string) (any, bool) {
	v, ok := c.Fields[key]
	return v, ok
}

// SetField writes a field value. Used by callers supplying externally
// verified data before resuming a suspended pipeline.
func (c *Context) SetField(key string, value any) {
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}
	c.Fields[key] = value
}

// Attempts counts history records for the named stage.
func (c *Context) Attempts(stage string) int {
	count := 0
	for _, a := range c.History {
		if a.Stage == stage {
			count++
		}
	}
	return count
}

func (c *Context) record(stage string, attempt int, outcome Outcome, detail string) {
	c.History = append(c.History, Attempt{
		Stage:     stage,
		Attempt:   attempt,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Context) halt(status Status, kind ErrorKind, stage, message string) {
	c.Status = status
	c.Error = &TaskError{
		Kind:    kind,
		Stage:   stage,
		Message: message,
	}
}
