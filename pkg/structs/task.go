package structs

import (
	"encoding/json"
	"strings"
	"time"
)

// TaskState is the state of a task in its lifecycle.
type TaskState string

const (
	// TaskCreated is the initial state; the task is durably queued but unclaimed.
	TaskCreated TaskState = "CREATED"

	// TaskStarted means a worker claimed the task and is (supposedly) running it.
	TaskStarted TaskState = "STARTED"

	// terminal states
	TaskSucceeded TaskState = "SUCCEEDED"
	TaskFailed    TaskState = "FAILED"
	TaskExpired   TaskState = "EXPIRED"
	TaskCancelled TaskState = "CANCELLED"
)

// taskTransitions is the single source of truth for legal state changes.
// Everything that mutates a task state checks this; there is no other place
// transition rules are encoded.
var taskTransitions = map[TaskState][]TaskState{
	TaskCreated: {TaskStarted, TaskCancelled, TaskExpired},
	TaskStarted: {TaskSucceeded, TaskFailed, TaskCancelled, TaskExpired},
}

// CanTransitionTask returns true if from -> to is a legal task transition.
func CanTransitionTask(from, to TaskState) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalTaskState returns true for states with no outgoing transitions.
func IsTerminalTaskState(s TaskState) bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskExpired, TaskCancelled:
		return true
	default:
		return false
	}
}

func ToTaskState(s string) TaskState {
	switch strings.ToUpper(s) {
	case "CREATED":
		return TaskCreated
	case "STARTED":
		return TaskStarted
	case "SUCCEEDED":
		return TaskSucceeded
	case "FAILED":
		return TaskFailed
	case "EXPIRED":
		return TaskExpired
	case "CANCELLED":
		return TaskCancelled
	default:
		return ""
	}
}

// TaskSpec are fields that can be set when a task is created
type TaskSpec struct {
	// Name is a human readable name for this task.
	Name string `json:"name"`

	// GroupKey is the dispatch routing key workers claim against. It may carry
	// a "prefix::suffix" structure; subscribers can listen on the prefix alone.
	GroupKey string `json:"group_key"`

	// Payload is opaque structured data handed to whatever executes the task.
	Payload json.RawMessage `json:"payload"`

	// RetryMax is the number of re-submissions callers may make for this task.
	// The engine itself never re-submits; the count only gates the caller.
	RetryMax int64 `json:"retry_max"`

	// RetryCount is which attempt this task is. Always <= RetryMax.
	RetryCount int64 `json:"retry_count"`

	// StartsAfter is the earliest time a worker may claim this task.
	StartsAfter time.Time `json:"starts_after"`

	// CreatedToStartedTimeoutSecs expires the task if no worker claims it in time.
	CreatedToStartedTimeoutSecs int64 `json:"created_to_started_timeout_secs"`

	// StartedToCompletedTimeoutSecs expires the task if it runs too long overall.
	StartedToCompletedTimeoutSecs int64 `json:"started_to_completed_timeout_secs"`

	// HeartbeatTimeoutSecs expires the task if its worker goes quiet.
	HeartbeatTimeoutSecs int64 `json:"heartbeat_timeout_secs"`

	// ScheduleID back-references the schedule that materialized this task, if any.
	// Deleting the schedule cascades to its tasks.
	ScheduleID string `json:"schedule_id,omitempty"`
}

// Task represents a single unit of schedulable work with its own state machine.
type Task struct {
	// TaskSpec are fields that can be set when a task is created
	TaskSpec `json:",inline"`

	// ID is a unique identifier for this task
	ID string `json:"id"`

	// State is the current state of this task
	State TaskState `json:"state"`

	// CreatedAt is the time this task was created
	CreatedAt time.Time `json:"created_at"`

	// LastStateTransitionAt is the time of the last state change
	LastStateTransitionAt time.Time `json:"last_state_transition_at"`

	// LastHeartbeatAt is the last time the claiming worker reported liveness
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`

	// Output is set only when the task reaches a terminal state
	Output json.RawMessage `json:"output,omitempty"`

	// Terminated marks that no further transition is permitted
	Terminated bool `json:"terminated"`
}

// RetryEligible reports whether a FAILED task may be re-submitted by the caller.
func (t *Task) RetryEligible() bool {
	return t.State == TaskFailed && t.RetryCount < t.RetryMax
}

// GroupPrefix returns the routing prefix of a "prefix::suffix" group key,
// or the whole key if it carries no suffix.
func GroupPrefix(groupKey string) string {
	if i := strings.Index(groupKey, "::"); i >= 0 {
		return groupKey[:i]
	}
	return groupKey
}
