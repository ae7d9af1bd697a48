package structs

import (
	"encoding/json"
	"strings"
	"time"
)

// ScheduleState is the state of a recurring schedule.
type ScheduleState string

const (
	ScheduleStarted ScheduleState = "STARTED"
	SchedulePaused  ScheduleState = "PAUSED"
	ScheduleDeleted ScheduleState = "DELETED"
)

var scheduleTransitions = map[ScheduleState][]ScheduleState{
	ScheduleStarted: {SchedulePaused, ScheduleDeleted},
	SchedulePaused:  {ScheduleStarted, ScheduleDeleted},
}

// CanTransitionSchedule returns true if from -> to is a legal schedule transition.
func CanTransitionSchedule(from, to ScheduleState) bool {
	for _, s := range scheduleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ToScheduleState(s string) ScheduleState {
	switch strings.ToUpper(s) {
	case "STARTED":
		return ScheduleStarted
	case "PAUSED":
		return SchedulePaused
	case "DELETED":
		return ScheduleDeleted
	default:
		return ""
	}
}

// ScheduleSpec are fields that can be set when a schedule is created.
// Task-shaped fields are the template copied onto each materialized task.
type ScheduleSpec struct {
	// Name uniquely identifies the schedule.
	Name string `json:"name"`

	// GroupKey is copied onto materialized tasks.
	GroupKey string `json:"group_key"`

	// Payload is the template copied onto materialized tasks.
	Payload json.RawMessage `json:"payload"`

	// StartsAt anchors the recurrence; due windows are counted from here.
	StartsAt time.Time `json:"starts_at"`

	// FrequencySecs is the recurrence interval in seconds.
	FrequencySecs int64 `json:"frequency_secs"`

	RetryMax                      int64 `json:"retry_max"`
	CreatedToStartedTimeoutSecs   int64 `json:"created_to_started_timeout_secs"`
	StartedToCompletedTimeoutSecs int64 `json:"started_to_completed_timeout_secs"`
	HeartbeatTimeoutSecs          int64 `json:"heartbeat_timeout_secs"`
}

// Schedule is a recurring template that periodically materializes Tasks.
type Schedule struct {
	ScheduleSpec `json:",inline"`

	ID    string        `json:"id"`
	State ScheduleState `json:"state"`

	// LastScheduledTaskID is the most recently materialized task, if any.
	LastScheduledTaskID string `json:"last_scheduled_task_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Frequency returns the recurrence interval as a duration.
func (s *Schedule) Frequency() time.Duration {
	return time.Duration(s.FrequencySecs) * time.Second
}

// DueBoundary is the start of the current recurrence window:
// startsAt + floor((now - startsAt) / frequency) * frequency.
func (s *Schedule) DueBoundary(now time.Time) time.Time {
	freq := s.Frequency()
	if freq <= 0 || now.Before(s.StartsAt) {
		return s.StartsAt
	}
	elapsed := now.Sub(s.StartsAt)
	return s.StartsAt.Add(elapsed - (elapsed % freq))
}

// Due reports whether the schedule should materialize a task right now, given
// its most recently materialized task (nil if it never ran).
//
// A schedule is due if it is STARTED, its start time has passed, and either it
// never produced a task or its last task is terminal and was started strictly
// before the current window boundary. A task started exactly at the boundary
// counts as this window's run, so the schedule fires on the next window.
func (s *Schedule) Due(now time.Time, last *Task) bool {
	if s.State != ScheduleStarted || s.DeletedAt != nil {
		return false
	}
	if s.StartsAt.After(now) {
		return false
	}
	if last == nil {
		return true
	}
	if !last.Terminated {
		return false
	}
	return last.StartsAfter.Before(s.DueBoundary(now))
}

// NewTask builds the task this schedule materializes for the current window.
// The caller supplies the id and timestamps.
func (s *Schedule) NewTask(id string, now time.Time) *Task {
	return &Task{
		TaskSpec: TaskSpec{
			Name:                          s.Name,
			GroupKey:                      s.GroupKey,
			Payload:                       s.Payload,
			RetryMax:                      s.RetryMax,
			RetryCount:                    0,
			StartsAfter:                   now,
			CreatedToStartedTimeoutSecs:   s.CreatedToStartedTimeoutSecs,
			StartedToCompletedTimeoutSecs: s.StartedToCompletedTimeoutSecs,
			HeartbeatTimeoutSecs:          s.HeartbeatTimeoutSecs,
			ScheduleID:                    s.ID,
		},
		ID:                    id,
		State:                 TaskCreated,
		CreatedAt:             now,
		LastStateTransitionAt: now,
		LastHeartbeatAt:       now,
	}
}
