package structs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionSchedule(t *testing.T) {
	cases := []struct {
		Name   string
		From   ScheduleState
		To     ScheduleState
		Expect bool
	}{
		{Name: "StartedToPaused", From: ScheduleStarted, To: SchedulePaused, Expect: true},
		{Name: "StartedToDeleted", From: ScheduleStarted, To: ScheduleDeleted, Expect: true},
		{Name: "PausedToStarted", From: SchedulePaused, To: ScheduleStarted, Expect: true},
		{Name: "PausedToDeleted", From: SchedulePaused, To: ScheduleDeleted, Expect: true},
		{Name: "DeletedIsFinal", From: ScheduleDeleted, To: ScheduleStarted, Expect: false},
		{Name: "NoSelfTransition", From: ScheduleStarted, To: ScheduleStarted, Expect: false},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, CanTransitionSchedule(c.From, c.To))
		})
	}
}

func TestDueBoundary(t *testing.T) {
	startsAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Schedule{ScheduleSpec: ScheduleSpec{StartsAt: startsAt, FrequencySecs: 3600}}

	cases := []struct {
		Name   string
		Now    time.Time
		Expect time.Time
	}{
		{Name: "BeforeStart", Now: startsAt.Add(-time.Minute), Expect: startsAt},
		{Name: "AtStart", Now: startsAt, Expect: startsAt},
		{Name: "MidWindow", Now: startsAt.Add(30 * time.Minute), Expect: startsAt},
		{Name: "ExactBoundary", Now: startsAt.Add(time.Hour), Expect: startsAt.Add(time.Hour)},
		{Name: "PastBoundary", Now: startsAt.Add(90 * time.Minute), Expect: startsAt.Add(time.Hour)},
		{Name: "ManyWindowsLater", Now: startsAt.Add(100*time.Hour + time.Minute), Expect: startsAt.Add(100 * time.Hour)},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, s.DueBoundary(c.Now))
		})
	}
}

func TestDue(t *testing.T) {
	startsAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mkSchedule := func(state ScheduleState) *Schedule {
		return &Schedule{
			ScheduleSpec: ScheduleSpec{StartsAt: startsAt, FrequencySecs: 3600},
			State:        state,
		}
	}
	terminalTask := func(startsAfter time.Time) *Task {
		return &Task{TaskSpec: TaskSpec{StartsAfter: startsAfter}, State: TaskSucceeded, Terminated: true}
	}

	cases := []struct {
		Name   string
		Given  *Schedule
		Now    time.Time
		Last   *Task
		Expect bool
	}{
		{
			Name:   "NeverRanAndStarted",
			Given:  mkSchedule(ScheduleStarted),
			Now:    startsAt.Add(time.Minute),
			Expect: true,
		},
		{
			Name:   "NotYetStartsAt",
			Given:  mkSchedule(ScheduleStarted),
			Now:    startsAt.Add(-time.Minute),
			Expect: false,
		},
		{
			Name:   "PausedNeverDue",
			Given:  mkSchedule(SchedulePaused),
			Now:    startsAt.Add(time.Minute),
			Expect: false,
		},
		{
			Name:   "LastTaskStillRunning",
			Given:  mkSchedule(ScheduleStarted),
			Now:    startsAt.Add(2 * time.Hour),
			Last:   &Task{TaskSpec: TaskSpec{StartsAfter: startsAt}, State: TaskStarted},
			Expect: false,
		},
		{
			Name:   "LastTaskTerminalPreviousWindow",
			Given:  mkSchedule(ScheduleStarted),
			Now:    startsAt.Add(90 * time.Minute),
			Last:   terminalTask(startsAt),
			Expect: true,
		},
		{
			Name:   "LastTaskTerminalThisWindow",
			Given:  mkSchedule(ScheduleStarted),
			Now:    startsAt.Add(90 * time.Minute),
			Last:   terminalTask(startsAt.Add(70 * time.Minute)),
			Expect: false,
		},
		{
			// a task started exactly at the window boundary counts as that
			// window's run; the schedule fires on the next window
			Name:   "LastTaskExactlyAtBoundary",
			Given:  mkSchedule(ScheduleStarted),
			Now:    startsAt.Add(time.Hour),
			Last:   terminalTask(startsAt.Add(time.Hour)),
			Expect: false,
		},
		{
			Name:   "BoundaryTaskDueNextWindow",
			Given:  mkSchedule(ScheduleStarted),
			Now:    startsAt.Add(2 * time.Hour),
			Last:   terminalTask(startsAt.Add(time.Hour)),
			Expect: true,
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, c.Given.Due(c.Now, c.Last))
		})
	}
}

func TestDueFiresOncePerWindow(t *testing.T) {
	// sweep a day in minute steps; however often the check runs, each window
	// materializes at most one task
	startsAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Schedule{
		ScheduleSpec: ScheduleSpec{StartsAt: startsAt, FrequencySecs: 3600},
		State:        ScheduleStarted,
	}

	var last *Task
	fired := 0
	for now := startsAt; now.Before(startsAt.Add(24 * time.Hour)); now = now.Add(time.Minute) {
		if s.Due(now, last) {
			fired++
			last = &Task{TaskSpec: TaskSpec{StartsAfter: now}, State: TaskSucceeded, Terminated: true}
		}
	}

	assert.Equal(t, 24, fired)
}

func TestScheduleNewTask(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Schedule{
		ScheduleSpec: ScheduleSpec{
			Name:                          "nightly-sync",
			GroupKey:                      "sync::acct-1",
			Payload:                       []byte(`{"x":1}`),
			RetryMax:                      2,
			CreatedToStartedTimeoutSecs:   30,
			StartedToCompletedTimeoutSecs: 60,
			HeartbeatTimeoutSecs:          10,
		},
		ID:    "sched-id",
		State: ScheduleStarted,
	}

	task := s.NewTask("task-id", now)

	assert.Equal(t, "task-id", task.ID)
	assert.Equal(t, TaskCreated, task.State)
	assert.Equal(t, "nightly-sync", task.Name)
	assert.Equal(t, "sync::acct-1", task.GroupKey)
	assert.Equal(t, "sched-id", task.ScheduleID)
	assert.Equal(t, int64(0), task.RetryCount)
	assert.Equal(t, now, task.StartsAfter)
	assert.Equal(t, now, task.LastHeartbeatAt)
}
