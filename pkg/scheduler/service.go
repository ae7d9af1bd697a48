package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/quayside/flotilla/internal/utils"
	"github.com/quayside/flotilla/pkg/database"
	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

const (
	maxNameLength    = 500
	maxGroupLength   = 500
	maxPayloadLength = 10000

	minFrequencySecs = 30
)

// Aborter is told about cancellations of tasks that already started, so
// whatever is running them can be interrupted. Delivery is best effort; the
// task is CANCELLED in the store regardless and expiry catches stragglers.
type Aborter interface {
	Abort(ctx context.Context, task *structs.Task) error
}

// Service is the scheduling engine: it owns task and schedule lifecycles and
// runs the background daemons (expiry monitor, due-schedule sweep, janitor).
type Service struct {
	db      database.Database
	opts    *Options
	log     zerolog.Logger
	events  *Broker
	aborter Aborter
	cron    *cron.Cron

	stop chan struct{}
}

// NewService builds a Service and starts whichever daemons opts enables.
// aborter may be nil.
func NewService(db database.Database, aborter Aborter, opts *Options, log zerolog.Logger) (*Service, error) {
	if opts == nil {
		opts = OptionsServerDefault()
	}
	opts.setDefaults()

	me := &Service{
		db:      db,
		opts:    opts,
		log:     log,
		events:  newBroker(opts.EventBuffer),
		aborter: aborter,
		stop:    make(chan struct{}),
	}

	errs := make(chan error)
	go func() {
		for err := range errs {
			if err != nil {
				me.log.Error().Err(err).Msg("daemon error")
			}
		}
	}()

	if opts.MonitorFrequency > 0 {
		go me.runMonitor(errs)
	}
	if opts.SchedulingFrequency > 0 {
		go me.runScheduling(errs)
	}
	if opts.JanitorSpec != "" {
		me.cron = cron.New()
		_, err := me.cron.AddFunc(opts.JanitorSpec, func() { me.tidy(errs) })
		if err != nil {
			return nil, err
		}
		me.cron.Start()
	}

	return me, nil
}

// Close stops the daemons, hands off leadership and closes the store.
func (c *Service) Close() error {
	close(c.stop)
	if c.cron != nil {
		c.cron.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.db.ReleaseLease(ctx, c.opts.MonitorLeaseKey, c.opts.NodeID)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to release monitor lease")
	}
	return c.db.Close()
}

// Subscribe returns a stream of task transitions into the given states,
// optionally filtered to group keys starting with prefix.
func (c *Service) Subscribe(prefix string, states ...structs.TaskState) *Subscription {
	return c.events.Subscribe(prefix, states...)
}

// Submit validates and persists a new CREATED task.
func (c *Service) Submit(ctx context.Context, spec *structs.TaskSpec) (*structs.Task, error) {
	err := validateTaskSpec(spec)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	startsAfter := spec.StartsAfter
	if startsAfter.IsZero() {
		startsAfter = now
	}

	t := &structs.Task{
		TaskSpec:              *spec,
		ID:                    utils.NewRandomID(),
		State:                 structs.TaskCreated,
		CreatedAt:             now,
		LastStateTransitionAt: now,
		LastHeartbeatAt:       now,
	}
	t.StartsAfter = startsAfter

	t, err = c.db.InsertTask(ctx, t)
	if err != nil {
		return nil, err
	}
	c.events.Publish(t)
	return t, nil
}

// Resubmit creates a fresh attempt of a FAILED task, with its retry count
// bumped. The engine never does this by itself; callers decide when to retry.
func (c *Service) Resubmit(ctx context.Context, id string) (*structs.Task, error) {
	prev, err := c.db.Task(ctx, id)
	if err != nil {
		return nil, err
	}
	if prev.State != structs.TaskFailed {
		return nil, fmt.Errorf("%w task %s is %s, only FAILED tasks can be resubmitted", errors.ErrTaskStateConflict, id, prev.State)
	}
	if !prev.RetryEligible() {
		return nil, fmt.Errorf("%w task %s used %d of %d retries", errors.ErrMaxExceeded, id, prev.RetryCount, prev.RetryMax)
	}

	spec := prev.TaskSpec
	spec.RetryCount++
	spec.StartsAfter = time.Now()
	return c.Submit(ctx, &spec)
}

// Task returns a single task by id.
func (c *Service) Task(ctx context.Context, id string) (*structs.Task, error) {
	return c.db.Task(ctx, id)
}

// Search returns tasks matching the query.
func (c *Service) Search(ctx context.Context, q *structs.Query) ([]*structs.Task, error) {
	q.Sanitize()
	return c.db.SearchTasks(ctx, q)
}

// Output returns a task once it has terminated, so callers can read its final
// state and output, or ErrNoOutputYet while it is still in flight.
func (c *Service) Output(ctx context.Context, id string) (*structs.Task, error) {
	t, err := c.db.Task(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Terminated {
		return nil, fmt.Errorf("%w task %s is %s", errors.ErrNoOutputYet, id, t.State)
	}
	return t, nil
}

// Claim moves up to limit ready tasks of the given group key to STARTED on
// behalf of a worker. Each task is handed to exactly one claimer.
func (c *Service) Claim(ctx context.Context, groupKey string, limit int) ([]*structs.Task, error) {
	if groupKey == "" {
		return nil, fmt.Errorf("%w group key required to claim", errors.ErrInvalidArg)
	}
	if limit <= 0 {
		limit = 1
	}

	tasks, err := c.db.ClaimTasks(ctx, groupKey, limit)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		c.events.Publish(t)
	}
	return tasks, nil
}

// Heartbeat refreshes liveness for a STARTED task.
func (c *Service) Heartbeat(ctx context.Context, id string) (*structs.Task, error) {
	return c.db.HeartbeatTask(ctx, id)
}

// Succeed terminates a task successfully, recording its output.
func (c *Service) Succeed(ctx context.Context, id string, output json.RawMessage) (*structs.Task, error) {
	return c.transition(ctx, id, structs.TaskSucceeded, output)
}

// Fail terminates a task unsuccessfully, recording its output.
func (c *Service) Fail(ctx context.Context, id string, output json.RawMessage) (*structs.Task, error) {
	return c.transition(ctx, id, structs.TaskFailed, output)
}

// Cancel terminates a task by caller request. If the task already started and
// an Aborter is wired, it is told to interrupt the worker; failure to do so
// does not block the cancellation.
func (c *Service) Cancel(ctx context.Context, id string, output json.RawMessage) (*structs.Task, error) {
	prev, err := c.db.Task(ctx, id)
	if err != nil {
		return nil, err
	}

	t, err := c.transition(ctx, id, structs.TaskCancelled, output)
	if err != nil {
		return nil, err
	}

	if prev.State == structs.TaskStarted && c.aborter != nil {
		err = c.aborter.Abort(ctx, t)
		if err != nil {
			c.log.Warn().Err(err).Str("task", id).Msg("failed to abort started task")
		}
	}
	return t, nil
}

func (c *Service) transition(ctx context.Context, id string, to structs.TaskState, output json.RawMessage) (*structs.Task, error) {
	t, err := c.db.TransitionTask(ctx, id, to, output)
	if err != nil {
		return nil, err
	}
	c.events.Publish(t)
	return t, nil
}

// CreateSchedule validates and persists a new STARTED schedule.
func (c *Service) CreateSchedule(ctx context.Context, spec *structs.ScheduleSpec) (*structs.Schedule, error) {
	err := validateScheduleSpec(spec)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	startsAt := spec.StartsAt
	if startsAt.IsZero() {
		startsAt = now
	}

	s := &structs.Schedule{
		ScheduleSpec: *spec,
		ID:           utils.NewRandomID(),
		State:        structs.ScheduleStarted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.StartsAt = startsAt

	return c.db.InsertSchedule(ctx, s)
}

// Schedule returns a schedule by name.
func (c *Service) Schedule(ctx context.Context, name string) (*structs.Schedule, error) {
	return c.db.Schedule(ctx, name)
}

// PauseSchedule stops a schedule materializing tasks until resumed.
func (c *Service) PauseSchedule(ctx context.Context, name string) (*structs.Schedule, error) {
	return c.db.TransitionSchedule(ctx, name, structs.SchedulePaused)
}

// ResumeSchedule restarts a paused schedule. Missed windows are not back-filled;
// the schedule fires at its next due boundary.
func (c *Service) ResumeSchedule(ctx context.Context, name string) (*structs.Schedule, error) {
	return c.db.TransitionSchedule(ctx, name, structs.ScheduleStarted)
}

// DeleteSchedule soft-deletes a schedule. The janitor hard-deletes it (and its
// tasks, by cascade) after the retention window.
func (c *Service) DeleteSchedule(ctx context.Context, name string) (*structs.Schedule, error) {
	return c.db.TransitionSchedule(ctx, name, structs.ScheduleDeleted)
}

// RunScheduleNow materializes a task for the named schedule immediately,
// outside its periodic cadence.
func (c *Service) RunScheduleNow(ctx context.Context, name string) (*structs.Task, error) {
	t, err := c.db.MaterializeSchedule(ctx, name)
	if err != nil {
		return nil, err
	}
	c.events.Publish(t)
	return t, nil
}
