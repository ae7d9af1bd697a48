package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quayside/flotilla/internal/utils"
	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

// frequency is stored as a native interval; we extract epoch seconds on the way out.
const schedCols = `id, name, state, starts_at, EXTRACT(EPOCH FROM frequency)::bigint, payload, group_key,
	retry_max, created_to_started_timeout_secs, started_to_completed_timeout_secs, heartbeat_timeout_secs,
	created_at, updated_at, deleted_at, last_scheduled_task_id`

// InsertSchedule inserts a single new schedule.
func (p *Postgres) InsertSchedule(ctx context.Context, s *structs.Schedule) (*structs.Schedule, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO schedules (id, name, state, starts_at, frequency, payload, group_key,
			retry_max, created_to_started_timeout_secs, started_to_completed_timeout_secs, heartbeat_timeout_secs,
			created_at, updated_at, deleted_at, last_scheduled_task_id)
		VALUES ($1, $2, $3, $4, make_interval(secs => $5), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING %s;`, schedCols,
	),
		s.ID, s.Name, s.State, s.StartsAt, float64(s.FrequencySecs), nullIfEmptyJson(s.Payload), s.GroupKey,
		s.RetryMax, s.CreatedToStartedTimeoutSecs, s.StartedToCompletedTimeoutSecs, s.HeartbeatTimeoutSecs,
		s.CreatedAt, s.UpdatedAt, s.DeletedAt, nullIfEmpty(s.LastScheduledTaskID),
	)
	return scanSchedule(row)
}

// Schedule returns the schedule with the given name.
func (p *Postgres) Schedule(ctx context.Context, name string) (*structs.Schedule, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM schedules WHERE name=$1 AND deleted_at IS NULL;`, schedCols), name)
	s, err := scanSchedule(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w schedule %s", errors.ErrNotFound, name)
	}
	return s, err
}

// TransitionSchedule moves the named schedule along a legal state-machine edge.
func (p *Postgres) TransitionSchedule(ctx context.Context, name string, to structs.ScheduleState) (*structs.Schedule, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current structs.ScheduleState
	err = tx.QueryRow(ctx, `SELECT state FROM schedules WHERE name=$1 AND deleted_at IS NULL FOR UPDATE;`, name).Scan(&current)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w schedule %s", errors.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if !structs.CanTransitionSchedule(current, to) {
		return nil, fmt.Errorf("%w cannot move schedule %s from %s to %s", errors.ErrScheduleStateConflict, name, current, to)
	}

	qstr := `UPDATE schedules SET state=$2, updated_at=NOW() WHERE name=$1 RETURNING ` + schedCols + `;`
	if to == structs.ScheduleDeleted {
		qstr = `UPDATE schedules SET state=$2, updated_at=NOW(), deleted_at=NOW() WHERE name=$1 RETURNING ` + schedCols + `;`
	}
	s, err := scanSchedule(tx.QueryRow(ctx, qstr, name, to))
	if err != nil {
		return nil, err
	}
	return s, tx.Commit(ctx)
}

// MaterializeDueSchedules claims due schedules under row locks and creates one
// task per due schedule. Concurrent instances skip each other's locked rows, so
// a schedule fires at most once per window no matter how many engines tick.
func (p *Postgres) MaterializeDueSchedules(ctx context.Context) ([]*structs.Task, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	due, err := dueSchedules(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tasks := []*structs.Task{}
	for _, s := range due {
		t, err := materialize(ctx, tx, s, now)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, tx.Commit(ctx)
}

// MaterializeSchedule creates a task for the named schedule outside the
// periodic cadence. The schedule row lock serializes it against the due scan.
func (p *Postgres) MaterializeSchedule(ctx context.Context, name string) (*structs.Task, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM schedules WHERE name=$1 AND deleted_at IS NULL FOR UPDATE;`, schedCols), name)
	s, err := scanSchedule(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w schedule %s", errors.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	t, err := materialize(ctx, tx, s, time.Now())
	if err != nil {
		return nil, err
	}
	return t, tx.Commit(ctx)
}

// DeleteSchedulesDeletedBefore hard-deletes long-soft-deleted schedules.
// Their tasks go with them via the FK cascade.
func (p *Postgres) DeleteSchedulesDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	info, err := conn.Exec(ctx, `DELETE FROM schedules WHERE deleted_at IS NOT NULL AND deleted_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return info.RowsAffected(), nil
}

// dueSchedules selects and row-locks every schedule that is due right now.
// Candidate rows are narrowed in SQL; the window arithmetic lives in
// structs.Schedule.Due so its boundary behaviour is pinned by tests.
func dueSchedules(ctx context.Context, tx pgx.Tx) ([]*structs.Schedule, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT %s, t.terminated, t.starts_after
		FROM schedules s
		LEFT JOIN tasks t ON t.id = s.last_scheduled_task_id
		WHERE s.state=$1 AND s.deleted_at IS NULL AND s.starts_at <= NOW()
		FOR UPDATE OF s SKIP LOCKED;`, schedColsPrefixed("s"),
	), structs.ScheduleStarted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	due := []*structs.Schedule{}
	for rows.Next() {
		s := structs.Schedule{}
		var payload []byte
		var lastTaskID *string
		var lastTerminated *bool
		var lastStartsAfter *time.Time
		err = rows.Scan(
			&s.ID, &s.Name, &s.State, &s.StartsAt, &s.FrequencySecs, &payload, &s.GroupKey,
			&s.RetryMax, &s.CreatedToStartedTimeoutSecs, &s.StartedToCompletedTimeoutSecs, &s.HeartbeatTimeoutSecs,
			&s.CreatedAt, &s.UpdatedAt, &s.DeletedAt, &lastTaskID,
			&lastTerminated, &lastStartsAfter,
		)
		if err != nil {
			return nil, err
		}
		s.Payload = payload
		if lastTaskID != nil {
			s.LastScheduledTaskID = *lastTaskID
		}
		var last *structs.Task
		if lastTerminated != nil && lastStartsAfter != nil {
			last = &structs.Task{Terminated: *lastTerminated}
			last.StartsAfter = *lastStartsAfter
		}
		if s.Due(now, last) {
			due = append(due, &s)
		}
	}
	return due, rows.Err()
}

// materialize inserts the schedule's task for this window and points the
// schedule at it, inside the caller's transaction.
func materialize(ctx context.Context, tx pgx.Tx, s *structs.Schedule, now time.Time) (*structs.Task, error) {
	t := s.NewTask(utils.NewRandomID(), now)
	row := tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO tasks (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17) RETURNING %s;`,
		taskCols, taskCols,
	), taskSqlArgs(t)...)
	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE schedules SET last_scheduled_task_id=$1, updated_at=NOW() WHERE id=$2;`, t.ID, s.ID)
	return t, err
}

func scanSchedule(row scannable) (*structs.Schedule, error) {
	s := structs.Schedule{}
	var payload []byte
	var lastTaskID *string
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.State,
		&s.StartsAt,
		&s.FrequencySecs,
		&payload,
		&s.GroupKey,
		&s.RetryMax,
		&s.CreatedToStartedTimeoutSecs,
		&s.StartedToCompletedTimeoutSecs,
		&s.HeartbeatTimeoutSecs,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.DeletedAt,
		&lastTaskID,
	)
	if err != nil {
		return nil, err
	}
	s.Payload = payload
	if lastTaskID != nil {
		s.LastScheduledTaskID = *lastTaskID
	}
	return &s, nil
}

// schedColsPrefixed qualifies the schedule columns with a table alias.
func schedColsPrefixed(alias string) string {
	return fmt.Sprintf(`%s.id, %s.name, %s.state, %s.starts_at, EXTRACT(EPOCH FROM %s.frequency)::bigint, %s.payload, %s.group_key,
	%s.retry_max, %s.created_to_started_timeout_secs, %s.started_to_completed_timeout_secs, %s.heartbeat_timeout_secs,
	%s.created_at, %s.updated_at, %s.deleted_at, %s.last_scheduled_task_id`,
		alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias)
}
