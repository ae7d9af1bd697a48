package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

const taskCols = `id, name, payload, group_key, retry_max, retry_count, starts_after,
	created_to_started_timeout_secs, started_to_completed_timeout_secs, heartbeat_timeout_secs,
	created_at, state, last_state_transition_at, last_heartbeat_at, output, terminated, schedule_id`

// Postgres is a flotilla database implementation that uses postgres.
type Postgres struct {
	opts *Options
	pool *pgxpool.Pool
}

// NewPostgres returns a new Postgres database connection.
func NewPostgres(opts *Options) (*Postgres, error) {
	opts.setDefaults()
	opts.URL = strings.Replace(opts.URL, "$"+opts.UsernameEnvVar, os.Getenv(opts.UsernameEnvVar), 1)
	opts.URL = strings.Replace(opts.URL, "$"+opts.PasswordEnvVar, os.Getenv(opts.PasswordEnvVar), 1)
	pool, err := pgxpool.New(context.Background(), opts.URL)
	return &Postgres{pool: pool, opts: opts}, err
}

// Close shuts down the database connection.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// InsertTask inserts a single new task.
func (p *Postgres) InsertTask(ctx context.Context, t *structs.Task) (*structs.Task, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO tasks (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17) RETURNING %s;`,
		taskCols, taskCols,
	), taskSqlArgs(t)...)
	return scanTask(row)
}

// Task returns the task with the given id.
func (p *Postgres) Task(ctx context.Context, id string) (*structs.Task, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM tasks WHERE id=$1;`, taskCols), id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w task %s", errors.ErrNotFound, id)
	}
	return t, err
}

// SearchTasks returns tasks matching the given query.
func (p *Postgres) SearchTasks(ctx context.Context, q *structs.Query) ([]*structs.Task, error) {
	q.Sanitize()

	and := []string{}
	args := []interface{}{}
	if q.IDs != nil {
		s, a := toSqlIn(len(args)+1, "id", q.IDs)
		and = append(and, s)
		args = append(args, a...)
	}
	if q.GroupKey != "" {
		args = append(args, q.GroupKey)
		and = append(and, fmt.Sprintf("group_key=$%d", len(args)))
	}
	if q.States != nil {
		vals := make([]string, len(q.States))
		for i, s := range q.States {
			vals[i] = string(s)
		}
		s, a := toSqlIn(len(args)+1, "state", vals)
		and = append(and, s)
		args = append(args, a...)
	}
	if q.ScheduleID != "" {
		args = append(args, q.ScheduleID)
		and = append(and, fmt.Sprintf("schedule_id=$%d", len(args)))
	}
	where := ""
	if len(and) > 0 {
		where = "WHERE " + strings.Join(and, " AND ")
	}
	args = append(args, q.Limit)

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM tasks %s ORDER BY id LIMIT $%d;`, taskCols, where, len(args),
	), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ClaimTasks moves up to limit claimable tasks of the group to STARTED.
// The SKIP LOCKED subselect guarantees concurrent claimers each win disjoint rows.
func (p *Postgres) ClaimTasks(ctx context.Context, groupKey string, limit int) ([]*structs.Task, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, fmt.Sprintf(
		`UPDATE tasks SET state=$1, last_state_transition_at=NOW(), last_heartbeat_at=NOW()
		WHERE id IN (
			SELECT id FROM tasks
			WHERE group_key=$2 AND state=$3 AND starts_after <= NOW()
			ORDER BY id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s;`, taskCols,
	), structs.TaskStarted, groupKey, structs.TaskCreated, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// HeartbeatTask refreshes the task's liveness timestamp, rejecting terminal tasks.
func (p *Postgres) HeartbeatTask(ctx context.Context, id string) (*structs.Task, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(
		`UPDATE tasks SET last_heartbeat_at=NOW() WHERE id=$1 AND terminated=FALSE RETURNING %s;`, taskCols,
	), id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		// either the task doesn't exist or it already terminated
		_, err = p.Task(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w task %s is terminal", errors.ErrTaskStateConflict, id)
	}
	return t, err
}

// TransitionTask moves the task to the given state if the state machine allows it.
// The row lock totally orders transitions on a single task.
func (p *Postgres) TransitionTask(ctx context.Context, id string, to structs.TaskState, output json.RawMessage) (*structs.Task, error) {
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

	var current structs.TaskState
	err = tx.QueryRow(ctx, `SELECT state FROM tasks WHERE id=$1 FOR UPDATE;`, id).Scan(&current)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w task %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !structs.CanTransitionTask(current, to) {
		return nil, fmt.Errorf("%w cannot move task %s from %s to %s", errors.ErrTaskStateConflict, id, current, to)
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(
		`UPDATE tasks SET state=$2, last_state_transition_at=NOW(), terminated=$3, output=$4
		WHERE id=$1 RETURNING %s;`, taskCols,
	), id, to, structs.IsTerminalTaskState(to), nullIfEmptyJson(output))
	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	return t, tx.Commit(ctx)
}

// ExpireTasks transitions every timed-out task to EXPIRED in one statement.
// The SKIP LOCKED claim means a task mid-completion is simply left alone; its
// worker's transition commits and the next scan no longer matches it.
func (p *Postgres) ExpireTasks(ctx context.Context) ([]*structs.Task, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, fmt.Sprintf(
		`WITH eligible AS (
			SELECT id,
				CASE
					WHEN state = 'CREATED' AND created_at + created_to_started_timeout_secs * INTERVAL '1 second' < NOW()
						THEN '{"reason": "created_to_started_timeout_exceeded"}'::jsonb
					WHEN state = 'STARTED' AND last_heartbeat_at + heartbeat_timeout_secs * INTERVAL '1 second' < NOW()
						THEN '{"reason": "heartbeat_timeout_exceeded"}'::jsonb
					ELSE '{"reason": "started_to_completed_timeout_exceeded"}'::jsonb
				END AS reason
			FROM tasks
			WHERE (
				state = 'CREATED' AND created_at + created_to_started_timeout_secs * INTERVAL '1 second' < NOW()
			) OR (
				state = 'STARTED' AND (
					last_heartbeat_at + heartbeat_timeout_secs * INTERVAL '1 second' < NOW()
					OR last_state_transition_at + started_to_completed_timeout_secs * INTERVAL '1 second' < NOW()
				)
			)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t SET state='EXPIRED', last_state_transition_at=NOW(), terminated=TRUE, output=e.reason
		FROM eligible e WHERE t.id = e.id
		RETURNING %s;`, taskColsPrefixed("t"),
	))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// DeleteTerminatedTasksBefore removes old terminated tasks, sparing each
// schedule's most recent task (the due computation needs it).
func (p *Postgres) DeleteTerminatedTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	info, err := conn.Exec(ctx,
		`DELETE FROM tasks WHERE id IN (
			SELECT tasks.id FROM tasks
			LEFT JOIN schedules ON schedules.last_scheduled_task_id = tasks.id
			WHERE tasks.terminated = TRUE
			AND tasks.last_state_transition_at < $1
			AND schedules.id IS NULL
		);`, cutoff)
	if err != nil {
		return 0, err
	}
	return info.RowsAffected(), nil
}

// scannable lets scanTask work with both QueryRow and Query results.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scannable) (*structs.Task, error) {
	t := structs.Task{}
	var output, payload []byte
	var scheduleID *string
	err := row.Scan(
		&t.ID,
		&t.Name,
		&payload,
		&t.GroupKey,
		&t.RetryMax,
		&t.RetryCount,
		&t.StartsAfter,
		&t.CreatedToStartedTimeoutSecs,
		&t.StartedToCompletedTimeoutSecs,
		&t.HeartbeatTimeoutSecs,
		&t.CreatedAt,
		&t.State,
		&t.LastStateTransitionAt,
		&t.LastHeartbeatAt,
		&output,
		&t.Terminated,
		&scheduleID,
	)
	if err != nil {
		return nil, err
	}
	t.Payload = payload
	t.Output = output
	if scheduleID != nil {
		t.ScheduleID = *scheduleID
	}
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*structs.Task, error) {
	tasks := []*structs.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// taskSqlArgs returns insert args in taskCols order.
func taskSqlArgs(t *structs.Task) []interface{} {
	return []interface{}{
		t.ID,
		t.Name,
		nullIfEmptyJson(t.Payload),
		t.GroupKey,
		t.RetryMax,
		t.RetryCount,
		t.StartsAfter,
		t.CreatedToStartedTimeoutSecs,
		t.StartedToCompletedTimeoutSecs,
		t.HeartbeatTimeoutSecs,
		t.CreatedAt,
		t.State,
		t.LastStateTransitionAt,
		t.LastHeartbeatAt,
		nullIfEmptyJson(t.Output),
		t.Terminated,
		nullIfEmpty(t.ScheduleID),
	}
}

// taskColsPrefixed qualifies every task column with a table alias.
func taskColsPrefixed(alias string) string {
	cols := strings.Split(taskCols, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// toSqlIn converts a list of strings into a SQL IN clause
func toSqlIn(offset int, field string, args []string) (string, []interface{}) {
	if len(args) == 0 {
		return "", []interface{}{}
	}
	vals := []string{}
	ifargs := []interface{}{}
	for i, a := range args {
		vals = append(vals, fmt.Sprintf("$%d", i+offset))
		ifargs = append(ifargs, a)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(vals, ", ")), ifargs
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfEmptyJson(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
