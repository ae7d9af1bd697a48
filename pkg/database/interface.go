package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quayside/flotilla/pkg/structs"
)

// Database is the single source of truth. All coordination (locks, leases,
// claims) is expressed as conditional writes against it; no in-memory state is
// authoritative across process boundaries.
type Database interface {
	// InsertTask persists a new CREATED task.
	InsertTask(ctx context.Context, t *structs.Task) (*structs.Task, error)

	// Task returns a single task by id.
	Task(ctx context.Context, id string) (*structs.Task, error)

	// SearchTasks returns tasks matching the given query, ordered by id.
	SearchTasks(ctx context.Context, q *structs.Query) ([]*structs.Task, error)

	// ClaimTasks atomically moves up to limit CREATED tasks of the given group
	// key to STARTED, skipping rows locked by concurrent claimers. At most one
	// claimer ever starts a given task.
	ClaimTasks(ctx context.Context, groupKey string, limit int) ([]*structs.Task, error)

	// HeartbeatTask refreshes a STARTED task's liveness timestamp.
	HeartbeatTask(ctx context.Context, id string) (*structs.Task, error)

	// TransitionTask moves a task along a legal state-machine edge, setting
	// output on terminal states. Illegal transitions return ErrTaskStateConflict
	// and mutate nothing.
	TransitionTask(ctx context.Context, id string, to structs.TaskState, output json.RawMessage) (*structs.Task, error)

	// ExpireTasks force-transitions every task whose liveness lapsed
	// (unclaimed too long, running too long, or heartbeat gone quiet) to
	// EXPIRED, recording the reason in the task output. Rows being transitioned
	// concurrently are skipped; whichever transition commits first wins.
	ExpireTasks(ctx context.Context) ([]*structs.Task, error)

	// DeleteTerminatedTasksBefore hard-deletes terminated tasks whose last
	// transition predates the cutoff, keeping each schedule's most recent task.
	DeleteTerminatedTasksBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// InsertSchedule persists a new schedule.
	InsertSchedule(ctx context.Context, s *structs.Schedule) (*structs.Schedule, error)

	// Schedule returns a schedule by name.
	Schedule(ctx context.Context, name string) (*structs.Schedule, error)

	// TransitionSchedule moves a schedule between STARTED / PAUSED / DELETED.
	// Deleting soft-deletes the row; its tasks are removed by cascade when the
	// row is eventually hard-deleted.
	TransitionSchedule(ctx context.Context, name string, to structs.ScheduleState) (*structs.Schedule, error)

	// MaterializeDueSchedules claims every due schedule (row-locked, skipping
	// ones claimed by concurrent instances) and creates exactly one task per
	// schedule, updating last_scheduled_task_id in the same transaction.
	MaterializeDueSchedules(ctx context.Context) ([]*structs.Task, error)

	// MaterializeSchedule creates a task for the named schedule outside the
	// periodic cadence, for on-demand runs.
	MaterializeSchedule(ctx context.Context, name string) (*structs.Task, error)

	// DeleteSchedulesDeletedBefore hard-deletes soft-deleted schedules older
	// than the cutoff; their tasks go with them via FK cascade.
	DeleteSchedulesDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// AcquireLease acquires or renews the named leadership lease for holder
	// nodeID. It succeeds if no lease exists, the lease expired, or nodeID
	// already holds it. Returns false (no error) when someone else is leader.
	AcquireLease(ctx context.Context, key, nodeID string, ttl time.Duration) (bool, error)

	// ReleaseLease drops the lease if nodeID holds it, for fast handoff.
	ReleaseLease(ctx context.Context, key, nodeID string) error

	// WithLock runs fn while holding the named advisory lock. If the lock is
	// held elsewhere it fails fast with ErrCannotAcquireLock. If fn outlives
	// timeout, fn's context is cancelled, onTimeout fires and ErrLockTimeout is
	// returned.
	WithLock(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) error, onTimeout func()) error

	// InsertNode creates bookkeeping for a new PENDING node.
	InsertNode(ctx context.Context, n *structs.Node) (*structs.Node, error)

	// Node returns a node by id.
	Node(ctx context.Context, id int64) (*structs.Node, error)

	// SearchNodes returns nodes in the given states grouped by routing id.
	SearchNodes(ctx context.Context, states []structs.NodeState) (map[string][]*structs.Node, error)

	// TransitionNode moves a node along a legal state-machine edge.
	TransitionNode(ctx context.Context, id int64, to structs.NodeState) (*structs.Node, error)

	// RegisterNode moves a node to RUNNING and records its serving URL.
	RegisterNode(ctx context.Context, id int64, url string) (*structs.Node, error)

	// FailNode moves a node to ERROR and records the reason.
	FailNode(ctx context.Context, id int64, reason structs.FailReason) (*structs.Node, error)

	// RemoveNode deletes bookkeeping for a TERMINATED or ERROR node.
	RemoveNode(ctx context.Context, id int64) error

	// UpsertConfigOverride creates or replaces a routing group's node config
	// override. The supervisor replaces the group's nodes on its next tick.
	UpsertConfigOverride(ctx context.Context, o *structs.ConfigOverride) (*structs.ConfigOverride, error)

	// DeleteConfigOverride removes a routing group's node config override.
	DeleteConfigOverride(ctx context.Context, routingID string) error

	// ConfigOverrides returns all node config overrides keyed by routing id.
	ConfigOverrides(ctx context.Context) (map[string]*structs.ConfigOverride, error)

	// CreateDeployment inserts a new deployment and atomically marks the
	// previously active one superseded.
	CreateDeployment(ctx context.Context, image string) (*structs.Deployment, error)

	// ActiveDeployment returns the single deployment with no supersededAt.
	ActiveDeployment(ctx context.Context) (*structs.Deployment, error)

	// Migrate applies pending schema migrations.
	Migrate() error

	Close() error
}
