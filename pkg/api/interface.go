package api

import (
	"context"
	"encoding/json"

	"github.com/quayside/flotilla/pkg/scheduler"
	"github.com/quayside/flotilla/pkg/structs"
)

// API represents the functions flotilla servers should expose.
type API interface {
	// Tasks. Implemented in pkg/scheduler.Service

	Submit(ctx context.Context, spec *structs.TaskSpec) (*structs.Task, error)
	Resubmit(ctx context.Context, id string) (*structs.Task, error)
	Task(ctx context.Context, id string) (*structs.Task, error)
	Search(ctx context.Context, q *structs.Query) ([]*structs.Task, error)
	Output(ctx context.Context, id string) (*structs.Task, error)

	Claim(ctx context.Context, groupKey string, limit int) ([]*structs.Task, error)
	Heartbeat(ctx context.Context, id string) (*structs.Task, error)
	Succeed(ctx context.Context, id string, output json.RawMessage) (*structs.Task, error)
	Fail(ctx context.Context, id string, output json.RawMessage) (*structs.Task, error)
	Cancel(ctx context.Context, id string, output json.RawMessage) (*structs.Task, error)

	// Schedules. Implemented in pkg/scheduler.Service

	CreateSchedule(ctx context.Context, spec *structs.ScheduleSpec) (*structs.Schedule, error)
	Schedule(ctx context.Context, name string) (*structs.Schedule, error)
	PauseSchedule(ctx context.Context, name string) (*structs.Schedule, error)
	ResumeSchedule(ctx context.Context, name string) (*structs.Schedule, error)
	DeleteSchedule(ctx context.Context, name string) (*structs.Schedule, error)
	RunScheduleNow(ctx context.Context, name string) (*structs.Task, error)

	// Events. Local to this process; see scheduler.Subscription.
	Subscribe(prefix string, states ...structs.TaskState) *scheduler.Subscription

	// Fleet. Implemented in pkg/fleet.Manager

	Rollout(ctx context.Context, image string) (*structs.Deployment, error)
	RegisterNode(ctx context.Context, nodeID int64, url string) (*structs.Node, error)
	IdleNode(ctx context.Context, nodeID int64) (*structs.Node, error)
	SetConfigOverride(ctx context.Context, o *structs.ConfigOverride) (*structs.ConfigOverride, error)
	RemoveConfigOverride(ctx context.Context, routingID string) error

	Close() error
}

type Server interface {
	ServeForever(api API) error
	Close() error
}
