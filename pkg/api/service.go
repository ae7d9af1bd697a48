package api

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quayside/flotilla/pkg/database"
	"github.com/quayside/flotilla/pkg/fleet"
	"github.com/quayside/flotilla/pkg/scheduler"
	"github.com/quayside/flotilla/pkg/structs"
)

// service glues the scheduling engine and the fleet manager behind one API.
type service struct {
	*scheduler.Service
	fleet *fleet.Manager
}

// NewAPI builds the full flotilla API. aborter and registry may be nil for
// deployments that don't cancel started tasks or roll out images.
func NewAPI(db database.Database, aborter scheduler.Aborter, registry fleet.ImageRegistry, opts *scheduler.Options, log zerolog.Logger) (API, error) {
	sched, err := scheduler.NewService(db, aborter, opts, log)
	if err != nil {
		return nil, err
	}
	return &service{
		Service: sched,
		fleet:   fleet.NewManager(db, registry, log),
	}, nil
}

func (s *service) Rollout(ctx context.Context, image string) (*structs.Deployment, error) {
	return s.fleet.Rollout(ctx, image)
}

func (s *service) RegisterNode(ctx context.Context, nodeID int64, url string) (*structs.Node, error) {
	return s.fleet.Register(ctx, nodeID, url)
}

func (s *service) IdleNode(ctx context.Context, nodeID int64) (*structs.Node, error) {
	return s.fleet.Idle(ctx, nodeID)
}

func (s *service) SetConfigOverride(ctx context.Context, o *structs.ConfigOverride) (*structs.ConfigOverride, error) {
	return s.fleet.SetConfigOverride(ctx, o)
}

func (s *service) RemoveConfigOverride(ctx context.Context, routingID string) error {
	return s.fleet.RemoveConfigOverride(ctx, routingID)
}
