package fleet

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/quayside/flotilla/pkg/database"
	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

// image refs must be content-addressed so a deployment pins exact bytes
var imageRefPattern = regexp.MustCompile(`^[a-z0-9]+([._/-][a-z0-9]+)*@sha256:[a-f0-9]{64}$`)

// Manager is the caller-facing side of the fleet: rollouts and node
// registration callbacks. The Supervisor does the reconciliation.
type Manager struct {
	db       database.Database
	registry ImageRegistry
	log      zerolog.Logger
}

func NewManager(db database.Database, registry ImageRegistry, log zerolog.Logger) *Manager {
	return &Manager{db: db, registry: registry, log: log}
}

// Rollout makes image the active deployment. The image is verified against
// the registry before anything is written; no node is ever created against an
// unverified image. Nodes on the previous deployment are drained by the
// supervisor over subsequent ticks.
func (m *Manager) Rollout(ctx context.Context, image string) (*structs.Deployment, error) {
	if !imageRefPattern.MatchString(image) {
		return nil, fmt.Errorf("%w %q must be a name@sha256:digest reference", errors.ErrInvalidImage, image)
	}
	if m.registry == nil {
		return nil, fmt.Errorf("%w no image registry configured, cannot verify rollout images", errors.ErrInvalidArg)
	}

	exists, err := m.registry.Exists(ctx, image)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w %q", errors.ErrImageNotFound, image)
	}

	d, err := m.db.CreateDeployment(ctx, image)
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("image", image).Int64("deployment", d.ID).Msg("rollout created deployment")
	return d, nil
}

// ActiveDeployment returns the deployment new nodes are currently created against.
func (m *Manager) ActiveDeployment(ctx context.Context) (*structs.Deployment, error) {
	return m.db.ActiveDeployment(ctx)
}

// EnsureNode makes sure the routing group has (or will have) a serving node,
// creating a PENDING one against the active deployment if nothing is upcoming.
// It returns the RUNNING node if one exists, otherwise ErrNotFound alongside
// having kicked off creation; callers poll.
func (m *Manager) EnsureNode(ctx context.Context, routingID string) (*structs.Node, error) {
	if routingID == "" {
		return nil, fmt.Errorf("%w routing id required", errors.ErrInvalidArg)
	}

	byRouting, err := m.db.SearchNodes(ctx, []structs.NodeState{
		structs.NodePending, structs.NodeStarting, structs.NodeRunning, structs.NodeOutdated,
	})
	if err != nil {
		return nil, err
	}

	group := byRouting[routingID]
	for _, n := range group {
		if n.State == structs.NodeRunning {
			return n, nil
		}
	}
	if len(group) > 0 {
		// a node is already pending, starting or draining; let it progress
		return nil, fmt.Errorf("%w no running node for %s yet", errors.ErrNotFound, routingID)
	}

	d, err := m.db.ActiveDeployment(ctx)
	if err != nil {
		return nil, err
	}
	_, err = m.db.InsertNode(ctx, &structs.Node{
		RoutingID:    routingID,
		DeploymentID: d.ID,
		Image:        d.Image,
		State:        structs.NodePending,
	})
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w no running node for %s yet", errors.ErrNotFound, routingID)
}

// SetConfigOverride pins a routing group's node resources (and optionally a
// specific image) in place of the supervisor defaults. Running nodes whose
// config diverges are replaced over subsequent ticks, the same way a rollout
// replaces them.
func (m *Manager) SetConfigOverride(ctx context.Context, o *structs.ConfigOverride) (*structs.ConfigOverride, error) {
	if o.RoutingID == "" {
		return nil, fmt.Errorf("%w routing id required", errors.ErrInvalidArg)
	}
	if o.Image != "" && !imageRefPattern.MatchString(o.Image) {
		return nil, fmt.Errorf("%w %q must be a name@sha256:digest reference", errors.ErrInvalidImage, o.Image)
	}
	if o.CPUMilli < 0 || o.MemoryMB < 0 || o.StorageMB < 0 {
		return nil, fmt.Errorf("%w resource overrides cannot be negative", errors.ErrInvalidArg)
	}
	return m.db.UpsertConfigOverride(ctx, o)
}

// RemoveConfigOverride reverts a routing group to the supervisor defaults.
func (m *Manager) RemoveConfigOverride(ctx context.Context, routingID string) error {
	if routingID == "" {
		return fmt.Errorf("%w routing id required", errors.ErrInvalidArg)
	}
	return m.db.DeleteConfigOverride(ctx, routingID)
}

// Register is called by a node's process once it is healthy and serving.
func (m *Manager) Register(ctx context.Context, nodeID int64, url string) (*structs.Node, error) {
	if url == "" {
		return nil, fmt.Errorf("%w url required to register", errors.ErrInvalidArg)
	}
	return m.db.RegisterNode(ctx, nodeID, url)
}

// Idle is called by a draining node once its in-flight work is done.
func (m *Manager) Idle(ctx context.Context, nodeID int64) (*structs.Node, error) {
	return m.db.TransitionNode(ctx, nodeID, structs.NodeIdle)
}

// Node returns a node by id.
func (m *Manager) Node(ctx context.Context, nodeID int64) (*structs.Node, error) {
	return m.db.Node(ctx, nodeID)
}
