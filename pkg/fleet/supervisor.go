package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quayside/flotilla/pkg/database"
	ie "github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

var allNodeStates = []structs.NodeState{
	structs.NodePending, structs.NodeStarting, structs.NodeRunning,
	structs.NodeOutdated, structs.NodeFinishing, structs.NodeIdle,
	structs.NodeTerminated, structs.NodeError,
}

// Supervisor reconciles the node fleet toward the active deployment: each tick
// it plans a list of operations from the persisted node states and executes
// them in order. Ticks are serialized across instances by an advisory lock, so
// running the supervisor from every process is safe.
type Supervisor struct {
	db       database.Database
	provider NodeProvider
	opts     *Options
	log      zerolog.Logger

	stop          chan struct{}
	stopped       chan struct{}
	tickCancelled atomic.Bool
}

func NewSupervisor(db database.Database, provider NodeProvider, opts *Options, log zerolog.Logger) *Supervisor {
	if opts == nil {
		opts = &Options{}
	}
	opts.setDefaults()
	return &Supervisor{
		db:       db,
		provider: provider,
		opts:     opts,
		log:      log,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Run loops until Close is called. Before any deployment exists there is
// nothing to reconcile; ticks simply report ErrNotFound until a rollout happens.
func (s *Supervisor) Run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		err := s.db.WithLock(
			context.Background(),
			s.opts.SupervisorLockKey,
			s.opts.TickTimeout,
			s.tick,
			func() { s.tickCancelled.Store(true) },
		)

		switch {
		case err == nil:
			s.sleep(s.opts.TickFrequency)
		case errors.Is(err, ie.ErrNotFound), errors.Is(err, ie.ErrCannotAcquireLock):
			// no deployment yet, or another instance holds the tick
			s.sleep(s.opts.TickFrequency)
		default:
			s.log.Warn().Err(err).Msg("supervisor tick failed")
			s.sleep(s.opts.RetryDelay)
		}
	}
}

// Close stops the loop and blocks until it has exited, so the caller can
// safely tear down shared resources (the database pool) afterwards. Only call
// Close once Run has been started.
func (s *Supervisor) Close() {
	close(s.stop)
	<-s.stopped
}

func (s *Supervisor) sleep(d time.Duration) {
	select {
	case <-s.stop:
	case <-time.After(d):
	}
}

func (s *Supervisor) tick(ctx context.Context) error {
	s.tickCancelled.Store(false)

	deployment, err := s.db.ActiveDeployment(ctx)
	if err != nil {
		return err
	}

	byRouting, err := s.db.SearchNodes(ctx, allNodeStates)
	if err != nil {
		return err
	}

	overrides, err := s.db.ConfigOverrides(ctx)
	if err != nil {
		return err
	}

	plan := s.plan(time.Now(), deployment, byRouting, overrides)
	for _, op := range plan {
		if s.tickCancelled.Load() {
			return nil
		}
		err = s.execute(ctx, op)
		if err != nil {
			// a failed operation is replanned next tick
			s.log.Error().Err(err).Str("op", string(op.Type)).Msg("failed to execute operation")
		}
	}
	return nil
}

// plan derives the operations to run this tick from the persisted node states.
// It is pure: no I/O, no clock reads, all inputs passed in.
func (s *Supervisor) plan(now time.Time, deployment *structs.Deployment, byRouting map[string][]*structs.Node, overrides map[string]*structs.ConfigOverride) []*structs.Operation {
	plan := []*structs.Operation{}

	for routingID, group := range byRouting {
		override := overrides[routingID]
		byState := map[structs.NodeState][]*structs.Node{}
		for _, n := range group {
			byState[n.State] = append(byState[n.State], n)
		}
		since := func(n *structs.Node) time.Duration { return now.Sub(n.LastStateTransitionAt) }

		// boot pending nodes; fail ones the provider never managed to create
		for _, n := range byState[structs.NodePending] {
			plan = append(plan, &structs.Operation{Type: structs.OpStart, Node: n})
			if since(n) > s.opts.PendingTimeout {
				plan = append(plan, &structs.Operation{Type: structs.OpFail, Node: n, Reason: structs.ReasonPendingTimeout})
			}
		}

		// fail starting nodes that never reported healthy
		for _, n := range byState[structs.NodeStarting] {
			if since(n) > s.opts.StartingTimeout {
				plan = append(plan, &structs.Operation{Type: structs.OpFail, Node: n, Reason: structs.ReasonStartingTimeout})
			}
		}

		// outdate running nodes bound to a superseded deployment, or whose
		// config no longer matches the group's override
		for _, n := range byState[structs.NodeRunning] {
			if n.DeploymentID != deployment.ID || override.Outdates(n) {
				plan = append(plan, &structs.Operation{Type: structs.OpOutdate, Node: n})
			}
		}

		// drain outdated nodes once a replacement is serving
		running := len(byState[structs.NodeRunning])
		upcoming := running + len(byState[structs.NodeStarting]) + len(byState[structs.NodePending])
		for _, n := range byState[structs.NodeOutdated] {
			if running > 0 {
				plan = append(plan, &structs.Operation{Type: structs.OpFinishing, Node: n})
			}
		}
		if len(byState[structs.NodeOutdated]) > 0 && upcoming == 0 {
			plan = append(plan, &structs.Operation{Type: structs.OpCreate, RoutingID: routingID, Deployment: deployment, Override: override})
		}

		// a group whose nodes all failed or terminated still needs a replacement
		if upcoming+len(byState[structs.NodeOutdated])+len(byState[structs.NodeFinishing])+len(byState[structs.NodeIdle]) == 0 &&
			len(byState[structs.NodeError])+len(byState[structs.NodeTerminated]) > 0 {
			plan = append(plan, &structs.Operation{Type: structs.OpCreate, RoutingID: routingID, Deployment: deployment, Override: override})
		}

		// escalate drains that ran too long
		for _, n := range byState[structs.NodeFinishing] {
			if since(n) > s.opts.FinishingTimeout {
				plan = append(plan, &structs.Operation{Type: structs.OpFinishingTimeout, Node: n})
			}
		}

		// terminate idle nodes; fail ones the provider never managed to stop
		for _, n := range byState[structs.NodeIdle] {
			plan = append(plan, &structs.Operation{Type: structs.OpTerminate, Node: n})
			if since(n) > s.opts.IdleTimeout {
				plan = append(plan, &structs.Operation{Type: structs.OpFail, Node: n, Reason: structs.ReasonIdleTimeout})
			}
		}

		// clear bookkeeping for nodes past their grace period
		for _, n := range byState[structs.NodeTerminated] {
			if since(n) > s.opts.TerminatedGrace {
				plan = append(plan, &structs.Operation{Type: structs.OpRemove, Node: n})
			}
		}
		for _, n := range byState[structs.NodeError] {
			if since(n) > s.opts.ErrorGrace {
				plan = append(plan, &structs.Operation{Type: structs.OpRemove, Node: n})
			}
		}
	}

	return plan
}

func (s *Supervisor) execute(ctx context.Context, op *structs.Operation) error {
	switch op.Type {
	case structs.OpCreate:
		_, err := s.db.InsertNode(ctx, s.newNode(op))
		return err
	case structs.OpStart:
		err := s.provider.Start(ctx, op.Node)
		if err != nil {
			return err
		}
		_, err = s.db.TransitionNode(ctx, op.Node.ID, structs.NodeStarting)
		return err
	case structs.OpFail:
		err := s.provider.Terminate(ctx, op.Node)
		if err != nil {
			s.log.Error().Err(err).Int64("node", op.Node.ID).Msg("failed to terminate node")
		}
		_, err = s.db.FailNode(ctx, op.Node.ID, op.Reason)
		return err
	case structs.OpOutdate:
		_, err := s.db.TransitionNode(ctx, op.Node.ID, structs.NodeOutdated)
		return err
	case structs.OpFinishing:
		// drain notification is best effort; a node that never reports idle
		// is escalated via the finishing timeout
		err := s.provider.NotifyWhenIdle(ctx, op.Node)
		if err != nil {
			s.log.Warn().Err(err).Int64("node", op.Node.ID).Msg("failed to notify draining node")
		}
		_, err = s.db.TransitionNode(ctx, op.Node.ID, structs.NodeFinishing)
		return err
	case structs.OpFinishingTimeout:
		// force the node to IDLE so the next tick terminates it
		s.log.Warn().Int64("node", op.Node.ID).Msg("node taking too long to finish, forcing idle")
		_, err := s.db.TransitionNode(ctx, op.Node.ID, structs.NodeIdle)
		return err
	case structs.OpTerminate:
		err := s.provider.Terminate(ctx, op.Node)
		if err != nil {
			return err
		}
		_, err = s.db.TransitionNode(ctx, op.Node.ID, structs.NodeTerminated)
		return err
	case structs.OpRemove:
		return s.db.RemoveNode(ctx, op.Node.ID)
	default:
		return fmt.Errorf("%w unknown operation %s", ie.ErrInvalidArg, op.Type)
	}
}

// newNode builds a CREATE operation's node from the deployment image and the
// supervisor's default resources, both subject to the group's config override.
func (s *Supervisor) newNode(op *structs.Operation) *structs.Node {
	n := &structs.Node{
		RoutingID:    op.RoutingID,
		DeploymentID: op.Deployment.ID,
		Image:        op.Deployment.Image,
		CPUMilli:     s.opts.NodeCPUMilli,
		MemoryMB:     s.opts.NodeMemoryMB,
		StorageMB:    s.opts.NodeStorageMB,
		State:        structs.NodePending,
	}
	if op.Override == nil {
		return n
	}
	if op.Override.Image != "" {
		n.Image = op.Override.Image
	}
	if op.Override.CPUMilli != 0 {
		n.CPUMilli = op.Override.CPUMilli
	}
	if op.Override.MemoryMB != 0 {
		n.MemoryMB = op.Override.MemoryMB
	}
	if op.Override.StorageMB != 0 {
		n.StorageMB = op.Override.StorageMB
	}
	return n
}
