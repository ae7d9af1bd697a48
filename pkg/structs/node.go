package structs

import (
	"strings"
	"time"
)

// NodeState is the state of an ephemeral worker process.
type NodeState string

const (
	// NodePending means bookkeeping exists but the underlying process hasn't been asked to boot.
	NodePending NodeState = "PENDING"

	// NodeStarting means the provider was asked to boot the process.
	NodeStarting NodeState = "STARTING"

	// NodeRunning means the process reported healthy and is serving.
	NodeRunning NodeState = "RUNNING"

	// NodeOutdated means the node is bound to a superseded deployment but still serving.
	NodeOutdated NodeState = "OUTDATED"

	// NodeFinishing means the node was told to drain gracefully.
	NodeFinishing NodeState = "FINISHING"

	// NodeIdle means the node has no in-flight work and can be terminated.
	NodeIdle NodeState = "IDLE"

	// NodeTerminated means the underlying process was stopped.
	NodeTerminated NodeState = "TERMINATED"

	// NodeError means the node failed; the reason is recorded on the node.
	NodeError NodeState = "ERROR"
)

var nodeTransitions = map[NodeState][]NodeState{
	NodePending:   {NodeStarting, NodeError},
	NodeStarting:  {NodeRunning, NodeError},
	NodeRunning:   {NodeOutdated, NodeIdle, NodeError},
	NodeOutdated:  {NodeFinishing, NodeError},
	NodeFinishing: {NodeIdle, NodeError},
	NodeIdle:      {NodeTerminated, NodeError},
}

// CanTransitionNode returns true if from -> to is a legal node transition.
func CanTransitionNode(from, to NodeState) bool {
	for _, s := range nodeTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ToNodeState(s string) NodeState {
	switch strings.ToUpper(s) {
	case "PENDING":
		return NodePending
	case "STARTING":
		return NodeStarting
	case "RUNNING":
		return NodeRunning
	case "OUTDATED":
		return NodeOutdated
	case "FINISHING":
		return NodeFinishing
	case "IDLE":
		return NodeIdle
	case "TERMINATED":
		return NodeTerminated
	case "ERROR":
		return NodeError
	default:
		return ""
	}
}

// Node is an ephemeral worker process bound to a specific deployment image.
type Node struct {
	ID int64 `json:"id"`

	// RoutingID maps the node to a logical runner group.
	RoutingID string `json:"routing_id"`

	// DeploymentID is the deployment this node was created against.
	DeploymentID int64 `json:"deployment_id"`

	// URL is set once the node registers as healthy.
	URL string `json:"url,omitempty"`

	State NodeState `json:"state"`

	// Image is pinned at creation so the node survives deployment supersession.
	Image string `json:"image"`

	// Resources are pinned at creation from the provider defaults, subject to
	// the routing group's ConfigOverride at that time.
	CPUMilli  int64 `json:"cpu_milli"`
	MemoryMB  int64 `json:"memory_mb"`
	StorageMB int64 `json:"storage_mb"`

	// Error records why the node entered the ERROR state.
	Error string `json:"error,omitempty"`

	CreatedAt             time.Time `json:"created_at"`
	LastStateTransitionAt time.Time `json:"last_state_transition_at"`
}
