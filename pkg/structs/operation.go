package structs

// OperationType enumerates the fleet reconciliation operations.
//
// The supervisor plans a list of these each tick and executes them in order;
// adding a new variant without handling it in the executor is a bug, so keep
// the executor's switch exhaustive.
type OperationType string

const (
	// OpCreate creates bookkeeping for a new pending node in a routing group.
	OpCreate OperationType = "CREATE"

	// OpStart asks the provider to boot a pending node's process.
	OpStart OperationType = "START"

	// OpFail marks a node failed (see FailReason) and triggers replacement.
	OpFail OperationType = "FAIL"

	// OpOutdate marks a running node as bound to a superseded deployment.
	OpOutdate OperationType = "OUTDATE"

	// OpFinishing begins graceful drain of a node.
	OpFinishing OperationType = "FINISHING"

	// OpFinishingTimeout escalates a drain that has taken too long.
	OpFinishingTimeout OperationType = "FINISHING_TIMEOUT"

	// OpTerminate forcibly stops a node's underlying process.
	OpTerminate OperationType = "TERMINATE"

	// OpRemove deletes bookkeeping for a terminated or failed node.
	OpRemove OperationType = "REMOVE"
)

// FailReason says which timeout put a node into the ERROR state.
type FailReason string

const (
	ReasonPendingTimeout  FailReason = "pending_timeout_reached"
	ReasonStartingTimeout FailReason = "starting_timeout_reached"
	ReasonIdleTimeout     FailReason = "idle_timeout_reached"
)

// Operation is a single planned fleet action. Node is set for everything
// except CREATE, which instead carries the routing group, target deployment
// and the group's config override (if any).
type Operation struct {
	Type OperationType

	Node *Node

	RoutingID  string
	Deployment *Deployment
	Override   *ConfigOverride

	Reason FailReason
}
