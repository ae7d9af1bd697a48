package fleet

import (
	"context"

	"github.com/quayside/flotilla/pkg/structs"
)

// NodeProvider boots and kills the underlying processes backing nodes. The
// execution sandbox itself is out of scope; implementations wrap whatever
// infrastructure actually runs workers. Calls must be idempotent with respect
// to the node's persisted state since the supervisor retries on failure.
type NodeProvider interface {
	// Start boots the process for a pending node.
	Start(ctx context.Context, node *structs.Node) error

	// Terminate stops the process for a node.
	Terminate(ctx context.Context, node *structs.Node) error

	// NotifyWhenIdle tells a draining node to report back (via Manager.Idle)
	// once its in-flight work is done.
	NotifyWhenIdle(ctx context.Context, node *structs.Node) error
}

// ImageRegistry answers whether a content-addressed image reference exists.
type ImageRegistry interface {
	Exists(ctx context.Context, image string) (bool, error)
}
