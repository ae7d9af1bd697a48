package fleet

import "time"

const (
	defSupervisorLockKey = "fleet_supervisor"
	defTickFrequency     = 5 * time.Second
	defTickTimeout       = 60 * time.Second
	defRetryDelay        = 5 * time.Second

	defPendingTimeout    = 2 * time.Minute
	defStartingTimeout   = 5 * time.Minute
	defFinishingTimeout  = 12 * time.Hour
	defIdleTimeout       = 5 * time.Minute
	defTerminatedTimeout = 24 * time.Hour
	defErrorTimeout      = 24 * time.Hour

	defNodeCPUMilli  = 500
	defNodeMemoryMB  = 512
	defNodeStorageMB = 10240
)

// Options passed to the fleet Supervisor on creation.
type Options struct {
	// SupervisorLockKey names the advisory lock serializing ticks across instances.
	SupervisorLockKey string

	// TickFrequency is how long to wait between reconciliation ticks.
	TickFrequency time.Duration

	// TickTimeout cancels a tick that runs too long; remaining operations are
	// replanned next tick.
	TickTimeout time.Duration

	// RetryDelay is the backoff after a failed tick (lock contention included).
	RetryDelay time.Duration

	// Per-state timeouts, measured from the node's last state transition.
	PendingTimeout   time.Duration // PENDING too long: provider likely failed to create
	StartingTimeout  time.Duration // STARTING too long: process never reported healthy
	FinishingTimeout time.Duration // FINISHING too long: drain escalates
	IdleTimeout      time.Duration // IDLE too long: provider likely failed to terminate
	TerminatedGrace  time.Duration // keep TERMINATED bookkeeping around this long
	ErrorGrace       time.Duration // keep ERROR bookkeeping around this long

	// Default node resources, used when a routing group has no config override.
	NodeCPUMilli  int64
	NodeMemoryMB  int64
	NodeStorageMB int64
}

func (o *Options) setDefaults() {
	if o.SupervisorLockKey == "" {
		o.SupervisorLockKey = defSupervisorLockKey
	}
	if o.TickFrequency <= 0 {
		o.TickFrequency = defTickFrequency
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = defTickTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defRetryDelay
	}
	if o.PendingTimeout <= 0 {
		o.PendingTimeout = defPendingTimeout
	}
	if o.StartingTimeout <= 0 {
		o.StartingTimeout = defStartingTimeout
	}
	if o.FinishingTimeout <= 0 {
		o.FinishingTimeout = defFinishingTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defIdleTimeout
	}
	if o.TerminatedGrace <= 0 {
		o.TerminatedGrace = defTerminatedTimeout
	}
	if o.ErrorGrace <= 0 {
		o.ErrorGrace = defErrorTimeout
	}
	if o.NodeCPUMilli <= 0 {
		o.NodeCPUMilli = defNodeCPUMilli
	}
	if o.NodeMemoryMB <= 0 {
		o.NodeMemoryMB = defNodeMemoryMB
	}
	if o.NodeStorageMB <= 0 {
		o.NodeStorageMB = defNodeStorageMB
	}
}
