package scheduler

import (
	"time"

	"github.com/quayside/flotilla/internal/utils"
)

const (
	defMonitorLeaseKey     = "task_monitor"
	defLeaseTimeout        = 30 * time.Second
	defMonitorFrequency    = 2 * time.Second
	defSchedulingFrequency = 2 * time.Second
	defJanitorSpec         = "13 4 * * *"
	defRetentionDays       = 30
	defEventBuffer         = 64
)

// Options passed to the scheduler Service on creation.
type Options struct {
	// NodeID identifies this process instance in leases. Randomized if unset.
	NodeID string

	// MonitorLeaseKey names the leadership lease gating the expiry monitor.
	MonitorLeaseKey string

	// LeaseTimeout is how stale a lease must be before another instance can
	// steal it. Must be strictly longer than MonitorFrequency or leadership flaps.
	LeaseTimeout time.Duration

	// MonitorFrequency is the expiry monitor tick interval. Zero disables the monitor.
	MonitorFrequency time.Duration

	// SchedulingFrequency is the due-schedule tick interval. Zero disables it.
	// Unlike the monitor this runs from every instance; the row locks on
	// schedules make concurrent firing safe.
	SchedulingFrequency time.Duration

	// JanitorSpec is a cron expression for the retention sweep. Empty disables it.
	JanitorSpec string

	// RetentionDays is how long terminated tasks and deleted schedules are kept.
	RetentionDays int

	// EventBuffer is the channel buffer per fan-out subscriber. Slow
	// subscribers drop events rather than block transitions.
	EventBuffer int
}

func (o *Options) setDefaults() {
	if o.NodeID == "" {
		o.NodeID = utils.NewRandomID()
	}
	if o.MonitorLeaseKey == "" {
		o.MonitorLeaseKey = defMonitorLeaseKey
	}
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = defLeaseTimeout
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = defRetentionDays
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defEventBuffer
	}
}

// OptionsClientDefault runs a scheduler with no background daemons, for
// processes that only serve the API.
func OptionsClientDefault() *Options {
	return &Options{}
}

// OptionsServerDefault runs the full set of background daemons.
func OptionsServerDefault() *Options {
	return &Options{
		MonitorFrequency:    defMonitorFrequency,
		SchedulingFrequency: defSchedulingFrequency,
		JanitorSpec:         defJanitorSpec,
		RetentionDays:       defRetentionDays,
	}
}
