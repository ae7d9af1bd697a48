package scheduler

import (
	"context"
	"time"
)

// runMonitor ticks the expiry sweep. Only the current leaseholder sweeps, so
// a fleet of instances produces one EXPIRED transition per lapsed task; the
// others renew-or-steal the lease each tick and otherwise idle.
func (c *Service) runMonitor(errs chan<- error) {
	tick := time.NewTicker(c.opts.MonitorFrequency)
	defer tick.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-tick.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.MonitorFrequency)

			leader, err := c.db.AcquireLease(ctx, c.opts.MonitorLeaseKey, c.opts.NodeID, c.opts.LeaseTimeout)
			if err != nil {
				errs <- err
				cancel()
				continue
			}
			if !leader {
				cancel()
				continue
			}

			expired, err := c.db.ExpireTasks(ctx)
			if err != nil {
				errs <- err
			}
			for _, t := range expired {
				c.log.Info().Str("task", t.ID).Str("group", t.GroupKey).Msg("task expired")
				c.events.Publish(t)
			}
			cancel()
		}
	}
}

// runScheduling ticks the due-schedule sweep from every instance; row locks on
// schedules keep concurrent sweeps from double-firing, so no lease is needed.
func (c *Service) runScheduling(errs chan<- error) {
	tick := time.NewTicker(c.opts.SchedulingFrequency)
	defer tick.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-tick.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.SchedulingFrequency)

			created, err := c.db.MaterializeDueSchedules(ctx)
			if err != nil {
				errs <- err
			}
			for _, t := range created {
				c.events.Publish(t)
			}
			cancel()
		}
	}
}

// tidy hard-deletes terminated tasks and soft-deleted schedules past retention.
func (c *Service) tidy(errs chan<- error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -c.opts.RetentionDays)

	tasks, err := c.db.DeleteTerminatedTasksBefore(ctx, cutoff)
	if err != nil {
		errs <- err
	}
	schedules, err := c.db.DeleteSchedulesDeletedBefore(ctx, cutoff)
	if err != nil {
		errs <- err
	}
	if tasks > 0 || schedules > 0 {
		c.log.Info().Int64("tasks", tasks).Int64("schedules", schedules).Msg("retention sweep removed rows")
	}
}
