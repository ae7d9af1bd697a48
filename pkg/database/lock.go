package database

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/quayside/flotilla/pkg/errors"
)

// lockKeyHash derives the int64 advisory lock id postgres wants from a name.
func lockKeyHash(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// WithLock runs fn while holding the advisory lock derived from key.
//
// The lock is transaction-scoped: it is taken with pg_try_advisory_xact_lock
// inside a transaction held open for fn's duration and released when that
// transaction ends. If the lock is held elsewhere we fail fast with
// ErrCannotAcquireLock; callers needing retry-until-acquired must loop.
//
// fn races an internal timer: if it doesn't return within timeout its context
// is cancelled, onTimeout fires and ErrLockTimeout is returned. A late fn
// result is discarded.
func (p *Postgres) WithLock(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) error, onTimeout func()) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var locked bool
	err = tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1);`, lockKeyHash(key)).Scan(&locked)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("%w %s", errors.ErrCannotAcquireLock, key)
	}

	fnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(fnCtx)
	}()

	select {
	case err = <-done:
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	case <-fnCtx.Done():
		if onTimeout != nil {
			onTimeout()
		}
		return fmt.Errorf("%w %s after %s", errors.ErrLockTimeout, key, timeout)
	}
}

// AcquireLease acquires or renews the named leadership lease in one atomic
// upsert: insert if absent, overwrite if the lease expired or nodeID already
// holds it. Anything else means someone else is leader.
func (p *Postgres) AcquireLease(ctx context.Context, key, nodeID string, ttl time.Duration) (bool, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	info, err := conn.Exec(ctx,
		`INSERT INTO leader_locks (key, node_id, acquired_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET node_id=EXCLUDED.node_id, acquired_at=NOW()
		WHERE leader_locks.node_id = EXCLUDED.node_id
			OR leader_locks.acquired_at < NOW() - make_interval(secs => $3);`,
		key, nodeID, ttl.Seconds())
	if err != nil {
		return false, err
	}
	return info.RowsAffected() == 1, nil
}

// ReleaseLease drops the lease if nodeID holds it, for fast handoff on shutdown.
func (p *Postgres) ReleaseLease(ctx context.Context, key, nodeID string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `DELETE FROM leader_locks WHERE key=$1 AND node_id=$2;`, key, nodeID)
	return err
}
