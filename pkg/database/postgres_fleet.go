package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

const nodeCols = `id, routing_id, deployment_id, url, state, image, cpu_milli, memory_mb, storage_mb, error, created_at, last_state_transition_at`

const overrideCols = `routing_id, image, cpu_milli, memory_mb, storage_mb, created_at, updated_at`

const deployCols = `id, image, created_at, superseded_at`

// InsertNode creates bookkeeping for a new PENDING node.
func (p *Postgres) InsertNode(ctx context.Context, n *structs.Node) (*structs.Node, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO nodes (routing_id, deployment_id, state, image, cpu_milli, memory_mb, storage_mb, created_at, last_state_transition_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING %s;`, nodeCols,
	), n.RoutingID, n.DeploymentID, structs.NodePending, n.Image, n.CPUMilli, n.MemoryMB, n.StorageMB)
	return scanNode(row)
}

// Node returns the node with the given id.
func (p *Postgres) Node(ctx context.Context, id int64) (*structs.Node, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM nodes WHERE id=$1;`, nodeCols), id)
	n, err := scanNode(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w node %d", errors.ErrNotFound, id)
	}
	return n, err
}

// SearchNodes returns nodes in the given states grouped by routing id.
func (p *Postgres) SearchNodes(ctx context.Context, states []structs.NodeState) (map[string][]*structs.Node, error) {
	vals := make([]string, len(states))
	for i, s := range states {
		vals[i] = string(s)
	}
	where, args := toSqlIn(1, "state", vals)
	if where != "" {
		where = "WHERE " + where
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM nodes %s ORDER BY id;`, nodeCols, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byRouting := map[string][]*structs.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		byRouting[n.RoutingID] = append(byRouting[n.RoutingID], n)
	}
	return byRouting, rows.Err()
}

// TransitionNode moves a node along a legal state-machine edge.
func (p *Postgres) TransitionNode(ctx context.Context, id int64, to structs.NodeState) (*structs.Node, error) {
	return p.transitionNode(ctx, id, to, nil, nil)
}

// RegisterNode moves a node to RUNNING and records its serving URL.
func (p *Postgres) RegisterNode(ctx context.Context, id int64, url string) (*structs.Node, error) {
	return p.transitionNode(ctx, id, structs.NodeRunning, &url, nil)
}

// FailNode moves a node to ERROR and records the reason.
func (p *Postgres) FailNode(ctx context.Context, id int64, reason structs.FailReason) (*structs.Node, error) {
	r := string(reason)
	return p.transitionNode(ctx, id, structs.NodeError, nil, &r)
}

func (p *Postgres) transitionNode(ctx context.Context, id int64, to structs.NodeState, url, reason *string) (*structs.Node, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current structs.NodeState
	err = tx.QueryRow(ctx, `SELECT state FROM nodes WHERE id=$1 FOR UPDATE;`, id).Scan(&current)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w node %d", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !structs.CanTransitionNode(current, to) {
		return nil, fmt.Errorf("%w cannot move node %d from %s to %s", errors.ErrNodeStateConflict, id, current, to)
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(
		`UPDATE nodes SET state=$2, last_state_transition_at=NOW(),
			url=COALESCE($3, url), error=COALESCE($4, error)
		WHERE id=$1 RETURNING %s;`, nodeCols,
	), id, to, url, reason)
	n, err := scanNode(row)
	if err != nil {
		return nil, err
	}
	return n, tx.Commit(ctx)
}

// RemoveNode deletes bookkeeping for a TERMINATED or ERROR node.
func (p *Postgres) RemoveNode(ctx context.Context, id int64) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	info, err := conn.Exec(ctx,
		`DELETE FROM nodes WHERE id=$1 AND state IN ($2, $3);`,
		id, structs.NodeTerminated, structs.NodeError)
	if err != nil {
		return err
	}
	if info.RowsAffected() == 0 {
		_, err = p.Node(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w node %d is not terminated", errors.ErrNodeStateConflict, id)
	}
	return nil
}

// CreateDeployment inserts a new deployment and supersedes the previous active
// one in the same transaction, so exactly one deployment is ever active.
func (p *Postgres) CreateDeployment(ctx context.Context, image string) (*structs.Deployment, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `UPDATE deployments SET superseded_at=NOW() WHERE superseded_at IS NULL;`)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO deployments (image, created_at) VALUES ($1, NOW()) RETURNING %s;`, deployCols,
	), image)
	d, err := scanDeployment(row)
	if err != nil {
		return nil, err
	}
	return d, tx.Commit(ctx)
}

// ActiveDeployment returns the single deployment with no supersededAt.
func (p *Postgres) ActiveDeployment(ctx context.Context) (*structs.Deployment, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM deployments WHERE superseded_at IS NULL ORDER BY id DESC LIMIT 1;`, deployCols))
	d, err := scanDeployment(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w active deployment", errors.ErrNotFound)
	}
	return d, err
}

func scanNode(row scannable) (*structs.Node, error) {
	n := structs.Node{}
	var url, nerr *string
	err := row.Scan(
		&n.ID,
		&n.RoutingID,
		&n.DeploymentID,
		&url,
		&n.State,
		&n.Image,
		&n.CPUMilli,
		&n.MemoryMB,
		&n.StorageMB,
		&nerr,
		&n.CreatedAt,
		&n.LastStateTransitionAt,
	)
	if err != nil {
		return nil, err
	}
	if url != nil {
		n.URL = *url
	}
	if nerr != nil {
		n.Error = *nerr
	}
	return &n, nil
}

// UpsertConfigOverride creates or replaces the config override for a routing group.
func (p *Postgres) UpsertConfigOverride(ctx context.Context, o *structs.ConfigOverride) (*structs.ConfigOverride, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO node_config_overrides (routing_id, image, cpu_milli, memory_mb, storage_mb, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (routing_id) DO UPDATE SET
			image=EXCLUDED.image, cpu_milli=EXCLUDED.cpu_milli,
			memory_mb=EXCLUDED.memory_mb, storage_mb=EXCLUDED.storage_mb,
			updated_at=NOW()
		RETURNING %s;`, overrideCols,
	), o.RoutingID, o.Image, o.CPUMilli, o.MemoryMB, o.StorageMB)
	return scanConfigOverride(row)
}

// DeleteConfigOverride removes a routing group's override; its nodes revert to
// provider defaults on their next replacement.
func (p *Postgres) DeleteConfigOverride(ctx context.Context, routingID string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	info, err := conn.Exec(ctx, `DELETE FROM node_config_overrides WHERE routing_id=$1;`, routingID)
	if err != nil {
		return err
	}
	if info.RowsAffected() == 0 {
		return fmt.Errorf("%w config override for %s", errors.ErrNotFound, routingID)
	}
	return nil
}

// ConfigOverrides returns all overrides keyed by routing id.
func (p *Postgres) ConfigOverrides(ctx context.Context) (map[string]*structs.ConfigOverride, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM node_config_overrides;`, overrideCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byRouting := map[string]*structs.ConfigOverride{}
	for rows.Next() {
		o, err := scanConfigOverride(rows)
		if err != nil {
			return nil, err
		}
		byRouting[o.RoutingID] = o
	}
	return byRouting, rows.Err()
}

func scanConfigOverride(row scannable) (*structs.ConfigOverride, error) {
	o := structs.ConfigOverride{}
	err := row.Scan(&o.RoutingID, &o.Image, &o.CPUMilli, &o.MemoryMB, &o.StorageMB, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanDeployment(row scannable) (*structs.Deployment, error) {
	d := structs.Deployment{}
	err := row.Scan(&d.ID, &d.Image, &d.CreatedAt, &d.SupersededAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
