package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/flotilla/internal/utils"
	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

func testSpec(group string) *structs.TaskSpec {
	return &structs.TaskSpec{
		Name:                          "e2e",
		GroupKey:                      group,
		CreatedToStartedTimeoutSecs:   600,
		StartedToCompletedTimeoutSecs: 600,
		HeartbeatTimeoutSecs:          600,
	}
}

// TestConcurrentClaimIsExclusive submits one task and races eight claimers at
// it; exactly one may win.
func TestConcurrentClaimIsExclusive(t *testing.T) {
	skipWithoutDB(t)
	ctx := context.Background()
	group := "claim-" + utils.NewRandomID()

	task, err := setup.svc.Submit(ctx, testSpec(group))
	require.Nil(t, err)

	var mu sync.Mutex
	claimed := []*structs.Task{}
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, err := setup.svc.Claim(ctx, group, 1)
			assert.Nil(t, err)
			mu.Lock()
			claimed = append(claimed, tasks...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, claimed, 1)
	assert.Equal(t, task.ID, claimed[0].ID)
	assert.Equal(t, structs.TaskStarted, claimed[0].State)
}

// TestLeaderLeaseStealAfterExpiry covers the lease lifecycle: a held lease
// blocks others, renews for its holder, can be stolen once stale, and frees
// up immediately on release.
func TestLeaderLeaseStealAfterExpiry(t *testing.T) {
	skipWithoutDB(t)
	ctx := context.Background()
	key := "lease-" + utils.NewRandomID()

	held, err := setup.db.AcquireLease(ctx, key, "node-a", time.Minute)
	require.Nil(t, err)
	assert.True(t, held)

	held, err = setup.db.AcquireLease(ctx, key, "node-b", time.Minute)
	require.Nil(t, err)
	assert.False(t, held)

	// the holder renews freely
	held, err = setup.db.AcquireLease(ctx, key, "node-a", time.Minute)
	require.Nil(t, err)
	assert.True(t, held)

	// a stale lease can be stolen by anyone
	staleKey := "lease-" + utils.NewRandomID()
	held, err = setup.db.AcquireLease(ctx, staleKey, "node-a", time.Second)
	require.Nil(t, err)
	require.True(t, held)
	time.Sleep(1200 * time.Millisecond)
	held, err = setup.db.AcquireLease(ctx, staleKey, "node-c", time.Second)
	require.Nil(t, err)
	assert.True(t, held)

	// release hands off without waiting for expiry
	err = setup.db.ReleaseLease(ctx, key, "node-a")
	require.Nil(t, err)
	held, err = setup.db.AcquireLease(ctx, key, "node-b", time.Minute)
	require.Nil(t, err)
	assert.True(t, held)
}

// TestHeartbeatLapseExpiresTask claims two tasks, lets one go quiet past its
// heartbeat timeout, and checks the expiry sweep reclaims only that one. The
// worker that comes back late gets a conflict, not a silent overwrite.
func TestHeartbeatLapseExpiresTask(t *testing.T) {
	skipWithoutDB(t)
	ctx := context.Background()
	group := "expire-" + utils.NewRandomID()

	quietSpec := testSpec(group)
	quietSpec.HeartbeatTimeoutSecs = 1
	quiet, err := setup.svc.Submit(ctx, quietSpec)
	require.Nil(t, err)
	noisy, err := setup.svc.Submit(ctx, testSpec(group))
	require.Nil(t, err)

	claimed, err := setup.svc.Claim(ctx, group, 2)
	require.Nil(t, err)
	require.Len(t, claimed, 2)

	time.Sleep(1500 * time.Millisecond)

	expired, err := setup.db.ExpireTasks(ctx)
	require.Nil(t, err)

	// other rows may expire in the same sweep; only ours matter
	ids := map[string]*structs.Task{}
	for _, e := range expired {
		ids[e.ID] = e
	}
	require.Contains(t, ids, quiet.ID)
	assert.NotContains(t, ids, noisy.ID)
	assert.Equal(t, structs.TaskExpired, ids[quiet.ID].State)
	assert.JSONEq(t, `{"reason": "heartbeat_timeout_exceeded"}`, string(ids[quiet.ID].Output))

	_, err = setup.svc.Succeed(ctx, quiet.ID, nil)
	assert.ErrorIs(t, err, errors.ErrTaskStateConflict)

	_, err = setup.svc.Succeed(ctx, noisy.ID, nil)
	assert.Nil(t, err)
}

// TestRolloutLeavesOneActiveDeployment rolls out twice and checks supersession
// is atomic: the latest deployment is active and it is the only one.
func TestRolloutLeavesOneActiveDeployment(t *testing.T) {
	skipWithoutDB(t)
	ctx := context.Background()

	imageA := "registry/runner@sha256:" + strings.Repeat("ab", 32)
	imageB := "registry/runner@sha256:" + strings.Repeat("cd", 32)

	_, err := setup.db.CreateDeployment(ctx, imageA)
	require.Nil(t, err)
	b, err := setup.db.CreateDeployment(ctx, imageB)
	require.Nil(t, err)

	active, err := setup.db.ActiveDeployment(ctx)
	require.Nil(t, err)
	assert.Equal(t, b.ID, active.ID)
	assert.Equal(t, imageB, active.Image)

	count := -1
	err = setup.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deployments WHERE superseded_at IS NULL;`).Scan(&count)
	require.Nil(t, err)
	assert.Equal(t, 1, count)
}
