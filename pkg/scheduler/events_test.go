package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quayside/flotilla/pkg/structs"
)

func TestSubscribeStateFilter(t *testing.T) {
	b := newBroker(4)
	sub := b.Subscribe("", structs.TaskExpired)
	defer sub.Close()

	b.Publish(&structs.Task{ID: "a", State: structs.TaskCreated})
	b.Publish(&structs.Task{ID: "b", State: structs.TaskExpired})

	evt := <-sub.C
	assert.Equal(t, "b", evt.Task.ID)
	assert.Equal(t, structs.TaskExpired, evt.State)
	assert.Empty(t, sub.C)
}

func TestSubscribeGroupPrefixFilter(t *testing.T) {
	b := newBroker(4)
	sub := b.Subscribe("sync")
	defer sub.Close()

	b.Publish(&structs.Task{ID: "a", State: structs.TaskCreated, TaskSpec: structs.TaskSpec{GroupKey: "webhook::acct-1"}})
	b.Publish(&structs.Task{ID: "b", State: structs.TaskCreated, TaskSpec: structs.TaskSpec{GroupKey: "sync::acct-1"}})
	b.Publish(&structs.Task{ID: "c", State: structs.TaskStarted, TaskSpec: structs.TaskSpec{GroupKey: "sync::acct-2"}})

	assert.Equal(t, "b", (<-sub.C).Task.ID)
	assert.Equal(t, "c", (<-sub.C).Task.ID)
	assert.Empty(t, sub.C)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := newBroker(1)
	sub := b.Subscribe("")
	defer sub.Close()

	// nobody reading; the buffer holds one and the rest are dropped
	for i := 0; i < 10; i++ {
		b.Publish(&structs.Task{ID: "x", State: structs.TaskCreated})
	}

	assert.Len(t, sub.C, 1)
	assert.Equal(t, int64(9), b.Dropped())
}

func TestCloseUnsubscribes(t *testing.T) {
	b := newBroker(4)
	sub := b.Subscribe("")
	sub.Close()

	// publishing after close must not panic
	b.Publish(&structs.Task{ID: "a", State: structs.TaskCreated})

	_, open := <-sub.C
	assert.False(t, open)
}
