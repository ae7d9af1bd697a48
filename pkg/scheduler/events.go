package scheduler

import (
	"strings"
	"sync"

	"github.com/quayside/flotilla/pkg/structs"
)

// Event is emitted on every task state transition this process performs or
// observes via its daemons. Events from transitions performed by other
// instances are not seen here; subscribers needing a global view should poll.
type Event struct {
	Task  *structs.Task
	State structs.TaskState
}

// Subscription is a read handle onto the event stream. Close it when done or
// the broker keeps publishing into its buffer.
type Subscription struct {
	broker *Broker
	id     int64

	// C delivers matching events. When the buffer is full further events are
	// dropped for this subscriber rather than blocking the publisher.
	C chan *Event
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s.id)
}

type subscriber struct {
	prefix string
	states map[structs.TaskState]bool
	ch     chan *Event
}

// Broker fans task events out to in-process subscribers.
type Broker struct {
	mu      sync.Mutex
	nextID  int64
	buffer  int
	subs    map[int64]*subscriber
	dropped int64
}

func newBroker(buffer int) *Broker {
	return &Broker{buffer: buffer, subs: map[int64]*subscriber{}}
}

// Subscribe registers interest in transitions into any of the given states,
// optionally filtered to tasks whose group key starts with prefix. No states
// means all states.
func (b *Broker) Subscribe(prefix string, states ...structs.TaskState) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := map[structs.TaskState]bool{}
	for _, s := range states {
		want[s] = true
	}

	b.nextID++
	sub := &subscriber{prefix: prefix, states: want, ch: make(chan *Event, b.buffer)}
	b.subs[b.nextID] = sub
	return &Subscription{broker: b, id: b.nextID, C: sub.ch}
}

func (b *Broker) unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish delivers the event to all matching subscribers without blocking.
func (b *Broker) Publish(task *structs.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if len(sub.states) > 0 && !sub.states[task.State] {
			continue
		}
		if sub.prefix != "" && !strings.HasPrefix(task.GroupKey, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- &Event{Task: task, State: task.State}:
		default:
			b.dropped++
		}
	}
}

// Dropped reports how many events were discarded due to full subscriber buffers.
func (b *Broker) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
