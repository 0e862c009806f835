package connection

import (
	"sync"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

// EventKind distinguishes entries on the manager's event stream.
type EventKind int

const (
	// EventStateChanged carries the new ConnectionState and nothing else.
	EventStateChanged EventKind = iota
	// EventMessage carries one inbound text frame.
	EventMessage
)

// Event is one entry of the totally ordered stream consumed by the session.
type Event struct {
	Kind    EventKind
	State   chat.ConnectionState
	Payload string
}

// eventQueue is an unbounded FIFO in front of an unbuffered channel, so
// producers holding the manager lock never block on a slow consumer.
type eventQueue struct {
	mu      sync.Mutex
	items   []Event
	signal  chan struct{}
	out     chan Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		signal:  make(chan struct{}, 1),
		out:     make(chan Event),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pump() {
	defer close(q.stopped)
	defer close(q.out)

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.signal:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// close stops the pump and waits for it; pending events are discarded.
func (q *eventQueue) close() {
	q.once.Do(func() { close(q.done) })
	<-q.stopped
}
