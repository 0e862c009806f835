package chatlog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

// Subscription receives ordered snapshots of the log. Only the latest
// snapshot is retained for a slow reader; intermediate ones are replaced.
type Subscription struct {
	id     string
	ch     chan []chat.Message
	cancel func()
}

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan []chat.Message {
	return s.ch
}

// ID identifies the subscription for logging.
func (s *Subscription) ID() string {
	return s.id
}

// Close cancels the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

type subscriber struct {
	ch     chan []chat.Message
	cancel context.CancelFunc
}

// broadcaster fans snapshots out to subscribers.
type broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]subscriber
	closed bool
	logger *zap.Logger
}

func newBroadcaster(logger *zap.Logger) *broadcaster {
	return &broadcaster{
		subs:   make(map[string]subscriber),
		logger: logger,
	}
}

func (b *broadcaster) subscribe(ctx context.Context) (*Subscription, error) {
	id := uuid.NewString()
	ch := make(chan []chat.Message, 1)

	subCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	b.subs[id] = subscriber{ch: ch, cancel: cancel}
	b.mu.Unlock()

	sub := &Subscription{id: id, ch: ch, cancel: cancel}

	go func() {
		<-subCtx.Done()
		b.unsubscribe(id)
	}()

	b.logger.Debug("subscriber added", zap.String("sub_id", id))
	return sub, nil
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	b.logger.Debug("subscriber removed", zap.String("sub_id", id))
}

// deliver offers one snapshot to a single subscriber.
func (b *broadcaster) deliver(id string, snapshot []chat.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if sub, ok := b.subs[id]; ok {
		offer(sub.ch, snapshot)
	}
}

func (b *broadcaster) publish(snapshot []chat.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		offer(sub.ch, snapshot)
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		sub.cancel()
		delete(b.subs, id)
	}
}

// offer never blocks; a stale unread snapshot is replaced by the newer one.
// Callers hold the broadcaster read lock and are the only senders.
func offer(ch chan []chat.Message, snapshot []chat.Message) {
	cp := make([]chat.Message, len(snapshot))
	copy(cp, snapshot)

	select {
	case ch <- cp:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cp:
	default:
	}
}
