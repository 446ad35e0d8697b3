package ws

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/timeviewer/backend/internal/logging"
	"github.com/timeviewer/backend/internal/session"
)

// DefaultBufferSize is the per-subscriber backlog before updates are dropped.
const DefaultBufferSize = 16

// Subscription receives every update published after it was created.
type Subscription struct {
	ch      chan session.Update
	dropped atomic.Uint64
}

// C is closed when the subscription is removed.
func (s *Subscription) C() <-chan session.Update {
	return s.ch
}

// Dropped counts updates discarded because the subscriber fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster fans updates out to all subscribed viewers. Publish never
// blocks: a subscriber whose buffer is full loses that update.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	log    *logrus.Entry
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    logging.NewLogger("broadcast"),
	}
}

func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan session.Update, b.buffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers u to every current subscriber. With no subscribers it is
// a no-op.
func (b *Broadcaster) Publish(u session.Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- u:
		default:
			n := sub.dropped.Add(1)
			b.log.WithField("dropped", n).Debug("viewer too slow, update dropped")
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
