package services

import (
	"sync"

	"github.com/jmagar/editcount/internal/models"
)

const subscriberBuffer = 1

// Broadcaster fans snapshots out to subscribers. A subscriber that has not
// consumed the previous snapshot misses the current one.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan models.Snapshot]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan models.Snapshot]struct{}),
	}
}

// Subscribe registers a new subscriber. Calling cancel removes it and closes
// the channel; cancel is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// Publish delivers the snapshot to every subscriber without blocking
func (b *Broadcaster) Publish(snapshot models.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
