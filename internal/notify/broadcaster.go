package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/metrics"
)

// Broadcaster fans notifications out to subscribers such as websocket clients
// and the stdio bridge.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	bufferSize  int
	logger      *zap.Logger
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		bufferSize:  64,
		logger:      logger,
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, b.bufferSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Notify publishes e to all subscribers. Non-blocking: events are dropped for
// slow consumers.
func (b *Broadcaster) Notify(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			b.logger.Debug("dropping notification for slow subscriber", zap.String("name", e.Name))
		}
	}
	metrics.RecordNotification(e.Name)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
