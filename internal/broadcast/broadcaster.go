// Package broadcast fans out pipeline events (opportunities, pool updates)
// to subscribers. Delivery is decoupled per subscriber through bounded
// queues: a slow or disconnected subscriber never blocks event production,
// it just loses its oldest undelivered events.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"dexradar/internal/domain"
	"dexradar/internal/observability"
)

// defaultQueueSize is the per-subscriber buffer when none is configured.
const defaultQueueSize = 256

// Subscriber is one consumer's handle. Events arrive on C; Close detaches
// the subscriber and releases its queue.
type Subscriber struct {
	id      uint64
	ch      chan domain.Event
	b       *Broadcaster
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the subscriber's event channel. Each subscription starts from
// "now": there is no replay of history.
func (s *Subscriber) C() <-chan domain.Event { return s.ch }

// Dropped returns how many events were discarded for this subscriber because
// its queue overflowed.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.b.remove(s.id)
	})
}

// Broadcaster is the fan-out point between the detection pipeline and the
// real-time API layer.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[uint64]*Subscriber
	nextID    uint64
	queueSize int
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a Broadcaster with the given per-subscriber queue size.
func New(queueSize int, metrics *observability.Metrics, logger *slog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Broadcaster{
		subs:      make(map[uint64]*Subscriber),
		queueSize: queueSize,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "broadcaster")),
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscriber{
		id: b.nextID,
		ch: make(chan domain.Event, b.queueSize),
		b:  b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers an event to every subscriber without blocking. When a
// subscriber's queue is full, the oldest queued event is dropped to make
// room, and the drop is counted.
func (b *Broadcaster) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		for {
			select {
			case sub.ch <- ev:
			default:
				// Queue full: drop the oldest and retry.
				select {
				case <-sub.ch:
					sub.dropped.Add(1)
					if b.metrics != nil {
						b.metrics.EventsDropped.Inc()
					}
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}
