// Package events fans monitor events out to in-process subscribers and
// external sinks.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/observability/metrics"
)

// Sink delivers events outside the process.
type Sink interface {
	Publish(ctx context.Context, e models.Event) error
}

type subscriber struct {
	name string
	ch   chan models.Event
}

// Bus is an in-process broadcast of monitor events. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	next    uint64
	closed  bool
	metrics *metrics.Metrics
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[uint64]*subscriber),
		metrics: metrics.DefaultMetrics,
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (b *Bus) Subscribe(name string, buffer int) (<-chan models.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = &subscriber{name: name, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish delivers e to every subscriber that has room.
func (b *Bus) Publish(e models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			b.metrics.RecordBusDrop(s.name)
			if e.EventName() != models.EventAmplitude {
				log.Warn().
					Str("subscriber", s.name).
					Str("eventType", e.EventName()).
					Msg("Subscriber too slow, event dropped")
			}
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}

// Forward drains ch into sink until ctx is done or ch is closed. Sink errors
// are logged and do not stop forwarding.
func Forward(ctx context.Context, ch <-chan models.Event, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := sink.Publish(ctx, e); err != nil {
				log.Debug().Err(err).Str("eventType", e.EventName()).Msg("Sink publish failed")
			}
		}
	}
}
