// Process-wide fan-out hub for elimination events in squidElim.
// Every live viewer connection is registered here as a subscriber and
// receives every event published after its registration, best-effort.

package elimination

import (
	"sync"

	"github.com/PsychoGas/squidElim/internal/entity"
	"github.com/PsychoGas/squidElim/pkg/log"

	"github.com/rs/xid"
)

// Number of undelivered events a subscriber can lag behind before the
// Publisher gives up on it. The whole game can only ever produce 100
// elimination events, so a sink this far behind has stopped draining.
const subscriberBufferSize = 16

// Publisher owns the set of active subscribers for its process lifetime.
// The set starts empty, is never persisted, and a restart drops every
// subscriber; viewers reconnect and resynchronize via a fresh roster fetch.
type Publisher struct {
	logger log.Logger

	mu          sync.RWMutex
	subscribers map[string]*entity.Subscriber
	closed      bool
}

// Returns a new Publisher instance to be shared by every endpoint handler.
func NewPublisher(logger log.Logger) *Publisher {
	return &Publisher{
		logger:      logger,
		subscribers: make(map[string]*entity.Subscriber),
	}
}

// Subscribe allocates and registers a new subscriber.
// The returned handle is used both for receiving events and for unsubscribing later.
func (p *Publisher) Subscribe() *entity.Subscriber {
	subscriber := &entity.Subscriber{
		ID:      xid.New().String(),
		Channel: make(chan entity.EliminationEvent, subscriberBufferSize),
	}
	p.mu.Lock()
	if p.closed {
		// Publisher already torn down, hand back a dead subscriber so the
		// stream handler exits its receive loop immediately.
		close(subscriber.Channel)
		p.mu.Unlock()
		return subscriber
	}
	p.subscribers[subscriber.ID] = subscriber
	p.mu.Unlock()

	p.logger.Info().Msgf("Registered subscriber %s into the elimination publisher", subscriber.ID)
	return subscriber
}

// Unsubscribe removes the subscriber from the active set and closes its channel.
// Idempotent, removing an unknown or already-removed subscriber is a no-op.
// Safe to call concurrently with an in-flight Publish.
func (p *Publisher) Unsubscribe(subscriber *entity.Subscriber) {
	p.mu.Lock()
	_, active := p.subscribers[subscriber.ID]
	if active {
		delete(p.subscribers, subscriber.ID)
		close(subscriber.Channel)
	}
	p.mu.Unlock()

	if active {
		p.logger.Info().Msgf("Removed subscriber %s from the elimination publisher", subscriber.ID)
	}
}

// Publish delivers event to every subscriber active at the moment of the call.
// Delivery to one subscriber never blocks or fails delivery to the others; a
// subscriber whose buffer is full is silently evicted and iteration continues.
// Publish never surfaces an error to its caller.
func (p *Publisher) Publish(event entity.EliminationEvent) {
	// Sends happen under the read lock; they're non-blocking, so the lock is
	// held briefly, and Unsubscribe's exclusive lock can't close a channel
	// mid-send. Concurrent Publish calls are free to interleave.
	var stuck []*entity.Subscriber
	p.mu.RLock()
	for _, subscriber := range p.subscribers {
		select {
		case subscriber.Channel <- event:
		default:
			// Sink stopped draining, evict it below outside the read lock.
			stuck = append(stuck, subscriber)
		}
	}
	p.mu.RUnlock()

	for _, subscriber := range stuck {
		p.logger.Warn().Msgf("Evicting stuck subscriber %s from the elimination publisher", subscriber.ID)
		p.Unsubscribe(subscriber)
	}
}

// ActiveSubscribers returns the current size of the fan-out set.
func (p *Publisher) ActiveSubscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Close tears the publisher down, dropping and closing every subscriber.
// Used during graceful shutdown to terminate open stream connections.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for id, subscriber := range p.subscribers {
		delete(p.subscribers, id)
		close(subscriber.Channel)
	}
	return nil
}
