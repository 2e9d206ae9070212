package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Bus provides pub/sub event distribution with fan-out support.
// Delivery is best effort: at most once per subscriber, in publish
// order per topic.
type Bus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, evt Event) error

	// Subscribe creates a subscription for specific topics.
	Subscribe(types []string, handler Handler) Subscription

	// SubscribeAll subscribes to every topic.
	SubscribeAll(handler Handler) Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe removes the subscription.
	Unsubscribe()
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// MaxSubscribers limits total subscriptions.
	// Default: 0 (unlimited)
	MaxSubscribers int

	// NonBlocking makes Publish non-blocking (drops events if a
	// subscriber's buffer is full).
	// Default: false (blocking)
	NonBlocking bool

	// OnDrop is called when an event is dropped (non-blocking mode).
	OnDrop func(evt Event, subscriberID string)

	// OnError is called when a handler returns an error.
	OnError func(evt Event, subscriberID string, err error)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// LocalBus is an in-memory bus implementation. Each subscription owns a
// buffered channel drained by its own goroutine, so one slow subscriber
// never reorders delivery for another.
type LocalBus struct {
	config BusConfig

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	byType        map[string]map[string]*subscription // topic -> subscription ID -> subscription
	wildcards     map[string]*subscription            // subscriptions for all topics

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
}

// NewBus creates a new local event bus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}

	return &LocalBus{
		config:        config,
		subscriptions: make(map[string]*subscription),
		byType:        make(map[string]map[string]*subscription),
		wildcards:     make(map[string]*subscription),
		closeCh:       make(chan struct{}),
	}
}

// subscription is an internal subscription implementation.
type subscription struct {
	id      string
	types   []string // empty = all topics
	handler Handler
	events  chan Event
	done    chan struct{}
	bus     *LocalBus

	unsubscribed atomic.Bool
}

// Publish sends an event to all matching subscribers.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	subs := b.getMatchingSubscriptions(evt.Type())
	b.mu.RUnlock()

	for _, sub := range subs {
		if b.config.NonBlocking {
			select {
			case sub.events <- evt:
			default:
				// Buffer full - drop event
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
			}
		} else {
			select {
			case sub.events <- evt:
			case <-ctx.Done():
				return ctx.Err()
			case <-b.closeCh:
				return ErrBusClosed
			}
		}
	}

	return nil
}

// Subscribe creates a subscription for specific topics. Returns nil if
// the bus is closed or the subscriber limit is reached.
func (b *LocalBus) Subscribe(types []string, handler Handler) Subscription {
	if s := b.subscribe(types, handler); s != nil {
		return s
	}
	return nil
}

// SubscribeAll subscribes to every topic. Returns nil if the bus is
// closed or the subscriber limit is reached.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	if s := b.subscribe(nil, handler); s != nil {
		return s
	}
	return nil
}

func (b *LocalBus) subscribe(types []string, handler Handler) *subscription {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.MaxSubscribers > 0 && len(b.subscriptions) >= b.config.MaxSubscribers {
		return nil
	}

	sub := &subscription{
		id:      "sub-" + strconv.FormatInt(b.nextID.Add(1), 10),
		types:   types,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}

	b.subscriptions[sub.id] = sub

	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}

	go sub.process()

	return sub
}

// getMatchingSubscriptions returns all subscriptions matching a topic.
// Caller holds b.mu.
func (b *LocalBus) getMatchingSubscriptions(eventType string) []*subscription {
	subs := make([]*subscription, 0, len(b.wildcards)+len(b.byType[eventType]))

	if typeSubs, ok := b.byType[eventType]; ok {
		for _, sub := range typeSubs {
			subs = append(subs, sub)
		}
	}

	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}

	return subs
}

// Close shuts down the bus. Events still buffered in subscriptions are
// dropped.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	close(b.closeCh)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		if sub.unsubscribed.CompareAndSwap(false, true) {
			close(sub.done)
		}
	}

	return nil
}

// process drains events for a subscription.
func (s *subscription) process() {
	for {
		select {
		case evt := <-s.events:
			err := s.handler.Handle(context.Background(), evt)
			if err != nil && s.bus.config.OnError != nil {
				s.bus.config.OnError(evt, s.id, err)
			}

		case <-s.done:
			return
		}
	}
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subscriptions, s.id)
	delete(s.bus.wildcards, s.id)

	for _, t := range s.types {
		if typeSubs, ok := s.bus.byType[t]; ok {
			delete(typeSubs, s.id)
		}
	}

	if s.unsubscribed.CompareAndSwap(false, true) {
		close(s.done)
	}
}
