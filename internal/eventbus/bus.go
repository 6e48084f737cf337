// Package eventbus is the in-process publish/subscribe hub that connects the
// utility bill and reebill services. Events are routed by topic, the
// qualified name of their Go type, and every delivery carries an Envelope in
// its context.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Handler reacts to one published event.
type Handler func(ctx context.Context, event any) error

// Bus routes events to the handlers subscribed to their topic.
type Bus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(topic string, handler Handler) Subscription
}

var (
	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("eventbus: nil event")
	// ErrUnexpectedEvent is returned by a typed handler given another type.
	ErrUnexpectedEvent = errors.New("eventbus: unexpected event type")
)

// Subscription identifies one registered handler.
type Subscription struct {
	topic string
	id    uint64
}

// Topic returns the topic the subscription listens on.
func (s Subscription) Topic() string { return s.topic }

type subscriber struct {
	id     uint64
	handle Handler
}

// InMemoryBus delivers synchronously, in subscription order.
type InMemoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscriber
}

// NewInMemoryBus returns an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{topics: make(map[string][]subscriber)}
}

// Publish delivers event to every subscriber of its topic. A handler error or
// panic does not stop delivery to the others; all failures are joined.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	topic := Topic(event)
	if _, ok := EnvelopeFromContext(ctx); !ok {
		ctx = WithEnvelope(ctx, NewEnvelope(event))
	}

	b.mu.RLock()
	subs := append([]subscriber(nil), b.topics[topic]...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := deliver(ctx, topic, s.handle, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, topic string, handle Handler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: %s handler panicked: %v", topic, r)
		}
	}()
	return handle(ctx, event)
}

// Subscribe registers handler for topic. An empty topic or nil handler
// yields a zero Subscription and registers nothing.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) Subscription {
	if topic == "" || handler == nil {
		return Subscription{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.topics[topic] = append(b.topics[topic], subscriber{id: b.nextID, handle: handler})
	return Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes a handler. Unknown subscriptions are ignored.
func (b *InMemoryBus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[s.topic]
	for i, sub := range subs {
		if sub.id == s.id {
			b.topics[s.topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// SubscribeTyped registers handler for events of type T, published either by
// value or by pointer.
func SubscribeTyped[T any](bus Bus, handler func(context.Context, T) error) Subscription {
	return bus.Subscribe(TopicOf[T](), func(ctx context.Context, event any) error {
		switch e := event.(type) {
		case T:
			return handler(ctx, e)
		case *T:
			if e != nil {
				return handler(ctx, *e)
			}
		}
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	})
}

// Topic is the qualified type name of event, ignoring pointers.
func Topic(event any) string {
	t := reflect.TypeOf(event)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// TopicOf is Topic for a type parameter.
func TopicOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
