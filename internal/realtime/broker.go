// Package realtime delivers table-scoped change notifications to subscribers.
package realtime

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ResourceBookings      = "bookings"
	ResourceUsers         = "users"
	ResourceNotifications = "notifications"

	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"

	defaultQueueSize = 64
)

var (
	ErrBrokerClosed    = errors.New("broker closed")
	ErrNoResources     = errors.New("at least one resource is required")
	ErrNilSubscriberFn = errors.New("subscriber callback is required")
)

// Change identifies a mutation of one backend resource.
type Change struct {
	Resource string    `json:"resource"`
	Event    string    `json:"event"`
	RecordID string    `json:"record_id,omitempty"`
	At       time.Time `json:"at"`
}

// Broker fans published changes out to subscribers. Each subscription has its
// own queue and delivery goroutine, so a slow subscriber never blocks Publish.
type Broker struct {
	queueSize int
	mu        sync.RWMutex
	subs      map[uuid.UUID]*Subscription
	closed    bool
}

// NewBroker creates a broker whose subscriptions buffer up to queueSize
// changes. A non-positive queueSize uses the default.
func NewBroker(queueSize int) *Broker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Broker{
		queueSize: queueSize,
		subs:      make(map[uuid.UUID]*Subscription),
	}
}

// Subscription is a live registration. Unsubscribe releases it.
type Subscription struct {
	id        uuid.UUID
	broker    *Broker
	resources map[string]struct{}
	queue     chan Change
	fn        func(Change)
	done      chan struct{}
	stopOnce  sync.Once
}

// Subscribe registers fn for changes to any of resources. fn is called from a
// single goroutine per subscription, in publish order.
func (b *Broker) Subscribe(resources []string, fn func(Change)) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilSubscriberFn
	}
	set := make(map[string]struct{}, len(resources))
	for _, resource := range resources {
		resource = strings.TrimSpace(resource)
		if resource != "" {
			set[resource] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, ErrNoResources
	}

	sub := &Subscription{
		id:        uuid.New(),
		broker:    b,
		resources: set,
		queue:     make(chan Change, b.queueSize),
		fn:        fn,
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.deliver()

	log.Debug().Str("subscription_id", sub.id.String()).Strs("resources", resources).Msg("Change subscription registered")
	return sub, nil
}

// Publish queues change for every subscriber of its resource. A subscriber
// whose queue is full misses the change.
func (b *Broker) Publish(change Change) {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if _, ok := sub.resources[change.Resource]; !ok {
			continue
		}
		select {
		case sub.queue <- change:
		default:
			log.Warn().
				Str("subscription_id", sub.id.String()).
				Str("resource", change.Resource).
				Msg("Change subscriber queue full; dropping change")
		}
	}
}

// Close unsubscribes everyone and rejects new subscriptions.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// SubscriberCount reports live subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// ID returns the subscription identifier.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Unsubscribe stops delivery and waits for an in-progress callback to return.
// It is safe to call more than once, but not from inside the callback.
func (s *Subscription) Unsubscribe() {
	s.stopOnce.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.id)
		s.broker.mu.Unlock()

		close(s.queue)
		<-s.done
		log.Debug().Str("subscription_id", s.id.String()).Msg("Change subscription released")
	})
}

func (s *Subscription) deliver() {
	defer close(s.done)
	for change := range s.queue {
		s.invoke(change)
	}
}

func (s *Subscription) invoke(change Change) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("subscription_id", s.id.String()).
				Str("resource", change.Resource).
				Interface("panic", r).
				Msg("Change subscriber panicked")
		}
	}()
	s.fn(change)
}
