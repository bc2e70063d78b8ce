package events

import (
	"sync"
	"time"

	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventPoolCreated          EventType = "pool.created"
	EventPoolUpdated          EventType = "pool.updated"
	EventPoolDeleted          EventType = "pool.deleted"
	EventVipCreated           EventType = "vip.created"
	EventVipUpdated           EventType = "vip.updated"
	EventVipDeleted           EventType = "vip.deleted"
	EventMemberCreated        EventType = "member.created"
	EventMemberUpdated        EventType = "member.updated"
	EventMemberDeleted        EventType = "member.deleted"
	EventHealthMonitorCreated EventType = "health_monitor.created"
	EventHealthMonitorUpdated EventType = "health_monitor.updated"
	EventHealthMonitorDeleted EventType = "health_monitor.deleted"
)

// Event is a lifecycle change of a pool or one of its children
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	PoolID    string

	// Member is set on member events
	Member *types.Member

	Message  string
	Metadata map[string]string
}

// NewEvent creates an event with a fresh ID
func NewEvent(eventType EventType, poolID string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		PoolID:    poolID,
	}
}

// NewMemberEvent creates a member event. The pool is taken from the member.
func NewMemberEvent(eventType EventType, member types.Member) *Event {
	e := NewEvent(eventType, member.PoolID)
	e.Member = &member
	return e
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// subscription queues events for one subscriber without bound and feeds
// them to its channel in order, so a slow reader delays but never loses
// events.
type subscription struct {
	out    Subscriber
	mu     sync.Mutex
	queue  []*Event
	notify chan struct{}
	done   chan struct{}
}

func newSubscription() *subscription {
	s := &subscription{
		out:    make(Subscriber, 50),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscription) push(event *Event) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]*subscription
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]*subscription),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. It is safe to call more than once. Events already
// queued for a subscriber are still delivered until it unsubscribes.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscription()
	b.subscribers[sub.out] = sub
	return sub.out
}

// Unsubscribe removes a subscription. Its channel is closed and events not
// yet received are discarded.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subscribers[sub]
	if !ok {
		return
	}
	delete(b.subscribers, sub)
	close(s.done)
}

// Publish publishes an event to all subscribers. Events published after
// Stop are dropped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		sub.push(event)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
