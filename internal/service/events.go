package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trafficwarden/internal/domain"
)

// EventType names a domain event.
type EventType string

const (
	EventPolicyCreated     EventType = "policy_created"
	EventPolicyUpdated     EventType = "policy_updated"
	EventPolicyDeleted     EventType = "policy_deleted"
	EventClassCreated      EventType = "traffic_class_created"
	EventClassUpdated      EventType = "traffic_class_updated"
	EventClassDeleted      EventType = "traffic_class_deleted"
	EventClassifierCreated EventType = "traffic_classifier_created"
	EventClassifierUpdated EventType = "traffic_classifier_updated"
	EventClassifierDeleted EventType = "traffic_classifier_deleted"
	EventAssignmentCreated EventType = "interface_qos_created"
	EventAssignmentUpdated EventType = "interface_qos_updated"
	EventAssignmentDeleted EventType = "interface_qos_deleted"
	EventPolicyApplied     EventType = "qos_policy_applied"
	EventPolicyRemoved     EventType = "qos_policy_removed"
	EventStatusChanged     EventType = "interface_qos_status_changed"

	// EventAny subscribes a handler to every event type.
	EventAny EventType = "*"
)

// Event is the single payload shape for all domain events. Which fields are
// set depends on Type; Type is the discriminant.
type Event struct {
	Type     EventType `json:"type"`
	Entity   string    `json:"entity,omitempty"`
	EntityID string    `json:"entity_id,omitempty"`
	// Changes describes field-level updates for *_updated events.
	Changes map[string]any `json:"changes,omitempty"`
	// Application fields for applied/removed/status events.
	PolicyID    string           `json:"policy_id,omitempty"`
	InterfaceID string           `json:"interface_id,omitempty"`
	Direction   domain.Direction `json:"direction,omitempty"`
	OldActive   *bool            `json:"old_active,omitempty"`
	NewActive   *bool            `json:"new_active,omitempty"`
	At          time.Time        `json:"at"`
}

// Handler receives a published event. Handlers are side-effecting observers;
// a panicking handler is recovered and logged, never re-raised to the
// publisher.
type Handler func(Event)

type subscription struct {
	id      string
	typ     EventType
	handler Handler
}

// EventBus is a process-local publish/subscribe bus. One instance is created
// at startup and handed to every service; handlers for a type run in
// registration order on the publisher's goroutine.
type EventBus struct {
	mu   sync.RWMutex
	subs map[EventType][]*subscription
	log  *logrus.Logger
}

// NewEventBus creates an event bus.
func NewEventBus(log *logrus.Logger) *EventBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventBus{
		subs: make(map[EventType][]*subscription),
		log:  log,
	}
}

// Subscribe registers a handler for one event type (or EventAny for all) and
// returns a subscription id for later removal.
func (b *EventBus) Subscribe(t EventType, h Handler) string {
	sub := &subscription{id: uuid.NewString(), typ: t, handler: h}

	b.mu.Lock()
	b.subs[t] = append(b.subs[t], sub)
	b.mu.Unlock()

	return sub.id
}

// Unsubscribe removes the handler identified by id. It returns a not-found
// error if the subscription does not exist.
func (b *EventBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == id {
				b.subs[t] = append(subs[:i:i], subs[i+1:]...)
				return nil
			}
		}
	}
	return domain.NotFound("subscription %s not found", id)
}

// Publish delivers the event synchronously to every handler registered for
// its type, then to wildcard handlers, in registration order. Handler panics
// are logged and do not interrupt delivery.
func (b *EventBus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]*subscription, 0, len(b.subs[event.Type])+len(b.subs[EventAny]))
	handlers = append(handlers, b.subs[event.Type]...)
	handlers = append(handlers, b.subs[EventAny]...)
	b.mu.RUnlock()

	for _, sub := range handlers {
		b.invoke(sub, event)
	}
}

// PublishAsync delivers the event on a separate goroutine. Callers must not
// depend on handlers having run when it returns.
func (b *EventBus) PublishAsync(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	go b.Publish(event)
}

func (b *EventBus) invoke(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"event":        event.Type,
				"subscription": sub.id,
				"panic":        r,
			}).Error("event handler panicked")
		}
	}()
	sub.handler(event)
}
