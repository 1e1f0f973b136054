package service

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"trafficwarden/internal/domain"
)

func newTestBus() *EventBus {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewEventBus(log)
}

func TestEventBusPublish(t *testing.T) {
	t.Run("handlers run in registration order", func(t *testing.T) {
		bus := newTestBus()
		var order []int
		bus.Subscribe(EventClassCreated, func(Event) { order = append(order, 1) })
		bus.Subscribe(EventClassCreated, func(Event) { order = append(order, 2) })
		bus.Subscribe(EventClassCreated, func(Event) { order = append(order, 3) })

		bus.Publish(Event{Type: EventClassCreated})

		if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
			t.Errorf("unexpected delivery order: %v", order)
		}
	})

	t.Run("only matching type is delivered", func(t *testing.T) {
		bus := newTestBus()
		var got []EventType
		bus.Subscribe(EventClassCreated, func(e Event) { got = append(got, e.Type) })

		bus.Publish(Event{Type: EventClassDeleted})
		bus.Publish(Event{Type: EventClassCreated})

		if len(got) != 1 || got[0] != EventClassCreated {
			t.Errorf("unexpected deliveries: %v", got)
		}
	})

	t.Run("wildcard receives everything", func(t *testing.T) {
		bus := newTestBus()
		count := 0
		bus.Subscribe(EventAny, func(Event) { count++ })

		bus.Publish(Event{Type: EventClassCreated})
		bus.Publish(Event{Type: EventPolicyApplied})

		if count != 2 {
			t.Errorf("expected 2 deliveries, got %d", count)
		}
	})

	t.Run("panicking handler does not block later handlers", func(t *testing.T) {
		bus := newTestBus()
		delivered := false
		bus.Subscribe(EventClassCreated, func(Event) { panic("handler broke") })
		bus.Subscribe(EventClassCreated, func(Event) { delivered = true })

		bus.Publish(Event{Type: EventClassCreated})

		if !delivered {
			t.Error("expected second handler to run after first panicked")
		}
	})

	t.Run("publish stamps time", func(t *testing.T) {
		bus := newTestBus()
		var got Event
		bus.Subscribe(EventClassCreated, func(e Event) { got = e })

		bus.Publish(Event{Type: EventClassCreated})

		if got.At.IsZero() {
			t.Error("expected event timestamp to be set")
		}
	})
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var first, second int
	id := bus.Subscribe(EventClassCreated, func(Event) { first++ })
	bus.Subscribe(EventClassCreated, func(Event) { second++ })

	bus.Publish(Event{Type: EventClassCreated})

	if err := bus.Unsubscribe(id); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	bus.Publish(Event{Type: EventClassCreated})

	if first != 1 {
		t.Errorf("expected unsubscribed handler to stop at 1, got %d", first)
	}
	if second != 2 {
		t.Errorf("expected remaining handler to keep receiving, got %d", second)
	}

	t.Run("unknown id is a not-found error", func(t *testing.T) {
		if err := bus.Unsubscribe("missing"); !domain.IsNotFound(err) {
			t.Errorf("expected not-found, got %v", err)
		}
	})

	t.Run("double unsubscribe fails", func(t *testing.T) {
		if err := bus.Unsubscribe(id); !domain.IsNotFound(err) {
			t.Errorf("expected not-found, got %v", err)
		}
	})
}
