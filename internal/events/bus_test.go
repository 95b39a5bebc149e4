package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch1)
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch1; ok {
		t.Error("expected unsubscribed channel to be closed")
	}

	bus.Unsubscribe(ch2)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewWorkerStartedEvent(3))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventWorkerStarted {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventWorkerStarted, received.Type)
			}
			if received.WorkerID != 3 {
				t.Errorf("subscriber %d: expected worker 3, got %d", i, received.WorkerID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 1

	ch := bus.Subscribe()

	bus.Publish(NewWorkerStartedEvent(1))
	bus.Publish(NewWorkerStartedEvent(2))
	bus.Publish(NewWorkerStartedEvent(3))

	select {
	case ev := <-ch:
		if ev.WorkerID != 1 {
			t.Errorf("expected first event to be kept, got worker %d", ev.WorkerID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}
}

func TestBusPublishNil(t *testing.T) {
	var bus *Bus
	// must not panic
	bus.Publish(NewPoolTerminatedEvent())
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}

	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Error("expected subscription after close to be closed")
	}

	bus.Publish(NewPoolTerminatedEvent())
}

func TestEventCreation(t *testing.T) {
	t.Run("WorkerExited", func(t *testing.T) {
		ev := NewWorkerExitedEvent(2, "drained")
		if ev.Type != EventWorkerExited {
			t.Errorf("expected %s, got %s", EventWorkerExited, ev.Type)
		}
		if ev.Data.Reason != "drained" {
			t.Errorf("expected reason drained, got %s", ev.Data.Reason)
		}
	})

	t.Run("JobFailed", func(t *testing.T) {
		ev := NewJobFailedEvent(1, errors.New("boom"))
		if ev.Data.Error != "boom" {
			t.Errorf("expected boom, got %s", ev.Data.Error)
		}
		if NewJobFailedEvent(1, nil).Data.Error != "" {
			t.Error("expected empty error for nil")
		}
	})

	t.Run("PoolShutdown", func(t *testing.T) {
		ev := NewPoolShutdownEvent(7)
		if ev.Type != EventPoolShutdown || ev.Data.Pending != 7 {
			t.Errorf("unexpected event: %+v", ev)
		}
		if NewPoolTerminatedEvent().Type != EventPoolTerminated {
			t.Error("expected terminated type")
		}
	})
}
