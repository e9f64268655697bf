package events

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	ch1, unsub1 := bus.Subscribe(EventSignal, 1)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(EventSignal, 1)
	defer unsub2()

	bus.Publish(EventSignal, "payload")

	for i, ch := range []<-chan any{ch1, ch2} {
		select {
		case got := <-ch:
			if got != "payload" {
				t.Fatalf("subscriber %d got %v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive payload", i)
		}
	}
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventSignal, 1)
	defer unsub()

	bus.Publish(EventKlineClosed, "kline")

	select {
	case got := <-ch:
		t.Fatalf("unexpected payload %v", got)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventSignal, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		bus.Publish(EventSignal, 1)
		bus.Publish(EventSignal, 2) // buffer full, must drop
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if got := <-ch; got != 1 {
		t.Fatalf("expected first payload, got %v", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("dropped payload was delivered: %v", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventSignal, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventSignal, "late")
}
