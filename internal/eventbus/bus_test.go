package eventbus

import (
	"testing"
	"time"

	"bus-ops/internal/domain"
	"bus-ops/pkg/logger"
)

func testEvent(key string) domain.Event {
	return domain.TripLocationEvent{
		Trip: "trip-1",
		Key:  key,
		At:   time.Now(),
	}
}

func TestSendDeliversToSubscriber(t *testing.T) {
	b := New(logger.NewLogger("bus-test"))
	sub := b.Subscribe("dash-1")

	if !b.Send("dash-1", testEvent("k1")) {
		t.Fatal("send to live subscriber should succeed")
	}

	select {
	case ev := <-sub.Events():
		if ev.IdempotencyKey() != "k1" {
			t.Errorf("expected k1, got %s", ev.IdempotencyKey())
		}
	default:
		t.Fatal("event not buffered")
	}
}

func TestSendToUnknownSubscriber(t *testing.T) {
	b := New(logger.NewLogger("bus-test"))
	if b.Send("nobody", testEvent("k1")) {
		t.Error("send to unknown id should report false")
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewWithBuffer(logger.NewLogger("bus-test"), 1)
	sub := b.Subscribe("slow")

	if !b.Send("slow", testEvent("k1")) {
		t.Fatal("first send fills the buffer")
	}
	if b.Send("slow", testEvent("k2")) {
		t.Fatal("overflowing send must fail")
	}

	// The dropped subscriber can still drain what was buffered, then
	// sees the closed channel as its resync signal.
	if ev, ok := <-sub.Events(); !ok || ev.IdempotencyKey() != "k1" {
		t.Fatalf("expected buffered k1, got %v ok=%v", ev, ok)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel after drop")
	}

	if b.Send("slow", testEvent("k3")) {
		t.Error("dropped subscriber should no longer be addressable")
	}
}

func TestResubscribeReplacesOld(t *testing.T) {
	b := New(logger.NewLogger("bus-test"))
	old := b.Subscribe("dash-1")
	fresh := b.Subscribe("dash-1")

	if _, ok := <-old.Events(); ok {
		t.Error("replaced subscription should be closed")
	}

	if !b.Send("dash-1", testEvent("k1")) {
		t.Fatal("send after resubscribe failed")
	}
	select {
	case ev := <-fresh.Events():
		if ev.IdempotencyKey() != "k1" {
			t.Errorf("expected k1, got %s", ev.IdempotencyKey())
		}
	default:
		t.Fatal("replacement did not receive the event")
	}
}

func TestCloseDoesNotDisturbReplacement(t *testing.T) {
	b := New(logger.NewLogger("bus-test"))
	old := b.Subscribe("dash-1")
	fresh := b.Subscribe("dash-1")

	// Closing the stale handle must not unregister the replacement.
	old.Close()

	if !b.Send("dash-1", testEvent("k1")) {
		t.Fatal("replacement should still be registered")
	}
	select {
	case <-fresh.Events():
	default:
		t.Fatal("replacement lost its event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(logger.NewLogger("bus-test"))
	sub := b.Subscribe("dash-1")
	b.Unsubscribe("dash-1")

	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if b.Send("dash-1", testEvent("k1")) {
		t.Error("send after unsubscribe should fail")
	}
}
