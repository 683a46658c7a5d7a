package dispatch

import (
	"fmt"
	"testing"
	"time"
)

func TestBrokerDeliversInPublishOrder(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("board:1")
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Publish("board:1", []byte(fmt.Sprintf("m%d", i)))
	}
	for i := 0; i < 5; i++ {
		select {
		case got := <-ch:
			want := fmt.Sprintf("m%d", i)
			if string(got) != want {
				t.Fatalf("got %s, want %s", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	one, cancelOne := b.Subscribe("board:1")
	defer cancelOne()
	two, cancelTwo := b.Subscribe("board:2")
	defer cancelTwo()

	b.Publish("board:1", []byte("only-one"))

	select {
	case got := <-one:
		if string(got) != "only-one" {
			t.Fatalf("got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	select {
	case got := <-two:
		t.Fatalf("leaked across topics: %s", got)
	default:
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("boards")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish("boards", []byte("x"))
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestBrokerCancelRemovesSubscriber(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe("boards")
	if b.SubscriberCount("boards") != 1 {
		t.Fatal("subscriber not registered")
	}
	cancel()
	cancel() // idempotent
	if b.SubscriberCount("boards") != 0 {
		t.Fatal("subscriber not removed")
	}

	// Publishing after cancel must not panic on the closed channel.
	b.Publish("boards", []byte("x"))
}
