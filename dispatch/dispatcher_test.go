package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	d := New(rc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return d, cancel
}

func waitForPayload(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestDispatcherRoundTrip(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	ch, unsubscribe := d.Subscribe(domain.TopicBoard("b1"))
	defer unsubscribe()

	msg := domain.Message{Type: domain.CardMoved, BoardID: "b1", CardID: "c1", PreviousListID: "l1"}

	// The subscription inside Run attaches asynchronously; retry the publish
	// until the round trip lands.
	deadline := time.Now().Add(3 * time.Second)
	var payload []byte
	for time.Now().Before(deadline) {
		if err := d.Publish(context.Background(), domain.TopicBoard("b1"), msg); err != nil {
			t.Fatal(err)
		}
		select {
		case payload = <-ch:
		case <-time.After(50 * time.Millisecond):
			continue
		}
		break
	}
	if payload == nil {
		t.Fatal("no event received")
	}

	var got domain.Message
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != domain.CardMoved || got.BoardID != "b1" || got.PreviousListID != "l1" {
		t.Fatalf("got %+v", got)
	}
}

func TestDispatcherGlobalTopic(t *testing.T) {
	d, cancel := newTestDispatcher(t)
	defer cancel()

	ch, unsubscribe := d.Subscribe(domain.TopicBoards)
	defer unsubscribe()

	msg := domain.Message{Type: domain.BoardCreated, BoardID: "b9"}
	deadline := time.Now().Add(3 * time.Second)
	var payload []byte
	for time.Now().Before(deadline) {
		if err := d.Publish(context.Background(), domain.TopicBoards, msg); err != nil {
			t.Fatal(err)
		}
		select {
		case payload = <-ch:
		case <-time.After(50 * time.Millisecond):
			continue
		}
		break
	}
	if payload == nil {
		t.Fatal("no event received")
	}

	var got domain.Message
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != domain.BoardCreated || got.BoardID != "b9" {
		t.Fatalf("got %+v", got)
	}
}
