// Package dispatch fans committed mutations out to live subscribers.
//
// Events travel through Redis pub/sub so every instance sees every publish,
// then through an in-process broker to the instance's own SSE clients. There
// is no replay buffer: a disconnected subscriber misses events and re-fetches
// full state on reconnect.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Dispatcher publishes board events and bridges them to local subscribers.
type Dispatcher struct {
	rc     *redis.Client
	broker *Broker
	logger *log.Logger
}

func New(rc *redis.Client, logger *log.Logger) *Dispatcher {
	return &Dispatcher{rc: rc, broker: NewBroker(), logger: logger}
}

// Publish sends one event to the topic. The Redis channel name is the topic
// name, so per-topic ordering follows Redis publish order. Callers invoke
// this only after a successful commit.
func (d *Dispatcher) Publish(ctx context.Context, topic string, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return d.rc.Publish(ctx, topic, payload).Err()
}

// Subscribe attaches a local subscriber to a topic.
func (d *Dispatcher) Subscribe(topic string) (<-chan []byte, func()) {
	return d.broker.Subscribe(topic)
}

// Run consumes the Redis channels and feeds the local broker. It blocks
// until ctx is cancelled, reconnecting with a short delay when the pub/sub
// connection drops.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		sub := d.rc.PSubscribe(ctx, domain.TopicBoard("*"), domain.TopicBoards)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				d.broker.Publish(msg.Channel, []byte(msg.Payload))
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		d.logger.Error("dispatch pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
