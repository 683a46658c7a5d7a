package dispatch

import "sync"

const subscriberBuffer = 32

// Broker fans payloads out to topic subscribers. Delivery is best-effort and
// at-most-once: a subscriber whose buffer is full misses the payload.
// Publishes to one topic reach each subscriber in publish order.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a subscriber on the topic. The returned cancel
// function removes the subscription and closes the channel.
func (b *Broker) Subscribe(topic string) (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan []byte]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[topic]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers payload to every current subscriber of the topic. Slow
// subscribers are skipped, never blocked on.
func (b *Broker) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers on a topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
