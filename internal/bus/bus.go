package bus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// subscriberBuffer is the per-client outbound queue depth. A slow client
// that fills this buffer triggers the lag-recovery path instead of
// blocking the publisher (spec §5 "Back-pressure: ... slow clients
// receive a synthetic Sync rather than disconnect").
const subscriberBuffer = 256

// subscriber is one connected client's outbound message queue, playing
// the role of a per-client tokio::broadcast::Receiver. Go channels don't
// expose tokio's Lagged(n) signal on overflow, so lag is tracked
// explicitly: a full channel bumps dropped and wakes the forwarder via
// lagNotify instead of silently blocking or panicking.
type subscriber struct {
	clientID  string
	ch        chan *BusMessage
	lagNotify chan struct{}
	dropped   uint64 // atomic

	notifiedDropped uint64 // owned by the forwarder goroutine only
}

func newSubscriber(clientID string) *subscriber {
	return &subscriber{
		clientID:  clientID,
		ch:        make(chan *BusMessage, subscriberBuffer),
		lagNotify: make(chan struct{}, 1),
	}
}

// send enqueues msg without blocking; a full queue counts as a drop.
func (s *subscriber) send(msg *BusMessage) {
	select {
	case s.ch <- msg:
	default:
		atomic.AddUint64(&s.dropped, 1)
		select {
		case s.lagNotify <- struct{}{}:
		default:
		}
	}
}

// pendingLag reports how many messages have been dropped for this
// subscriber since the last call, resetting the counter so repeated calls
// report only new drops.
func (s *subscriber) pendingLag() uint64 {
	total := atomic.LoadUint64(&s.dropped)
	if total <= s.notifiedDropped {
		return 0
	}
	delta := total - s.notifiedDropped
	s.notifiedDropped = total
	return delta
}

// MessageBus is the internal server bus of spec §4.8: one broadcast fan-out
// to every connected client (with unicast filtering by Target) plus an
// ingress path for messages clients send to the server. Grounded on
// original_source/edge-server/src/message/tcp_server.rs's
// `self.sender()`/`self.sender_to_server()` broadcast-channel pair,
// reimplemented with per-subscriber Go channels since Go has no
// broadcast-channel primitive in the standard library.
type MessageBus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber

	// onClientMessage is invoked for every non-ServerCommand message read
	// from a client connection (spec §4.8 "incoming messages are stamped
	// with source = client_id and published"). nil is a valid no-op.
	onClientMessage func(*BusMessage)
}

// New builds an empty MessageBus. onClientMessage may be nil.
func New(onClientMessage func(*BusMessage)) *MessageBus {
	return &MessageBus{
		subscribers:     make(map[string]*subscriber),
		onClientMessage: onClientMessage,
	}
}

func (b *MessageBus) subscribe(clientID string) *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := newSubscriber(clientID)
	b.subscribers[clientID] = sub
	return sub
}

func (b *MessageBus) unsubscribe(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, clientID)
}

// ClientCount returns the number of currently connected clients.
func (b *MessageBus) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Broadcast publishes msg to every connected client, honoring msg.Target
// as a unicast filter when set (spec §4.8 "unicast filtering is by
// target").
func (b *MessageBus) Broadcast(msg *BusMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subscribers {
		if msg.Target != "" && msg.Target != id {
			continue
		}
		sub.send(msg)
	}
}

// publishFromClient implements the ingress half of spec §4.8: stamp
// Source, drop ServerCommand messages sent by a client, and hand
// everything else to onClientMessage.
func (b *MessageBus) publishFromClient(clientID string, msg *BusMessage) {
	msg.Source = clientID
	if msg.EventType == EventServerCommand {
		log.Warn().Str("client_id", clientID).Msg("bus: client attempted to send ServerCommand, dropping")
		return
	}
	if b.onClientMessage != nil {
		b.onClientMessage(msg)
	}
}
