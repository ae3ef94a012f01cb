package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := New(nil)
	subA := b.subscribe("a")
	subB := b.subscribe("b")

	b.Broadcast(NewMessage(EventNotification, []byte("hi")))

	select {
	case <-subA.ch:
	default:
		t.Fatal("subscriber a did not receive broadcast")
	}
	select {
	case <-subB.ch:
	default:
		t.Fatal("subscriber b did not receive broadcast")
	}
}

func TestBroadcastHonorsTargetUnicast(t *testing.T) {
	b := New(nil)
	subA := b.subscribe("a")
	subB := b.subscribe("b")

	msg := NewMessage(EventNotification, []byte("only-a"))
	msg.Target = "a"
	b.Broadcast(msg)

	select {
	case <-subA.ch:
	default:
		t.Fatal("targeted subscriber did not receive message")
	}
	select {
	case <-subB.ch:
		t.Fatal("non-targeted subscriber should not receive message")
	default:
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := New(nil)
	b.subscribe("a")
	assert.Equal(t, 1, b.ClientCount())
	b.unsubscribe("a")
	assert.Equal(t, 0, b.ClientCount())
}

func TestPublishFromClientDropsServerCommand(t *testing.T) {
	var received []*BusMessage
	b := New(func(m *BusMessage) { received = append(received, m) })

	cmd := NewMessage(EventServerCommand, []byte(`{}`))
	b.publishFromClient("evil-client", cmd)

	assert.Empty(t, received)
}

func TestPublishFromClientStampsSourceAndForwards(t *testing.T) {
	var received *BusMessage
	b := New(func(m *BusMessage) { received = m })

	msg := NewMessage(EventRequestCommand, []byte(`{}`))
	b.publishFromClient("client-1", msg)

	require.NotNil(t, received)
	assert.Equal(t, "client-1", received.Source)
}

func TestSubscriberSendTracksDroppedOnFullBuffer(t *testing.T) {
	sub := newSubscriber("slow")
	for i := 0; i < subscriberBuffer; i++ {
		sub.send(NewMessage(EventNotification, nil))
	}
	// buffer is now full; the next send should count as dropped instead of blocking
	sub.send(NewMessage(EventNotification, nil))

	select {
	case <-sub.lagNotify:
	case <-time.After(time.Second):
		t.Fatal("lagNotify was not signaled")
	}
	assert.EqualValues(t, 1, sub.pendingLag())
	assert.EqualValues(t, 0, sub.pendingLag(), "pendingLag should reset after being read")
}
