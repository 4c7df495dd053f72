package service

import (
	"context"
	"testing"
	"time"

	"aicca-realtime/internal/notify"
	"aicca-realtime/internal/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerDeliversChangesInOrder(t *testing.T) {
	bus := notify.NewChangeBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan session.Change, 8)
	consumer := NewConsumerService(bus, "", func(c session.Change) { got <- c }, nil)
	require.NoError(t, consumer.Consume(ctx))

	notifier := notify.NewWatermill(bus, "", nil)
	go func() {
		notifier.Notify(session.Change{Type: session.ChangeConnectionChanged, Connection: session.StateConnecting})
		notifier.Notify(session.Change{Type: session.ChangeConnectionChanged, Connection: session.StateConnected})
	}()

	var states []session.ConnectionState
	for len(states) < 2 {
		select {
		case c := <-got:
			states = append(states, c.Connection)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change")
		}
	}
	assert.Equal(t, []session.ConnectionState{session.StateConnecting, session.StateConnected}, states)
}

func TestConsumerAcksUndecodableMessages(t *testing.T) {
	bus := notify.NewChangeBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	consumer := NewConsumerService(bus, "", func(session.Change) { called <- struct{}{} }, nil)
	require.NoError(t, consumer.Consume(ctx))

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(notify.ChangesTopic, message.NewMessage(watermill.NewUUID(), []byte("not json")))
	}()

	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish blocked on an undecodable message")
	}
	assert.Empty(t, called)
}
