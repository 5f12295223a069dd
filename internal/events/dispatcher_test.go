package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	var got []string
	dispatcher.Subscribe(EventProductCreated, func(_ context.Context, event Event) error {
		got = append(got, "first:"+event.ID)
		return nil
	})
	dispatcher.Subscribe(EventProductCreated, func(_ context.Context, event Event) error {
		got = append(got, "second:"+event.ID)
		return nil
	})
	dispatcher.Subscribe(EventProductDeleted, func(_ context.Context, _ Event) error {
		got = append(got, "wrong-type")
		return nil
	})

	err := dispatcher.Publish(context.Background(), Event{ID: "e1", Type: EventProductCreated})
	require.NoError(t, err)
	assert.Equal(t, []string{"first:e1", "second:e1"}, got)
}

func TestDispatcherContinuesPastHandlerError(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	var reached bool
	dispatcher.Subscribe(EventProductUpdated, func(_ context.Context, _ Event) error {
		return errors.New("handler failed")
	})
	dispatcher.Subscribe(EventProductUpdated, func(_ context.Context, _ Event) error {
		reached = true
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventProductUpdated}))
	assert.True(t, reached)
}
