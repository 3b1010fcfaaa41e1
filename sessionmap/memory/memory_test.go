package memory

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/eventbus"
	"github.com/moneytech/selenium/graverr"
)

func TestMap_AddGetRemove(t *testing.T) {
	bus := eventbus.NewLocal(log.NewNopLogger())
	m := New(bus)
	defer m.Close()

	rec := domain.SessionRecord{SessionID: uuid.New(), URI: "http://node1:5555/session/1", Capabilities: domain.Capabilities{"browserName": "chrome"}}
	ok, err := m.Add(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := m.Get(context.Background(), rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	require.NoError(t, m.Remove(context.Background(), rec.SessionID))
	_, err = m.Get(context.Background(), rec.SessionID)
	require.Error(t, err)
	assert.Equal(t, graverr.NoSuchSession, graverr.Code(err))
}

func TestMap_RemoveAbsentIsNotAnError(t *testing.T) {
	bus := eventbus.NewLocal(log.NewNopLogger())
	m := New(bus)
	defer m.Close()
	require.NoError(t, m.Remove(context.Background(), uuid.New()))
}

func TestMap_SessionClosedEventRemoves(t *testing.T) {
	bus := eventbus.NewLocal(log.NewNopLogger())
	m := New(bus)
	defer m.Close()

	rec := domain.SessionRecord{SessionID: uuid.New(), URI: "http://node1:5555/session/1"}
	_, err := m.Add(context.Background(), rec)
	require.NoError(t, err)

	bus.Publish(eventbus.TopicSessionClosed, rec.SessionID)

	_, err = m.Get(context.Background(), rec.SessionID)
	require.Error(t, err)
}

func TestMap_CloseDeregistersListener(t *testing.T) {
	bus := eventbus.NewLocal(log.NewNopLogger())
	m := New(bus)
	rec := domain.SessionRecord{SessionID: uuid.New()}
	_, err := m.Add(context.Background(), rec)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	// After Close, a SESSION_CLOSED event must not panic or reopen state;
	// the map is no longer accepting writes either.
	bus.Publish(eventbus.TopicSessionClosed, rec.SessionID)
	_, err = m.Add(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, graverr.Storage, graverr.Code(err))
}
