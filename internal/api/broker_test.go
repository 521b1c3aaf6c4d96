package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryBroker(t *testing.T) {
	b := NewBroker()
	vehicles := b.Subscribe(TopicVehicles)
	routes := b.Subscribe(TopicRoutes)

	b.Publish(TopicVehicles, newEvent(EventVehicleUpdate, map[string]int{"id": 4}))
	evt := recv(t, vehicles)
	assert.Equal(t, EventVehicleUpdate, evt.Type)
	assert.JSONEq(t, `{"id":4}`, string(evt.Data))
	assert.Empty(t, routes)

	// a full subscriber never blocks Publish
	for i := 0; i < 100; i++ {
		b.Publish(TopicVehicles, newEvent(EventVehicleUpdate, i))
	}
	assert.Len(t, vehicles, cap(vehicles))

	b.Unsubscribe(TopicVehicles, vehicles)
	b.Unsubscribe(TopicVehicles, vehicles)
	require.NoError(t, b.Close())
	_, ok := <-routes
	assert.False(t, ok)
}

func TestRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newRedisBroker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	defer func() { _ = b.Close() }()

	ch := b.Subscribe(TopicRoutes)
	other := b.Subscribe(TopicVehicles)
	b.Publish(TopicRoutes, newEvent(EventRoutesOptimized, map[string]any{"unassigned_orders": []int{2}}))

	evt := recv(t, ch)
	assert.Equal(t, EventRoutesOptimized, evt.Type)
	assert.JSONEq(t, `{"unassigned_orders":[2]}`, string(evt.Data))
	assert.Empty(t, other)

	b.Unsubscribe(TopicRoutes, ch)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRedisBrokerBadURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), "not-a-url", nil)
	assert.Error(t, err)
}

func TestStreamDeliversEvents(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream?topic=routes"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	s.Broker.Publish(TopicRoutes, newEvent(EventRoutesOptimized, map[string]int{"routes": 1}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt Event
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, EventRoutesOptimized, evt.Type)
	assert.JSONEq(t, `{"routes":1}`, string(evt.Data))
}

func TestStreamRejectsUnknownTopic(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s.Routes(), "GET", "/v1/stream?topic=orders", nil, "")
	assert.Equal(t, 400, rr.Code)
}
