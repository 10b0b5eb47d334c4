package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

func TestDispatchFollowsSubscriptionOrder(t *testing.T) {
	f := NewFeed()
	var order []string
	f.Subscribe(func(models.Message) { order = append(order, "first") })
	second := f.Subscribe(func(models.Message) { order = append(order, "second") })
	f.Subscribe(func(models.Message) { order = append(order, "third") })

	f.Dispatch(models.Message{ID: "m1"})
	assert.Equal(t, []string{"first", "second", "third"}, order)

	second.Cancel()
	second.Cancel()
	order = nil
	f.Dispatch(models.Message{ID: "m2"})
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestCancelInsideDispatchStopsLaterSubscriber(t *testing.T) {
	f := NewFeed()
	var got []string
	var victim *Subscription
	f.Subscribe(func(models.Message) { victim.Cancel() })
	victim = f.Subscribe(func(m models.Message) { got = append(got, m.ID) })

	f.Dispatch(models.Message{ID: "m1"})
	assert.Empty(t, got)
}

func TestExclusiveBlocksDispatch(t *testing.T) {
	f := NewFeed()
	var mu sync.Mutex
	var seen []string
	f.Subscribe(func(m models.Message) {
		mu.Lock()
		seen = append(seen, m.ID)
		mu.Unlock()
	})

	entered := make(chan struct{})
	release := make(chan struct{})
	go f.Exclusive(func() {
		close(entered)
		<-release
	})
	<-entered

	dispatched := make(chan struct{})
	go func() {
		f.Dispatch(models.Message{ID: "m1"})
		close(dispatched)
	}()

	select {
	case <-dispatched:
		t.Fatal("dispatch ran while exclusive section was held")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-dispatched

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"m1"}, seen)
}

func TestConsumeDispatchesMessageEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(models.ChatEvent{Type: "presence"})
		_ = conn.WriteJSON(models.ChatEvent{Type: models.EventMessageNew})
		_ = conn.WriteJSON(models.NewMessageEvent(models.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob"}))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	f := NewFeed()
	got := make(chan string, 4)
	f.Subscribe(func(m models.Message) { got <- m.ID })

	err := f.Run(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	require.Len(t, got, 1)
	assert.Equal(t, "m1", <-got)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewFeed().Run(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunDialFailure(t *testing.T) {
	err := NewFeed().Run(context.Background(), "ws://127.0.0.1:1/ws", nil)
	assert.ErrorContains(t, err, "dial live channel")
}
