package client

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"dm-service/internal/models"
)

// Feed fans live messages out to subscribers. Dispatch of one message to all
// subscribers is serialized with Exclusive, so subscription changes made
// inside Exclusive are atomic with respect to event delivery.
type Feed struct {
	dispatchMu sync.Mutex

	mu   sync.Mutex
	subs map[uint64]*Subscription
	next uint64
}

// Subscription is a cancellation handle returned by Subscribe.
type Subscription struct {
	feed      *Feed
	id        uint64
	fn        func(models.Message)
	cancelled atomic.Bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers fn for every dispatched message. fn runs while the
// dispatch lock is held, so it must not call Exclusive (or Reconciler.Select
// and Deselect) directly; hand such calls off to a goroutine.
func (f *Feed) Subscribe(fn func(models.Message)) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	s := &Subscription{feed: f, id: f.next, fn: fn}
	f.subs[s.id] = s
	return s
}

// Cancel stops delivery to this subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.feed.mu.Lock()
	delete(s.feed.subs, s.id)
	s.feed.mu.Unlock()
}

// Exclusive runs fn with event dispatch paused. The lock is not reentrant:
// calling Exclusive from a subscriber callback deadlocks.
func (f *Feed) Exclusive(fn func()) {
	f.dispatchMu.Lock()
	defer f.dispatchMu.Unlock()
	fn()
}

// Dispatch delivers msg to every active subscriber in subscription order.
func (f *Feed) Dispatch(msg models.Message) {
	f.dispatchMu.Lock()
	defer f.dispatchMu.Unlock()

	f.mu.Lock()
	subs := make([]*Subscription, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, s := range subs {
		if !s.cancelled.Load() {
			s.fn(msg)
		}
	}
}

// Run dials the live channel and dispatches message.new events until ctx is
// done or the connection fails.
func (f *Feed) Run(ctx context.Context, liveURL string, header http.Header) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, liveURL, header)
	if err != nil {
		return fmt.Errorf("dial live channel: %w", err)
	}
	return f.Consume(ctx, conn)
}

// Consume reads events from an established connection.
func (f *Feed) Consume(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var event models.ChatEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if event.Type != models.EventMessageNew || event.Message == nil {
			continue
		}
		f.Dispatch(*event.Message)
	}
}
