package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

type fakeHandle struct {
	identity string
	mu       sync.Mutex
	closed   bool
	pushed   []models.ChatEvent
}

func newFakeHandle(identity string) *fakeHandle {
	return &fakeHandle{identity: identity}
}

func (f *fakeHandle) Identity() string { return f.identity }

func (f *fakeHandle) Push(event models.ChatEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrHandleClosed
	}
	f.pushed = append(f.pushed, event)
	return nil
}

func (f *fakeHandle) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	h := newFakeHandle("alice")

	_, ok := reg.Lookup("alice")
	assert.False(t, ok)

	reg.Register("alice", h)
	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, []string{"alice"}, reg.OnlineSet())
}

func TestRegistryReconnectSupersedesPrevious(t *testing.T) {
	reg := NewRegistry()
	old := newFakeHandle("alice")
	fresh := newFakeHandle("alice")

	reg.Register("alice", old)
	reg.Register("alice", fresh)

	assert.True(t, old.isClosed())
	assert.False(t, fresh.isClosed())
	got, _ := reg.Lookup("alice")
	assert.Same(t, fresh, got)
}

func TestRegistryLateUnregisterKeepsNewerHandle(t *testing.T) {
	reg := NewRegistry()
	old := newFakeHandle("alice")
	fresh := newFakeHandle("alice")

	reg.Register("alice", old)
	reg.Register("alice", fresh)

	assert.False(t, reg.Unregister(old))
	assert.True(t, reg.IsOnline("alice"))

	assert.True(t, reg.Unregister(fresh))
	assert.False(t, reg.IsOnline("alice"))
	assert.False(t, reg.Unregister(fresh))
}

func TestRegistryOnlineSetSorted(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"carol", "alice", "bob"} {
		reg.Register(id, newFakeHandle(id))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.OnlineSet())
}

func TestRegistryConcurrentReconnects(t *testing.T) {
	reg := NewRegistry()
	const n = 100
	handles := make([]*fakeHandle, n)
	for i := range handles {
		handles[i] = newFakeHandle("alice")
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *fakeHandle) {
			defer wg.Done()
			reg.Register("alice", h)
			reg.Unregister(h)
		}(h)
	}
	wg.Wait()

	// every handle either unregistered itself or was superseded; at most one survives
	online := reg.OnlineSet()
	assert.LessOrEqual(t, len(online), 1)
	if current, ok := reg.Lookup("alice"); ok {
		assert.False(t, current.(*fakeHandle).isClosed())
	}
}

func TestRegistryCloseAll(t *testing.T) {
	reg := NewRegistry()
	a, b := newFakeHandle("a"), newFakeHandle("b")
	reg.Register("a", a)
	reg.Register("b", b)

	reg.CloseAll()

	assert.Empty(t, reg.OnlineSet())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}
