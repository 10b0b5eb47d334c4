package unseen

import "sync"

// Tracker is the client-side incremental view of unseen counts. It is seeded
// from the server with Replace and then adjusted as pushes arrive.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{counts: make(map[string]int)}
}

// Replace discards local state in favour of a server snapshot.
func (t *Tracker) Replace(counts map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[string]int, len(counts))
	for sender, n := range counts {
		if n > 0 {
			t.counts[sender] = n
		}
	}
}

func (t *Tracker) Increment(sender string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[sender]++
	return t.counts[sender]
}

// Reset clears the count for sender, typically when its conversation is opened.
func (t *Tracker) Reset(sender string) {
	t.mu.Lock()
	delete(t.counts, sender)
	t.mu.Unlock()
}

func (t *Tracker) Get(sender string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[sender]
}

func (t *Tracker) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for sender, n := range t.counts {
		out[sender] = n
	}
	return out
}
