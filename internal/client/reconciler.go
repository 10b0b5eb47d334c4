package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/unseen"
)

// DeletedMarker replaces the payload of a deleted message in the view.
const DeletedMarker = "This message was deleted"

// ErrNoConversation is returned by Send when no conversation is selected.
var ErrNoConversation = errors.New("no conversation selected")

type State int

const (
	Closed State = iota
	Loading
	Open
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// DisplayMessage is a message as rendered in the conversation view.
type DisplayMessage struct {
	ID        string
	SenderID  string
	Text      string
	Image     string
	CreatedAt time.Time
	Seen      bool
	Deleted   bool
	Mine      bool
}

func newDisplayMessage(m models.Message, self string) DisplayMessage {
	d := DisplayMessage{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Image:     m.Image,
		CreatedAt: m.CreatedAt,
		Seen:      m.Seen,
		Deleted:   m.Deleted,
		Mine:      m.SenderID == self,
	}
	if m.Deleted {
		d.Text = DeletedMarker
		d.Image = ""
	}
	return d
}

// View is an immutable snapshot of the reconciler state.
type View struct {
	State        State
	Participant  string
	Messages     []DisplayMessage
	Unseen       map[string]int
	Participants []models.ParticipantSummary
	Online       []string
}

// Notifier surfaces transient failures to the participant.
type Notifier func(err error)

type Option func(*Reconciler)

func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notify = n }
}

func WithTracker(t *unseen.Tracker) Option {
	return func(r *Reconciler) { r.tracker = t }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

// Reconciler keeps the open conversation consistent while history snapshots
// and live pushes arrive in any order. mu guards all state; selection changes
// also run inside Feed.Exclusive so they never interleave with a dispatch.
type Reconciler struct {
	self    string
	backend Backend
	feed    *Feed
	tracker *unseen.Tracker
	notify  Notifier
	log     *zap.Logger
	timeout time.Duration

	mu           sync.Mutex
	state        State
	selected     string
	generation   uint64
	messages     []models.Message
	index        map[string]int
	buffered     []models.Message
	convSub      *Subscription
	participants []models.ParticipantSummary
	online       []string

	global  *Subscription
	pending sync.WaitGroup
}

func NewReconciler(self string, backend Backend, feed *Feed, opts ...Option) *Reconciler {
	r := &Reconciler{
		self:    self,
		backend: backend,
		feed:    feed,
		tracker: unseen.NewTracker(),
		notify:  func(error) {},
		log:     zap.NewNop(),
		timeout: 10 * time.Second,
		index:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.global = feed.Subscribe(r.onPush)
	return r
}

// Select opens the conversation with participantID. The previous
// conversation subscription is cancelled and the new one installed in the
// same transition; the snapshot is fetched asynchronously. Must not be called
// from a Feed subscriber callback.
func (r *Reconciler) Select(participantID string) {
	r.feed.Exclusive(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.resetLocked()
		r.generation++
		gen := r.generation
		r.state = Loading
		r.selected = participantID
		r.convSub = r.feed.Subscribe(func(m models.Message) { r.onConversationPush(gen, m) })

		r.async(func() { r.fetch(gen, participantID) })
	})
}

// Deselect closes the open conversation and discards its view. Same calling
// restriction as Select.
func (r *Reconciler) Deselect() {
	r.feed.Exclusive(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.resetLocked()
		r.generation++
	})
}

// Close releases all feed subscriptions and waits for background requests.
func (r *Reconciler) Close() {
	r.Deselect()
	r.global.Cancel()
	r.pending.Wait()
}

// Wait blocks until background fetches and acknowledgements finish.
func (r *Reconciler) Wait() {
	r.pending.Wait()
}

func (r *Reconciler) resetLocked() {
	r.convSub.Cancel()
	r.convSub = nil
	r.state = Closed
	r.selected = ""
	r.messages = nil
	r.index = make(map[string]int)
	r.buffered = nil
}

func (r *Reconciler) fetch(gen uint64, participantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	snapshot, err := r.backend.Conversation(ctx, participantID)

	r.mu.Lock()
	if gen != r.generation || r.selected != participantID || r.state != Loading {
		r.mu.Unlock()
		r.log.Debug("dropping stale snapshot", zap.String("participant_id", participantID))
		return
	}
	if err != nil {
		// the server never marked these seen, so they stay unseen locally too
		for _, m := range r.buffered {
			if r.incomingLocked(m) && !m.Seen {
				r.tracker.Increment(m.SenderID)
			}
		}
		r.resetLocked()
		r.generation++
		r.mu.Unlock()
		r.log.Warn("conversation fetch failed", zap.String("participant_id", participantID), zap.Error(err))
		r.notify(err)
		return
	}

	// incoming rows still unseen in the snapshot, and pushes buffered while
	// Loading that the snapshot missed, were stored after the server-side
	// markSeen and need their own acknowledgement
	var toAck []string
	merged := make([]models.Message, 0, len(snapshot)+len(r.buffered))
	inSnapshot := make(map[string]struct{}, len(snapshot))
	for _, m := range snapshot {
		if _, dup := inSnapshot[m.ID]; dup {
			continue
		}
		inSnapshot[m.ID] = struct{}{}
		if r.incomingLocked(m) && !m.Seen && !m.Deleted {
			m.Seen = true
			toAck = append(toAck, m.ID)
		}
		merged = append(merged, m)
	}
	for _, m := range r.buffered {
		if _, dup := inSnapshot[m.ID]; dup {
			continue
		}
		inSnapshot[m.ID] = struct{}{}
		if r.incomingLocked(m) && !m.Seen {
			m.Seen = true
			toAck = append(toAck, m.ID)
		}
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.Before(merged[j].CreatedAt) })

	r.messages = merged
	r.reindexLocked()
	r.buffered = nil
	r.state = Open
	r.tracker.Reset(participantID)
	for _, id := range toAck {
		r.ackAsync(id)
	}
	r.mu.Unlock()
}

// onConversationPush handles pushes for the conversation selected at generation gen.
func (r *Reconciler) onConversationPush(gen uint64, m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation || r.state == Closed || !m.Involves(r.self, r.selected) {
		return
	}

	switch r.state {
	case Loading:
		for _, b := range r.buffered {
			if b.ID == m.ID {
				return
			}
		}
		r.buffered = append(r.buffered, m)
	case Open:
		if _, dup := r.index[m.ID]; dup {
			return
		}
		needsAck := r.incomingLocked(m) && !m.Seen
		if needsAck {
			m.Seen = true
		}
		r.appendLocked(m)
		if needsAck {
			r.ackAsync(m.ID)
		}
	}
}

// onPush counts pushes that do not belong to the selected conversation.
func (r *Reconciler) onPush(m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ReceiverID != r.self {
		return
	}
	if r.state != Closed && m.SenderID == r.selected {
		return
	}
	r.tracker.Increment(m.SenderID)
}

// incomingLocked reports whether m was sent to us by the selected participant.
func (r *Reconciler) incomingLocked(m models.Message) bool {
	return m.ReceiverID == r.self && m.SenderID == r.selected
}

func (r *Reconciler) appendLocked(m models.Message) bool {
	if _, dup := r.index[m.ID]; dup {
		return false
	}
	r.index[m.ID] = len(r.messages)
	r.messages = append(r.messages, m)
	return true
}

func (r *Reconciler) reindexLocked() {
	r.index = make(map[string]int, len(r.messages))
	for i, m := range r.messages {
		r.index[m.ID] = i
	}
}

func (r *Reconciler) ackAsync(messageID string) {
	r.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.backend.AckSeen(ctx, messageID); err != nil {
			r.log.Warn("seen ack failed", zap.String("message_id", messageID), zap.Error(err))
		}
	})
}

func (r *Reconciler) async(fn func()) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		fn()
	}()
}

// Send posts payload to the selected participant and appends the stored
// message to the view. On failure the view is unchanged.
func (r *Reconciler) Send(ctx context.Context, payload models.Payload) (models.Message, error) {
	r.mu.Lock()
	participantID, state, gen := r.selected, r.state, r.generation
	r.mu.Unlock()
	if state == Closed || participantID == "" {
		return models.Message{}, ErrNoConversation
	}

	msg, err := r.backend.Send(ctx, participantID, payload)
	if err != nil {
		r.notify(err)
		return models.Message{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return msg, nil
	}
	switch r.state {
	case Open:
		r.appendLocked(msg)
	case Loading:
		r.buffered = append(r.buffered, msg)
	}
	return msg, nil
}

// Delete removes one of our messages. Its slot and timestamp stay in place.
func (r *Reconciler) Delete(ctx context.Context, messageID string) error {
	if err := r.backend.Delete(ctx, messageID); err != nil {
		r.notify(err)
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.index[messageID]; ok {
		r.messages[idx] = models.Message{
			ID:         r.messages[idx].ID,
			SenderID:   r.messages[idx].SenderID,
			ReceiverID: r.messages[idx].ReceiverID,
			CreatedAt:  r.messages[idx].CreatedAt,
			Seen:       r.messages[idx].Seen,
			Deleted:    true,
		}
	}
	return nil
}

// Refresh reloads the participant list and replaces local unseen counts with
// the server's.
func (r *Reconciler) Refresh(ctx context.Context) error {
	resp, err := r.backend.Participants(ctx)
	if err != nil {
		r.notify(err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = resp.Participants
	r.online = resp.Online
	r.tracker.Replace(resp.Unseen)
	if r.state == Open {
		// acks for the open conversation may still be in flight
		r.tracker.Reset(r.selected)
	}
	return nil
}

func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		State:       r.state,
		Participant: r.selected,
		Messages:    make([]DisplayMessage, 0, len(r.messages)),
		Unseen:      r.tracker.Snapshot(),
		Online:      append([]string(nil), r.online...),
	}
	for _, m := range r.messages {
		v.Messages = append(v.Messages, newDisplayMessage(m, r.self))
	}
	for _, p := range r.participants {
		p.Unseen = v.Unseen[p.ID]
		v.Participants = append(v.Participants, p)
	}
	return v
}
