package hub

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"sol/pkg/media"
)

// slowSubscriberTimeout is how long a subscriber's queue may stay
// consecutively full before it is forcibly disconnected.
const slowSubscriberTimeout = 5 * time.Second

var (
	// ErrPublisherConflict is returned by AcquirePublisher when a channel
	// already has an owner.
	ErrPublisherConflict = errors.New("channel already has a publisher")
	// ErrChannelNotFound is returned by Subscribe when the channel has no
	// active publisher.
	ErrChannelNotFound = errors.New("channel not found")
)

// Hub is the process-wide channel registry, guarded by one RWMutex for
// table lookup/insert/remove; each Channel guards its own prelude and
// subscriber set with a finer-grained lock so fan-out doesn't contend on
// the table lock. Modeled on the single shared registry pattern the
// teacher's stream manager uses, generalized to the (app, stream_key)
// channel identity.
type Hub struct {
	mu       sync.RWMutex
	channels map[ChannelID]*Channel
}

func New() *Hub {
	return &Hub{channels: make(map[ChannelID]*Channel)}
}

func (h *Hub) getOrCreate(id ChannelID) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[id]
	if !ok {
		ch = newChannel(id)
		h.channels[id] = ch
	}
	return ch
}

func (h *Hub) get(id ChannelID) *Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[id]
}

// AcquirePublisher registers publisherID as the owner of id, atomically.
// Returns ErrPublisherConflict if the channel already has a publisher.
func (h *Hub) AcquirePublisher(id ChannelID, publisherID string) error {
	ch := h.getOrCreate(id)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.hasPublisher() {
		return ErrPublisherConflict
	}
	ch.publisherID = publisherID
	return nil
}

// ReleasePublisher detaches publisherID from id if it is the current
// owner, clears the prelude, and disconnects existing subscribers so they
// re-subscribe and receive a fresh prelude from whoever publishes next
// (the resolved policy for spec.md §9's publish-epoch open question). It
// is a no-op if publisherID does not own the channel.
func (h *Hub) ReleasePublisher(id ChannelID, publisherID string) {
	ch := h.get(id)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	if ch.publisherID != publisherID {
		ch.mu.Unlock()
		return
	}
	ch.publisherID = ""
	ch.prelude = Prelude{}
	subs := make([]*Subscriber, 0, len(ch.subscribers))
	for s := range ch.subscribers {
		subs = append(subs, s)
	}
	ch.subscribers = make(map[*Subscriber]struct{})
	ch.mu.Unlock()

	for _, s := range subs {
		s.closeQueue()
	}

	h.removeIfEmpty(id)
}

func (h *Hub) removeIfEmpty(id ChannelID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[id]
	if !ok {
		return
	}
	ch.mu.Lock()
	empty := !ch.hasPublisher() && len(ch.subscribers) == 0
	ch.mu.Unlock()
	if empty {
		delete(h.channels, id)
	}
}

// Subscribe attaches a new subscriber to the channel and schedules
// delivery of the current prelude ahead of any live event. Returns
// ErrChannelNotFound if the channel has no active publisher.
func (h *Hub) Subscribe(id ChannelID) (*Subscriber, error) {
	ch := h.get(id)
	if ch == nil {
		return nil, ErrChannelNotFound
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.hasPublisher() {
		return nil, ErrChannelNotFound
	}

	sub := newSubscriber(ch)
	for _, e := range ch.prelude.ordered() {
		sub.tryEnqueue(*e)
	}
	ch.subscribers[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe detaches a subscriber and releases its queue. Safe to call
// more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	ch := sub.channel
	ch.mu.Lock()
	delete(ch.subscribers, sub)
	ch.mu.Unlock()
	sub.closeQueue()
	h.removeIfEmpty(ch.id)
}

// ordered returns the non-nil prelude events in the delivery order
// required by spec: metadata, then audio header, then video header.
func (p Prelude) ordered() []*media.Event {
	var out []*media.Event
	if p.Metadata != nil {
		out = append(out, p.Metadata)
	}
	if p.AudioHeader != nil {
		out = append(out, p.AudioHeader)
	}
	if p.VideoHeader != nil {
		out = append(out, p.VideoHeader)
	}
	return out
}

// PublishEvent fans an event out to every subscriber of id, applying the
// sequence-header/metadata-must-succeed, drop-if-full, and
// keyframe-fast-resync rules. It is a no-op (other than prelude update) if
// the channel has no current subscribers.
func (h *Hub) PublishEvent(id ChannelID, e media.Event) {
	ch := h.get(id)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	if e.IsSeqHeader {
		updatePrelude(&ch.prelude, e)
	}
	subs := make([]*Subscriber, 0, len(ch.subscribers))
	for s := range ch.subscribers {
		subs = append(subs, s)
	}
	ch.mu.Unlock()

	for _, s := range subs {
		if deliver(s, e) {
			h.Unsubscribe(s)
		}
	}
}

func updatePrelude(p *Prelude, e media.Event) {
	switch e.Kind {
	case media.Metadata:
		p.Metadata = &e
	case media.AudioHeader:
		p.AudioHeader = &e
	case media.VideoHeader:
		p.VideoHeader = &e
	}
}

// deliver applies the §4.4 drop policy for a single subscriber and event.
// It returns true if the subscriber has had its queue full for longer
// than slowSubscriberTimeout and should be forcibly disconnected.
func deliver(s *Subscriber, e media.Event) bool {
	if s.tryEnqueue(e) {
		return false
	}

	switch {
	case e.IsSeqHeader:
		// Sequence headers and metadata must always land: evict the
		// oldest queued event to make room.
		s.evictOldest()
		if !s.tryEnqueue(e) {
			slog.Warn("subscriber queue still full after eviction, dropping prelude update")
		}
		return false
	case e.Kind == media.Video && e.IsKeyframe:
		// Fast resync: drop everything but headers so the subscriber
		// jumps straight to the new GOP instead of falling further behind.
		s.drainNonHeaders()
		if !s.tryEnqueue(e) {
			s.dropped.Add(1)
		}
		return s.staleFor(slowSubscriberTimeout)
	default:
		s.dropped.Add(1)
		return s.staleFor(slowSubscriberTimeout)
	}
}
