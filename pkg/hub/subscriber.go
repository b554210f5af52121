package hub

import (
	"sync/atomic"
	"time"

	"sol/pkg/media"
)

// Subscriber is a single egress connection's view of a channel: a
// single-producer (hub fan-out) / single-consumer (egress task) bounded
// queue plus a drop counter for observability.
type Subscriber struct {
	channel *Channel
	events  chan media.Event
	closed  chan struct{}

	dropped     atomic.Uint64
	lastSuccess atomic.Int64 // UnixNano of the last successful enqueue
}

// epoch isolation needs no bookkeeping on the Subscriber itself: the hub
// already closes every subscriber's queue on publisher release (see
// Hub.ReleasePublisher), so a subscriber never outlives the epoch it joined
// under.
func newSubscriber(ch *Channel) *Subscriber {
	s := &Subscriber{
		channel: ch,
		events:  make(chan media.Event, subscriberQueueCapacity),
		closed:  make(chan struct{}),
	}
	s.lastSuccess.Store(time.Now().UnixNano())
	return s
}

// Events returns the channel a consumer should range over to receive
// delivered media events. It is closed when the subscriber is detached,
// either by explicit Unsubscribe or by the hub disconnecting it (e.g. on
// publish-epoch replacement).
func (s *Subscriber) Events() <-chan media.Event {
	return s.events
}

// Dropped returns the number of events dropped for this subscriber under
// backpressure, per the hub's drop policy.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// ChannelID reports which channel this subscriber is attached to.
func (s *Subscriber) ChannelID() ChannelID {
	return s.channel.id
}

func (s *Subscriber) closeQueue() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
		close(s.events)
	}
}

// tryEnqueue attempts a non-blocking send. Returns false if the queue was
// full at the time of the attempt.
func (s *Subscriber) tryEnqueue(e media.Event) bool {
	select {
	case s.events <- e:
		s.lastSuccess.Store(time.Now().UnixNano())
		return true
	default:
		return false
	}
}

// staleFor reports whether this subscriber's queue has had no successful
// delivery for longer than d, i.e. it has been consecutively full.
func (s *Subscriber) staleFor(d time.Duration) bool {
	last := time.Unix(0, s.lastSuccess.Load())
	return time.Since(last) > d
}

// drainNonHeaders removes every currently queued event that is not a
// sequence header or metadata, preserving order of what remains. Used by
// the keyframe fast-resync path in the drop policy (spec §4.4 rule 3).
func (s *Subscriber) drainNonHeaders() {
	var kept []media.Event
	for {
		select {
		case e := <-s.events:
			if e.IsSeqHeader {
				kept = append(kept, e)
			}
		default:
			for _, e := range kept {
				select {
				case s.events <- e:
				default:
					// Queue is full again even after draining; give up rather
					// than block the hub's fan-out goroutine.
				}
			}
			return
		}
	}
}

// evictOldest drops the single oldest queued event to make room, per the
// "MUST succeed" guarantee for sequence headers and metadata.
func (s *Subscriber) evictOldest() {
	select {
	case <-s.events:
	default:
	}
}
