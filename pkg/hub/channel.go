// Package hub implements the process-wide channel registry that sits
// between RTMP ingest and every egress adapter: single-publisher
// arbitration, prelude tracking for late subscribers, and bounded
// per-subscriber queues with a freshness-biased drop policy.
package hub

import (
	"sync"

	"sol/pkg/media"
)

// ChannelID identifies a channel by the (app, stream key) pair parsed from
// the RTMP publish/play URL. Comparison is byte-exact, so it's a plain
// comparable struct rather than a joined string.
type ChannelID struct {
	App       string
	StreamKey string
}

// Prelude is the state every subscriber must observe before any live event:
// the most recent metadata and sequence headers, in that delivery order.
type Prelude struct {
	Metadata    *media.Event
	AudioHeader *media.Event
	VideoHeader *media.Event
}

const subscriberQueueCapacity = 64

// Channel is a live publishing session: at most one publisher, a set of
// subscribers, and the prelude state a new subscriber needs to start
// decoding immediately.
type Channel struct {
	id ChannelID

	mu          sync.Mutex
	publisherID string
	prelude     Prelude
	subscribers map[*Subscriber]struct{}
}

func newChannel(id ChannelID) *Channel {
	return &Channel{
		id:          id,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

func (c *Channel) ID() ChannelID {
	return c.id
}

// hasPublisher reports whether the channel currently has an owner. Caller
// must hold c.mu.
func (c *Channel) hasPublisher() bool {
	return c.publisherID != ""
}
