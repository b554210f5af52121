package rtmp

const DefaultChunkSize uint32 = 128

// chunkStreamState is per-chunk-stream-id reassembly state: the most
// recently seen message header (carried forward across fmt 1/2/3 chunks,
// as the RTMP spec requires) plus whatever portion of the current message
// body has arrived so far.
type chunkStreamState struct {
	hasHeader bool
	timestamp uint32 // absolute timestamp of the current/last message
	lastDelta uint32 // last timestamp delta applied, reused by a fmt3 chunk that starts a new message
	length    uint32
	typeId    uint8
	streamId  uint32

	// extended is true when the current message's timestamp (or delta) was
	// carried in the 4-byte extended-timestamp field rather than the 3-byte
	// field. Per the RTMP interop trap, every continuation chunk of such a
	// message repeats the 4-byte extended field, and it must be consumed.
	extended bool

	receivedLen uint32
	buf         []byte
}

// messageReaderContext holds the decoder-side state for every chunk
// stream id seen on a connection: reassembly state and the negotiated
// inbound chunk size.
type messageReaderContext struct {
	streams   map[uint32]*chunkStreamState
	chunkSize uint32
}

func newMessageReaderContext() *messageReaderContext {
	return &messageReaderContext{
		streams:   make(map[uint32]*chunkStreamState),
		chunkSize: DefaultChunkSize,
	}
}

func (c *messageReaderContext) setChunkSize(size uint32) {
	c.chunkSize = size
}

func (c *messageReaderContext) state(chunkStreamId uint32) *chunkStreamState {
	s, ok := c.streams[chunkStreamId]
	if !ok {
		s = &chunkStreamState{}
		c.streams[chunkStreamId] = s
	}
	return s
}

// beginMessage installs a freshly parsed header and allocates the
// reassembly buffer for a new message. absoluteTimestamp is always
// absolute: for fmt 1/2/3 the caller has already added delta to the
// previous absolute timestamp. delta is kept for a later fmt 3 chunk that
// starts a new message.
func (s *chunkStreamState) beginMessage(absoluteTimestamp uint32, delta uint32, length uint32, typeId uint8, streamId uint32, extended bool) {
	s.hasHeader = true
	s.timestamp = absoluteTimestamp
	s.lastDelta = delta
	s.length = length
	s.typeId = typeId
	s.streamId = streamId
	s.extended = extended
	s.receivedLen = 0
	s.buf = make([]byte, length)
}

// inProgress reports whether the current message still needs more bytes.
func (s *chunkStreamState) inProgress() bool {
	return s.hasHeader && s.receivedLen < s.length
}

func (s *chunkStreamState) nextChunkPayloadSize(chunkSize uint32) uint32 {
	remain := s.length - s.receivedLen
	if remain > chunkSize {
		return chunkSize
	}
	return remain
}

func (s *chunkStreamState) appendPayload(p []byte) {
	copy(s.buf[s.receivedLen:], p)
	s.receivedLen += uint32(len(p))
}

func (s *chunkStreamState) complete() bool {
	return s.hasHeader && s.receivedLen == s.length
}

func (s *chunkStreamState) takeMessage() *Message {
	header := newMessageHeader(s.timestamp, s.length, s.typeId, s.streamId)
	payload := s.buf
	s.buf = nil
	return NewMessage(header, payload)
}
