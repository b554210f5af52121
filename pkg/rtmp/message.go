package rtmp

// Message is a fully reassembled RTMP message: one complete payload built
// by concatenating one or more chunk payloads across the wire.
type Message struct {
	messageHeader *messageHeader
	payload       []byte
}

func NewMessage(messageHeader *messageHeader, payload []byte) *Message {
	return &Message{
		messageHeader: messageHeader,
		payload:       payload,
	}
}

func (m *Message) TypeID() uint8      { return m.messageHeader.typeId }
func (m *Message) StreamID() uint32   { return m.messageHeader.streamId }
func (m *Message) Timestamp() uint32  { return m.messageHeader.timestamp }
func (m *Message) Payload() []byte    { return m.payload }
