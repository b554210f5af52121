package rtmp

// messageHeader describes a fully resolved RTMP message: the absolute
// timestamp and the message metadata carried by the chunk stream that
// produced it.
type messageHeader struct {
	timestamp uint32
	length    uint32
	typeId    uint8
	streamId  uint32
}

func newMessageHeader(timestamp uint32, length uint32, typeId uint8, streamId uint32) *messageHeader {
	return &messageHeader{
		timestamp: timestamp,
		length:    length,
		typeId:    typeId,
		streamId:  streamId,
	}
}
