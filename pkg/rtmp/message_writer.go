package rtmp

import (
	"encoding/binary"
	"io"
)

// messageWriter fragments outbound RTMP messages into chunks of at most
// chunkSize bytes, per the negotiated (or default) chunk size.
type messageWriter struct {
	chunkSize uint32
}

func newMessageWriter() *messageWriter {
	return &messageWriter{
		chunkSize: DefaultChunkSize,
	}
}

func (mw *messageWriter) setChunkSize(size uint32) {
	mw.chunkSize = size
}

// writeMessage fragments a single message into one fmt-0 chunk followed by
// as many fmt-3 continuation chunks as needed, per the basic RTMP chunking
// algorithm. This replaces per-message-type writer functions with one
// general implementation used for every outbound message.
func (mw *messageWriter) writeMessage(w io.Writer, chunkStreamID uint32, typeId uint8, streamId uint32, timestamp uint32, payload []byte) error {
	extended := timestamp >= EXTENDED_TIMESTAMP_THRESHOLD

	header := make([]byte, 11)
	if extended {
		PutUint24(header[0:], EXTENDED_TIMESTAMP_THRESHOLD)
	} else {
		PutUint24(header[0:], timestamp)
	}
	PutUint24(header[3:], uint32(len(payload)))
	header[6] = typeId
	binary.LittleEndian.PutUint32(header[7:], streamId)

	if err := writeBasicHeader(w, 0, chunkStreamID); err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	if extended {
		if err := writeExtendedTimestampField(w, timestamp); err != nil {
			return err
		}
	}

	remaining := payload
	first := true
	for len(remaining) > 0 || first {
		first = false
		n := len(remaining)
		if uint32(n) > mw.chunkSize {
			n = int(mw.chunkSize)
		}
		if n > 0 {
			if _, err := w.Write(remaining[:n]); err != nil {
				return err
			}
			remaining = remaining[n:]
		}
		if len(remaining) == 0 {
			break
		}
		if err := writeBasicHeader(w, 3, chunkStreamID); err != nil {
			return err
		}
		if extended {
			// Fmt 3 continuation chunks repeat the extended timestamp field,
			// mirroring the read side's interop handling in message_reader.go.
			if err := writeExtendedTimestampField(w, timestamp); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeExtendedTimestampField(w io.Writer, ts uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], ts)
	_, err := w.Write(buf[:])
	return err
}

func writeBasicHeader(w io.Writer, fmtType byte, chunkStreamID uint32) error {
	if chunkStreamID < 64 {
		_, err := w.Write([]byte{(fmtType << 6) | byte(chunkStreamID)})
		return err
	}
	if chunkStreamID < 64+256 {
		_, err := w.Write([]byte{fmtType << 6, byte(chunkStreamID - 64)})
		return err
	}
	buf := make([]byte, 3)
	buf[0] = (fmtType << 6) | 0x01
	binary.LittleEndian.PutUint16(buf[1:], uint16(chunkStreamID-64))
	_, err := w.Write(buf)
	return err
}

func (mw *messageWriter) writeSetChunkSize(w io.Writer, chunkSize uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, chunkSize)
	return mw.writeMessage(w, CHUNK_STREAM_PROTOCOL, MSG_TYPE_SET_CHUNK_SIZE, 0, 0, payload)
}

func (mw *messageWriter) writeWindowAckSize(w io.Writer, size uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size)
	return mw.writeMessage(w, CHUNK_STREAM_PROTOCOL, MSG_TYPE_WINDOW_ACK_SIZE, 0, 0, payload)
}

// SetPeerBandwidth limit types.
const (
	PeerBandwidthHard    = 0
	PeerBandwidthSoft    = 1
	PeerBandwidthDynamic = 2
)

func (mw *messageWriter) writeSetPeerBandwidth(w io.Writer, size uint32, limitType byte) error {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload, size)
	payload[4] = limitType
	return mw.writeMessage(w, CHUNK_STREAM_PROTOCOL, MSG_TYPE_SET_PEER_BW, 0, 0, payload)
}

func (mw *messageWriter) writeAcknowledgement(w io.Writer, bytesReceived uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, bytesReceived)
	return mw.writeMessage(w, CHUNK_STREAM_PROTOCOL, MSG_TYPE_ACKNOWLEDGEMENT, 0, 0, payload)
}

// User Control Message event types.
const (
	UserControlStreamBegin      = 0
	UserControlStreamEOF        = 1
	UserControlStreamDry        = 2
	UserControlSetBufferLength  = 3
	UserControlStreamIsRecorded = 4
	UserControlPingRequest      = 6
	UserControlPingResponse     = 7
)

func (mw *messageWriter) writeUserControl(w io.Writer, eventType uint16, eventData uint32) error {
	payload := make([]byte, 6)
	binary.BigEndian.PutUint16(payload[0:], eventType)
	binary.BigEndian.PutUint32(payload[2:], eventData)
	return mw.writeMessage(w, CHUNK_STREAM_PROTOCOL, MSG_TYPE_USER_CONTROL, 0, 0, payload)
}

func (mw *messageWriter) writeCommand(w io.Writer, streamId uint32, payload []byte) error {
	return mw.writeMessage(w, CHUNK_STREAM_COMMAND, MSG_TYPE_AMF0_COMMAND, streamId, 0, payload)
}

func (mw *messageWriter) writeAudioData(w io.Writer, streamId uint32, timestamp uint32, data []byte) error {
	return mw.writeMessage(w, CHUNK_STREAM_AUDIO, MSG_TYPE_AUDIO, streamId, timestamp, data)
}

func (mw *messageWriter) writeVideoData(w io.Writer, streamId uint32, timestamp uint32, data []byte) error {
	return mw.writeMessage(w, CHUNK_STREAM_VIDEO, MSG_TYPE_VIDEO, streamId, timestamp, data)
}

func PutUint24(b []byte, v uint32) {
	b[0] = byte((v >> 16) & 0xFF)
	b[1] = byte((v >> 8) & 0xFF)
	b[2] = byte(v & 0xFF)
}
