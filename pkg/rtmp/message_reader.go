package rtmp

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const extendedTimestampSentinel = 0xFFFFFF

// messageReader reassembles RTMP messages from an interleaved chunk
// stream read from a single connection.
type messageReader struct {
	readerContext *messageReaderContext
}

func newMessageReader() *messageReader {
	return &messageReader{
		readerContext: newMessageReaderContext(),
	}
}

// handshake performs the server side of the RTMP handshake (C0/C1/C2,
// S0/S1/S2). S1's random field is generated fresh per connection and S2
// echoes C1 verbatim, as most servers do. C2 is validated: its echoed
// random data must match what this server sent in S1, catching publishers
// that get the handshake wrong rather than silently proceeding with a
// connection that is not really synchronized.
func handshake(rw io.ReadWriter) error {
	c0 := make([]byte, 1)
	if _, err := io.ReadFull(rw, c0); err != nil {
		return fmt.Errorf("failed to read C0: %w", err)
	}
	if c0[0] != RTMP_VERSION {
		return fmt.Errorf("unsupported RTMP version: %d", c0[0])
	}

	// S0
	if _, err := rw.Write(c0); err != nil {
		return fmt.Errorf("failed to write S0: %w", err)
	}

	// S1
	s1 := make([]byte, HANDSHAKE_SIZE)
	// time and zero fields left zero; only the random field matters for
	// the echo check below.
	if _, err := rand.Read(s1[8:]); err != nil {
		return fmt.Errorf("failed to generate S1 random data: %w", err)
	}
	if _, err := rw.Write(s1); err != nil {
		return fmt.Errorf("failed to write S1: %w", err)
	}

	// C1
	c1 := make([]byte, HANDSHAKE_SIZE)
	if _, err := io.ReadFull(rw, c1); err != nil {
		return fmt.Errorf("failed to read C1: %w", err)
	}

	// S2 echoes C1 verbatim.
	if _, err := rw.Write(c1); err != nil {
		return fmt.Errorf("failed to write S2: %w", err)
	}

	// C2
	c2 := make([]byte, HANDSHAKE_SIZE)
	if _, err := io.ReadFull(rw, c2); err != nil {
		return fmt.Errorf("failed to read C2: %w", err)
	}

	if !bytes.Equal(c2[8:], s1[8:]) {
		return errors.New("C2 random echo does not match S1")
	}

	return nil
}

func (ms *messageReader) setChunkSize(size uint32) {
	ms.readerContext.setChunkSize(size)
}

// readNextMessage reads chunks until one complete message is available,
// possibly interleaving chunks that belong to other chunk streams.
func (ms *messageReader) readNextMessage(r io.Reader) (*Message, error) {
	for {
		msg, err := ms.readChunk(r)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
}

// readChunk reads exactly one chunk. It returns a non-nil *Message only
// when that chunk completes a message.
func (ms *messageReader) readChunk(r io.Reader) (*Message, error) {
	bh, err := readBasicHeader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read basic header: %w", err)
	}

	state := ms.readerContext.state(bh.chunkStreamID)

	startingNewMessage := !state.inProgress()
	if startingNewMessage {
		if err := ms.beginNewMessage(r, bh.fmt, state); err != nil {
			return nil, err
		}
	} else if bh.fmt != FMT_TYPE_3 {
		return nil, fmt.Errorf("chunk stream %d: expected continuation (fmt 3) mid-message, got fmt %d", bh.chunkStreamID, bh.fmt)
	} else if state.extended {
		// Interop trap: the extended timestamp field repeats on every
		// continuation chunk of a message that used it, even though fmt 3
		// otherwise carries no header fields. The value is redundant here
		// (the message's timestamp was already fixed when it began) but
		// must still be consumed off the wire.
		if _, err := readExtendedTimestamp(r); err != nil {
			return nil, fmt.Errorf("failed to read repeated extended timestamp: %w", err)
		}
	}

	size := state.nextChunkPayloadSize(ms.readerContext.chunkSize)
	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("failed to read chunk payload: %w", err)
		}
	}
	state.appendPayload(payload)

	if state.complete() {
		return state.takeMessage(), nil
	}
	return nil, nil
}

// beginNewMessage parses a fmt 0/1/2/3 message header and installs fresh
// reassembly state for the message it introduces.
func (ms *messageReader) beginNewMessage(r io.Reader, chunkFmt byte, state *chunkStreamState) error {
	switch chunkFmt {
	case FMT_TYPE_0:
		buf := [11]byte{}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		ts := readUint24BE(buf[0:3])
		length := readUint24BE(buf[3:6])
		typeId := buf[6]
		streamId := binary.LittleEndian.Uint32(buf[7:11])
		extended := ts == extendedTimestampSentinel
		if extended {
			var err error
			ts, err = readExtendedTimestamp(r)
			if err != nil {
				return err
			}
		}
		state.beginMessage(ts, 0, length, typeId, streamId, extended)
		return nil

	case FMT_TYPE_1:
		if !state.hasHeader {
			return errors.New("fmt 1 chunk with no prior header on this chunk stream")
		}
		buf := [7]byte{}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		delta := readUint24BE(buf[0:3])
		length := readUint24BE(buf[3:6])
		typeId := buf[6]
		extended := delta == extendedTimestampSentinel
		if extended {
			var err error
			delta, err = readExtendedTimestamp(r)
			if err != nil {
				return err
			}
		}
		state.beginMessage(state.timestamp+delta, delta, length, typeId, state.streamId, extended)
		return nil

	case FMT_TYPE_2:
		if !state.hasHeader {
			return errors.New("fmt 2 chunk with no prior header on this chunk stream")
		}
		buf := [3]byte{}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		delta := readUint24BE(buf[:])
		extended := delta == extendedTimestampSentinel
		if extended {
			var err error
			delta, err = readExtendedTimestamp(r)
			if err != nil {
				return err
			}
		}
		state.beginMessage(state.timestamp+delta, delta, state.length, state.typeId, state.streamId, extended)
		return nil

	case FMT_TYPE_3:
		if !state.hasHeader {
			return errors.New("fmt 3 chunk with no prior header on this chunk stream")
		}
		// Fmt 3 with no message in progress means "same header, same
		// cadence as before" — reuse the previous delta and fields.
		if state.extended {
			ts, err := readExtendedTimestamp(r)
			if err != nil {
				return err
			}
			state.beginMessage(ts, state.lastDelta, state.length, state.typeId, state.streamId, true)
			return nil
		}
		state.beginMessage(state.timestamp+state.lastDelta, state.lastDelta, state.length, state.typeId, state.streamId, false)
		return nil
	}
	return fmt1Error(chunkFmt)
}

func fmt1Error(f byte) error {
	return fmt.Errorf("fmt must be 0-3, got %d", f)
}

func readBasicHeader(r io.Reader) (*basicHeader, error) {
	buf := [1]byte{}
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	format := (buf[0] & 0xC0) >> 6
	chunkStreamId := uint32(buf[0] & 0x3F)

	switch chunkStreamId {
	case 0:
		ext := [1]byte{}
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		chunkStreamId = 64 + uint32(ext[0])
	case 1:
		ext := [2]byte{}
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		chunkStreamId = 64 + uint32(binary.LittleEndian.Uint16(ext[:]))
	}

	return newBasicHeader(format, chunkStreamId), nil
}

func readExtendedTimestamp(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint24BE(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}
