package rtmp

import (
	"bytes"
	"net"
	"testing"
	"time"
)

// fakeConn is a minimal net.Conn backed by a buffer, just enough to drive
// session methods that write to s.conn without a real socket.
type fakeConn struct {
	bytes.Buffer
}

func (fakeConn) Close() error { return nil }
func (fakeConn) LocalAddr() net.Addr { return nil }
func (fakeConn) RemoteAddr() net.Addr { return nil }
func (fakeConn) SetDeadline(_ time.Time) error { return nil }
func (fakeConn) SetReadDeadline(_ time.Time) error { return nil }
func (fakeConn) SetWriteDeadline(_ time.Time) error { return nil }

func newTestSession() (*session, *fakeConn) {
	conn := &fakeConn{}
	s := &session{
		id:            "test-session",
		conn:          conn,
		writer:        newMessageWriter(),
		windowAckSize: defaultWindowAckSize,
	}
	return s, conn
}

func TestMaybeAcknowledge_NoAckBeforeWindowCrossed(t *testing.T) {
	s, conn := newTestSession()

	if err := s.maybeAcknowledge(defaultWindowAckSize - 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.Len() != 0 {
		t.Errorf("expected no bytes written before the window is crossed, got %d", conn.Len())
	}
}

func TestMaybeAcknowledge_SendsAckOnceWindowCrossed(t *testing.T) {
	s, conn := newTestSession()

	if err := s.maybeAcknowledge(defaultWindowAckSize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.Len() == 0 {
		t.Fatal("expected an Acknowledgement to be written once the window was crossed")
	}

	reader := newMessageReader()
	msg, err := reader.readNextMessage(newFakeChunkConn(conn.Bytes()))
	if err != nil {
		t.Fatalf("failed to read back the written message: %v", err)
	}
	if msg.TypeID() != MSG_TYPE_ACKNOWLEDGEMENT {
		t.Fatalf("expected Acknowledgement type id, got %d", msg.TypeID())
	}
	if got := readUint32BE(msg.Payload()); got != defaultWindowAckSize {
		t.Errorf("expected acknowledged byte count %d, got %d", defaultWindowAckSize, got)
	}
}

func TestMaybeAcknowledge_OnlyAcksOnceUntilNextWindow(t *testing.T) {
	s, conn := newTestSession()

	if err := s.maybeAcknowledge(defaultWindowAckSize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstWriteLen := conn.Len()

	if err := s.maybeAcknowledge(defaultWindowAckSize + 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.Len() != firstWriteLen {
		t.Error("expected no additional Acknowledgement until another full window has been received")
	}

	if err := s.maybeAcknowledge(2 * defaultWindowAckSize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.Len() == firstWriteLen {
		t.Error("expected a second Acknowledgement once another full window was crossed")
	}
}
