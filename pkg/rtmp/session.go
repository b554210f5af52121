package rtmp

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"sol/pkg/amf"
	"sol/pkg/hub"
	"sol/pkg/media"
)

const (
	handshakeTimeout     = 10 * time.Second
	idlePublisherTimeout = 30 * time.Second
	defaultWindowAckSize = 5_000_000
)

// session drives one RTMP connection's state machine: handshake, connect,
// createStream, then either publish (ingest into the hub) or play
// (subscribe from the hub and forward events back out over RTMP).
type session struct {
	id     string
	conn   net.Conn
	reader *messageReader
	writer *messageWriter
	hub    *hub.Hub
	events chan<- interface{}

	writeMu sync.Mutex

	app          string
	streamId     uint32
	channelID    hub.ChannelID
	publishingID string
	subscriber   *hub.Subscriber

	// windowAckSize is the value this session advertised via
	// writeWindowAckSize; an Acknowledgement is sent every time that many
	// bytes have been received from the peer since the last one.
	windowAckSize uint32
	lastAcked     uint32
}

// countingReader wraps a reader and tallies bytes successfully read,
// letting the read loop track progress toward the next acknowledgement
// window without threading a counter through messageReader itself.
type countingReader struct {
	r io.Reader
	n uint32
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint32(n)
	return n, err
}

func newSession(conn net.Conn, h *hub.Hub, events chan<- interface{}) *session {
	s := &session{
		id:            uuid.NewString(),
		conn:          conn,
		reader:        newMessageReader(),
		writer:        newMessageWriter(),
		hub:           h,
		events:        events,
		windowAckSize: defaultWindowAckSize,
	}

	go s.run()

	return s
}

func (s *session) run() {
	defer s.cleanup()

	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := handshake(s.conn); err != nil {
		slog.Info("handshake failed", "sessionId", s.id, "err", err)
		return
	}
	s.conn.SetDeadline(time.Time{})

	slog.Info("handshake successful", "sessionId", s.id, "addr", s.conn.RemoteAddr())

	cr := &countingReader{r: s.conn}
	for {
		if s.publishingID != "" {
			s.conn.SetReadDeadline(time.Now().Add(idlePublisherTimeout))
		}

		message, err := s.reader.readNextMessage(cr)
		if err != nil {
			slog.Info("session read loop exiting", "sessionId", s.id, "err", err)
			return
		}

		if err := s.handleMessage(message); err != nil {
			slog.Info("session closing after message handling error", "sessionId", s.id, "err", err)
			s.events <- ErrorOccurred{SessionId: s.id, Err: err, Context: "handleMessage"}
			return
		}

		if err := s.maybeAcknowledge(cr.n); err != nil {
			slog.Info("session closing after acknowledgement write failure", "sessionId", s.id, "err", err)
			return
		}
	}
}

// maybeAcknowledge sends an Acknowledgement once totalReceived has crossed
// the next windowAckSize boundary since the last one sent, per the
// negotiated acknowledgement window (spec §2/§4.1).
func (s *session) maybeAcknowledge(totalReceived uint32) error {
	if s.windowAckSize == 0 || totalReceived-s.lastAcked < s.windowAckSize {
		return nil
	}
	s.lastAcked = totalReceived
	return s.write(func() error {
		return s.writer.writeAcknowledgement(s.conn, totalReceived)
	})
}

func (s *session) cleanup() {
	s.conn.Close()

	if s.publishingID != "" {
		s.hub.ReleasePublisher(s.channelID, s.publishingID)
		s.events <- PublishStopped{SessionId: s.id, Channel: s.channelID}
	}
	if s.subscriber != nil {
		s.hub.Unsubscribe(s.subscriber)
		s.events <- PlayStopped{SessionId: s.id, Channel: s.channelID}
	}
	s.events <- Terminated{SessionId: s.id}
}

func (s *session) handleMessage(message *Message) error {
	switch message.TypeID() {
	case MSG_TYPE_SET_CHUNK_SIZE:
		return s.handleSetChunkSize(message)
	case MSG_TYPE_USER_CONTROL:
		return s.handleUserControl(message)
	case MSG_TYPE_AUDIO:
		return s.handleAudio(message)
	case MSG_TYPE_VIDEO:
		return s.handleVideo(message)
	case MSG_TYPE_AMF0_DATA:
		return s.handleScriptData(message)
	case MSG_TYPE_AMF0_COMMAND:
		return s.handleAMF0Command(message)
	case MSG_TYPE_ABORT, MSG_TYPE_ACKNOWLEDGEMENT, MSG_TYPE_WINDOW_ACK_SIZE, MSG_TYPE_SET_PEER_BW:
		// Protocol control messages we observe but don't need to act on as
		// a server: abort/ack/window-ack-size/peer-bandwidth are inputs a
		// client sends about its own view of the connection.
		return nil
	default:
		slog.Warn("unhandled RTMP message type", "sessionId", s.id, "type", message.TypeID())
		return nil
	}
}

func (s *session) handleSetChunkSize(message *Message) error {
	if len(message.Payload()) != 4 {
		return fmt.Errorf("invalid Set Chunk Size payload length %d", len(message.Payload()))
	}
	newChunkSize := readUint32BE(message.Payload())
	if newChunkSize&0x80000000 != 0 {
		return fmt.Errorf("Set Chunk Size has reserved highest bit set")
	}
	if newChunkSize < 1 || newChunkSize > EXTENDED_TIMESTAMP_THRESHOLD {
		return fmt.Errorf("Set Chunk Size %d out of valid range", newChunkSize)
	}
	s.reader.setChunkSize(newChunkSize)
	return nil
}

func (s *session) handleUserControl(message *Message) error {
	payload := message.Payload()
	if len(payload) < 2 {
		return nil
	}
	eventType := uint16(payload[0])<<8 | uint16(payload[1])
	if eventType != UserControlPingRequest {
		return nil
	}
	var eventData uint32
	if len(payload) >= 6 {
		eventData = readUint32BE(payload[2:6])
	}
	return s.write(func() error {
		return s.writer.writeUserControl(s.conn, UserControlPingResponse, eventData)
	})
}

func (s *session) handleAudio(message *Message) error {
	if s.publishingID == "" {
		return nil
	}
	e := media.NewAudioEvent(message.Timestamp(), message.Payload())
	s.hub.PublishEvent(s.channelID, e)
	return nil
}

func (s *session) handleVideo(message *Message) error {
	if s.publishingID == "" {
		return nil
	}
	e := media.NewVideoEvent(message.Timestamp(), message.Payload())
	s.hub.PublishEvent(s.channelID, e)
	return nil
}

func (s *session) handleScriptData(message *Message) error {
	if s.publishingID == "" {
		return nil
	}
	reader := bytes.NewReader(message.Payload())
	values, err := amf.DecodeAMF0Sequence(reader)
	if err != nil || len(values) == 0 {
		return nil
	}

	name, _ := values[0].(string)
	if name == "@setDataFrame" {
		// @setDataFrame wraps the real onMetaData command and its object;
		// strip the wrapper and keep the payload FLV SCRIPTDATA expects.
		values = values[1:]
	}
	if len(values) == 0 {
		return nil
	}

	reencoded, err := amf.EncodeAMF0Sequence(values...)
	if err != nil {
		return nil
	}

	s.hub.PublishEvent(s.channelID, media.NewMetadataEvent(message.Timestamp(), reencoded))
	return nil
}

func (s *session) handleAMF0Command(message *Message) error {
	reader := bytes.NewReader(message.Payload())
	values, err := amf.DecodeAMF0Sequence(reader)
	if err != nil {
		return fmt.Errorf("decoding AMF0 command: %w", err)
	}
	if len(values) == 0 {
		return fmt.Errorf("empty AMF0 command")
	}

	commandName, ok := values[0].(string)
	if !ok {
		return fmt.Errorf("invalid command name type %T", values[0])
	}

	switch commandName {
	case "connect":
		return s.handleConnect(values)
	case "createStream":
		return s.handleCreateStream(values)
	case "publish":
		return s.handlePublish(values)
	case "play":
		return s.handlePlay(values)
	case "deleteStream", "closeStream", "pause", "releaseStream", "FCPublish",
		"receiveAudio", "receiveVideo", "onBWDone":
		// Acknowledged implicitly: these commands don't change session
		// state in ways this server tracks.
		return nil
	default:
		slog.Warn("unknown AMF0 command", "sessionId", s.id, "name", commandName)
		return nil
	}
}

func (s *session) handleConnect(values []any) error {
	if len(values) < 3 {
		return fmt.Errorf("connect: expected at least 3 arguments, got %d", len(values))
	}
	transactionID, _ := values[1].(float64)

	commandObj, ok := values[2].(amf.Object)
	if !ok {
		return fmt.Errorf("connect: invalid command object type %T", values[2])
	}
	if app, ok := commandObj.Get("app"); ok {
		s.app, _ = app.(string)
	}

	return s.write(func() error {
		if err := s.writer.writeWindowAckSize(s.conn, defaultWindowAckSize); err != nil {
			return err
		}
		if err := s.writer.writeSetPeerBandwidth(s.conn, defaultWindowAckSize, PeerBandwidthDynamic); err != nil {
			return err
		}
		if err := s.writer.writeSetChunkSize(s.conn, 4096); err != nil {
			return err
		}
		s.writer.setChunkSize(4096)

		result := amf.NewObject(
			amf.Property{Name: "fmsVer", Value: "FMS/3,0,1,123"},
			amf.Property{Name: "capabilities", Value: float64(31)},
		)
		status := amf.NewObject(
			amf.Property{Name: "level", Value: "status"},
			amf.Property{Name: "code", Value: "NetConnection.Connect.Success"},
			amf.Property{Name: "description", Value: "Connection succeeded."},
			amf.Property{Name: "objectEncoding", Value: float64(0)},
		)
		payload, err := amf.EncodeAMF0Sequence("_result", transactionID, result, status)
		if err != nil {
			return err
		}
		return s.writer.writeCommand(s.conn, 0, payload)
	})
}

func (s *session) handleCreateStream(values []any) error {
	if len(values) < 2 {
		return fmt.Errorf("createStream: expected at least 2 arguments, got %d", len(values))
	}
	transactionID, _ := values[1].(float64)

	s.streamId = 1
	return s.write(func() error {
		payload, err := amf.EncodeAMF0Sequence("_result", transactionID, nil, float64(s.streamId))
		if err != nil {
			return err
		}
		return s.writer.writeCommand(s.conn, 0, payload)
	})
}

func (s *session) handlePublish(values []any) error {
	if len(values) < 4 {
		return fmt.Errorf("publish: expected at least 4 arguments, got %d", len(values))
	}
	transactionID, _ := values[1].(float64)
	streamKey, ok := values[3].(string)
	if !ok {
		return fmt.Errorf("publish: invalid stream key type %T", values[3])
	}

	s.channelID = hub.ChannelID{App: s.app, StreamKey: streamKey}
	if err := s.hub.AcquirePublisher(s.channelID, s.id); err != nil {
		return s.write(func() error {
			return s.writeOnStatus(transactionID, "error", "NetStream.Publish.BadName", "Stream already being published")
		})
	}

	s.publishingID = s.id
	s.events <- PublishStarted{SessionId: s.id, Channel: s.channelID}

	return s.write(func() error {
		return s.writeOnStatus(transactionID, "status", "NetStream.Publish.Start", fmt.Sprintf("%s is now published.", streamKey))
	})
}

func (s *session) handlePlay(values []any) error {
	if len(values) < 4 {
		return fmt.Errorf("play: expected at least 4 arguments, got %d", len(values))
	}
	transactionID, _ := values[1].(float64)
	streamKey, ok := values[3].(string)
	if !ok {
		return fmt.Errorf("play: invalid stream key type %T", values[3])
	}

	channelID := hub.ChannelID{App: s.app, StreamKey: streamKey}
	sub, err := s.hub.Subscribe(channelID)
	if err != nil {
		return s.write(func() error {
			return s.writeOnStatus(transactionID, "error", "NetStream.Play.StreamNotFound", "No such stream")
		})
	}
	s.channelID = channelID
	s.subscriber = sub
	s.events <- PlayStarted{SessionId: s.id, Channel: channelID}

	if err := s.write(func() error {
		if err := s.writer.writeUserControl(s.conn, UserControlStreamBegin, s.streamId); err != nil {
			return err
		}
		if err := s.writeOnStatus(transactionID, "status", "NetStream.Play.Start", fmt.Sprintf("Started playing %s.", streamKey)); err != nil {
			return err
		}
		sampleAccess := amf.NewEcmaArray(
			amf.Property{Name: "audioSampleAccess", Value: true},
			amf.Property{Name: "videoSampleAccess", Value: true},
		)
		payload, err := amf.EncodeAMF0Sequence("|RtmpSampleAccess", sampleAccess)
		if err != nil {
			return err
		}
		return s.writer.writeCommand(s.conn, s.streamId, payload)
	}); err != nil {
		return err
	}

	go s.forwardSubscription(sub)
	return nil
}

// forwardSubscription drains a hub subscription and re-serializes each
// media event back out as RTMP audio/video/script data messages. Runs
// until the subscriber's queue is closed (disconnect or epoch change) or a
// write fails.
func (s *session) forwardSubscription(sub *hub.Subscriber) {
	for e := range sub.Events() {
		if err := s.forwardEvent(e); err != nil {
			s.conn.Close()
			return
		}
	}
}

func (s *session) forwardEvent(e media.Event) error {
	return s.write(func() error {
		switch e.Kind {
		case media.Audio, media.AudioHeader:
			return s.writer.writeAudioData(s.conn, s.streamId, e.Timestamp, e.Payload)
		case media.Video, media.VideoHeader:
			return s.writer.writeVideoData(s.conn, s.streamId, e.Timestamp, e.Payload)
		case media.Metadata:
			return s.writer.writeMessage(s.conn, CHUNK_STREAM_SCRIPT, MSG_TYPE_AMF0_DATA, s.streamId, e.Timestamp, e.Payload)
		default:
			return nil
		}
	})
}

func (s *session) writeOnStatus(transactionID float64, level, code, description string) error {
	info := amf.NewObject(
		amf.Property{Name: "level", Value: level},
		amf.Property{Name: "code", Value: code},
		amf.Property{Name: "description", Value: description},
	)
	payload, err := amf.EncodeAMF0Sequence("onStatus", transactionID, nil, info)
	if err != nil {
		return err
	}
	return s.writer.writeCommand(s.conn, s.streamId, payload)
}

// write serializes outbound writes: both the read loop (command replies,
// ping responses) and the subscription-forwarding goroutine write to the
// same connection.
func (s *session) write(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

func readUint32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
