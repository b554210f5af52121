// Package wsh264 serves live channels over WebSocket as raw Annex-B H.264
// NAL units and ADTS-framed AAC, for clients doing their own decoding
// (e.g. via WebCodecs) rather than consuming a container format.
package wsh264

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"sol/pkg/hub"
	"sol/pkg/media"
)

const (
	kindVideo byte = 0x00
	kindAudio byte = 0x01
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades /websocket/<app>/<stream_key> requests and streams
// binary frames: a 1-byte kind prefix followed by the elementary stream
// payload.
type Server struct {
	port int
	hub  *hub.Hub
	srv  *http.Server
}

func NewServer(port int, h *hub.Hub) *Server {
	return &Server{port: port, hub: h}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket/", s.handle)
	s.srv = &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		slog.Error("failed to start WebSocket H.264 listener", "port", s.port, "err", err)
		return err
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("WebSocket H.264 server stopped", "err", err)
		}
	}()

	slog.Info("WebSocket H.264 listener started", "port", s.port)
	return nil
}

func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	app, streamKey, ok := parsePath(strings.TrimPrefix(r.URL.Path, "/websocket"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	id := hub.ChannelID{App: app, StreamKey: streamKey}
	sub, err := s.hub.Subscribe(id)
	if err != nil {
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.Unsubscribe(sub)
		return
	}
	defer s.hub.Unsubscribe(sub)
	defer conn.Close()

	c := &clientState{conn: conn}
	for e := range sub.Events() {
		if err := c.forward(e); err != nil {
			return
		}
	}
}

// clientState tracks the per-connection inlining of sequence-header data
// into the first keyframe/audio-frame delivery, per the adapter's
// no-standalone-header-message design.
type clientState struct {
	conn         *websocket.Conn
	videoConfig  *media.AVCDecoderConfig
	audioConfig  *media.AudioSpecificConfig
	sentFirstKey bool
}

func (c *clientState) forward(e media.Event) error {
	switch e.Kind {
	case media.VideoHeader:
		if len(e.Payload) < 5 {
			return nil
		}
		cfg, err := media.ParseAVCDecoderConfig(e.Payload[5:])
		if err == nil {
			c.videoConfig = cfg
		}
		return nil
	case media.AudioHeader:
		if len(e.Payload) < 2 {
			return nil
		}
		cfg, err := media.ParseAudioSpecificConfig(e.Payload[2:])
		if err == nil {
			c.audioConfig = cfg
		}
		return nil
	case media.Video:
		return c.forwardVideo(e)
	case media.Audio:
		return c.forwardAudio(e)
	default:
		return nil
	}
}

func (c *clientState) forwardVideo(e media.Event) error {
	if len(e.Payload) < 5 {
		return nil
	}
	annexB, err := media.AVCCToAnnexB(e.Payload[5:])
	if err != nil {
		return nil
	}

	if e.IsKeyframe && !c.sentFirstKey {
		c.sentFirstKey = true
		if c.videoConfig != nil {
			annexB = append(append([]byte{}, c.videoConfig.AnnexBParameterSets()...), annexB...)
		}
	}

	return c.send(kindVideo, annexB)
}

func (c *clientState) forwardAudio(e media.Event) error {
	if len(e.Payload) < 2 || c.audioConfig == nil {
		return nil
	}
	payload := e.Payload[2:]
	adts := c.audioConfig.ADTSHeader(len(payload))
	out := append(adts, payload...)

	return c.send(kindAudio, out)
}

func (c *clientState) send(kind byte, payload []byte) error {
	frame := make([]byte, 1+len(payload))
	frame[0] = kind
	copy(frame[1:], payload)
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// parsePath extracts "/app/stream_key" after the fixed "/websocket"
// prefix has been trimmed by the caller.
func parsePath(path string) (app, streamKey string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		return "", "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
