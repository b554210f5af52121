// Package wsfmp4 serves live channels over WebSocket as fragmented MP4:
// an ISO-BMFF init segment once the video sequence header and the first
// keyframe have arrived, then one moof+mdat fragment per keyframe,
// suitable for feeding a browser MediaSource SourceBuffer.
package wsfmp4

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

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades /websocket/<app>/<stream_key> requests and streams
// fragmented MP4 segments.
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
		slog.Error("failed to start WebSocket fMP4 listener", "port", s.port, "err", err)
		return err
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("WebSocket fMP4 server stopped", "err", err)
		}
	}()

	slog.Info("WebSocket fMP4 listener started", "port", s.port)
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

// clientState keeps the video sequence header needed to build the init
// segment (audio events are not forwarded), then tracks fragment timing
// once the stream is live.
type clientState struct {
	conn *websocket.Conn

	videoConfig *media.AVCDecoderConfig

	enc        *media.Fmp4Encoder
	lastTs     uint32
	haveLastTs bool
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
	case media.Video:
		return c.forwardVideo(e)
	default:
		return nil
	}
}

func (c *clientState) forwardVideo(e media.Event) error {
	if len(e.Payload) < 5 || c.videoConfig == nil {
		return nil
	}

	if c.enc == nil {
		if !e.IsKeyframe {
			return nil
		}
		track := media.Fmp4Track{
			ID:        1,
			Timescale: media.DefaultFmp4Timescale,
			SPS:       c.videoConfig.SPS,
			PPS:       c.videoConfig.PPS,
		}
		c.enc = media.NewFmp4Encoder(track)
		if err := c.send(c.enc.InitSegment()); err != nil {
			return err
		}
	}

	if !e.IsKeyframe {
		return nil
	}

	duration := uint32(0)
	if c.haveLastTs {
		duration = diffTimestamp(e.Timestamp, c.lastTs)
	}
	c.lastTs = e.Timestamp
	c.haveLastTs = true

	frame := append([]byte{}, e.Payload[5:]...)
	fragment := c.enc.WrapFrame(frame, e.IsKeyframe, duration)
	return c.send(fragment)
}

func diffTimestamp(current, previous uint32) uint32 {
	if current <= previous {
		return 0
	}
	return current - previous
}

func (c *clientState) send(payload []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, payload)
}

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
