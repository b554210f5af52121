// Package httpflv serves live channels as a continuous HTTP-FLV byte
// stream: one long-running response body per client, written straight
// from that client's hub subscriber queue.
package httpflv

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"sol/pkg/hub"
	"sol/pkg/media"
)

// Server is an HTTP listener that maps GET /<app>/<stream_key> onto a
// hub subscription and streams FLV tags for as long as the client stays
// connected.
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
	mux.HandleFunc("/", s.handle)
	s.srv = &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		slog.Error("failed to start HTTP-FLV listener", "port", s.port, "err", err)
		return err
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP-FLV server stopped", "err", err)
		}
	}()

	slog.Info("HTTP-FLV listener started", "port", s.port)
	return nil
}

func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	app, streamKey, ok := parsePath(r.URL.Path)
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
	defer s.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "video/x-flv")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if _, err := w.Write(media.FlvHeader); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			tag, ok := media.EncodeFlvTag(e)
			if !ok {
				continue
			}
			if _, err := w.Write(tag); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// parsePath extracts the trailing "/app/stream_key" segments from a
// request path, tolerating any prefix per spec's "MAY match any path
// ending in /app/stream_key".
func parsePath(path string) (app, streamKey string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	n := len(parts)
	app, streamKey = parts[n-2], parts[n-1]
	if app == "" || streamKey == "" {
		return "", "", false
	}
	return app, streamKey, true
}
