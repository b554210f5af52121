package rtmp

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"sol/pkg/hub"
)

// Server accepts RTMP connections and drives each one through a session,
// all sharing one channel hub for publish/subscribe fan-out.
type Server struct {
	port int
	hub  *hub.Hub

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}
	events   chan interface{}
	done     chan struct{}
}

func NewServer(port int, h *hub.Hub) *Server {
	return &Server{
		port:     port,
		hub:      h,
		sessions: make(map[*session]struct{}),
		events:   make(chan interface{}, 64),
		done:     make(chan struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		slog.Error("failed to start RTMP listener", "port", s.port, "err", err)
		return err
	}
	s.listener = ln

	go s.eventLoop()
	go s.acceptConnections(ln)

	slog.Info("RTMP listener started", "port", s.port)
	return nil
}

func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.conn.Close()
	}
}

func (s *Server) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.events:
			s.handleEvent(data)
		}
	}
}

func (s *Server) handleEvent(data interface{}) {
	switch v := data.(type) {
	case Terminated:
		s.removeSessionByID(v.SessionId)
	case PublishStarted:
		slog.Info("publish started", "sessionId", v.SessionId, "channel", v.Channel)
	case PublishStopped:
		slog.Info("publish stopped", "sessionId", v.SessionId, "channel", v.Channel)
	case PlayStarted:
		slog.Info("play started", "sessionId", v.SessionId, "channel", v.Channel)
	case PlayStopped:
		slog.Info("play stopped", "sessionId", v.SessionId, "channel", v.Channel)
	case ErrorOccurred:
		slog.Error("session error", "sessionId", v.SessionId, "context", v.Context, "err", v.Err)
	}
}

func (s *Server) removeSessionByID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		if sess.id == id {
			delete(s.sessions, sess)
			return
		}
	}
}

func (s *Server) acceptConnections(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			slog.Error("accept failed", "err", err)
			return
		}

		sess := newSession(conn, s.hub, s.events)
		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()
	}
}
