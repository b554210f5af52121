package sol

import (
	"log/slog"

	"sol/pkg/httpflv"
	"sol/pkg/hub"
	"sol/pkg/player"
	"sol/pkg/rtmp"
	"sol/pkg/wsfmp4"
	"sol/pkg/wsh264"
)

// listener is the common shape every optional adapter server satisfies,
// so Server can start/stop them uniformly.
type listener interface {
	Start() error
	Stop()
}

// Server owns the shared channel hub and every listener the configuration
// enables. A port of 0 in Config means that egress listener is never built;
// the RTMP listener is always built and started, and a port of 0 does not
// disable it.
type Server struct {
	config *Config
	hub    *hub.Hub

	rtmp      *rtmp.Server
	listeners []listener
}

func NewServer(config *Config) *Server {
	h := hub.New()

	s := &Server{
		config: config,
		hub:    h,
		rtmp:   rtmp.NewServer(config.RTMP.Port, h),
	}

	if config.HTTPFLV.Port != 0 {
		s.listeners = append(s.listeners, httpflv.NewServer(config.HTTPFLV.Port, h))
	}
	if config.WSH264.Port != 0 {
		s.listeners = append(s.listeners, wsh264.NewServer(config.WSH264.Port, h))
	}
	if config.WSFmp4.Port != 0 {
		s.listeners = append(s.listeners, wsfmp4.NewServer(config.WSFmp4.Port, h))
	}
	if config.Player.Port != 0 {
		s.listeners = append(s.listeners, player.NewServer(config.Player.Port, config.WSH264.Port))
	}

	return s
}

func (s *Server) Start() error {
	slog.Info("starting sol server", "rtmp_port", s.config.RTMP.Port)
	if err := s.rtmp.Start(); err != nil {
		return err
	}

	for _, l := range s.listeners {
		if err := l.Start(); err != nil {
			s.Stop()
			return err
		}
	}
	return nil
}

func (s *Server) Stop() {
	slog.Info("stopping sol server")
	s.rtmp.Stop()
	for _, l := range s.listeners {
		l.Stop()
	}
}
