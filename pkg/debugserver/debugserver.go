// Package debugserver exposes a read-only websocket feed of the engine's
// live studio/voice graph for support tooling, grounded in the same
// gorilla/websocket + per-client rate limiting shape the federation hub
// uses for its own socket handlers.
package debugserver

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/amuse-engine/pkg/amuse/engine"
	"github.com/opd-ai/amuse-engine/pkg/amuse/session"
)

// Server serves a single read-only "/snapshot" websocket endpoint that
// streams session.Dump output on a fixed interval per client.
type Server struct {
	eng      *engine.Engine
	log      *logrus.Entry
	upgrader websocket.Upgrader

	interval time.Duration
	connRate int

	mu         sync.Mutex
	rateLimits map[string]*rate.Limiter

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a debug server snapshotting eng every interval, rejecting
// client connects beyond connRate (in connections/minute).
func New(eng *engine.Engine, interval time.Duration, connRate int, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		eng:        eng,
		log:        log.WithField("component", "debugserver"),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		interval:   interval,
		connRate:   connRate,
		rateLimits: make(map[string]*rate.Limiter),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening on addr.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{Addr: listener.Addr().String(), Handler: mux}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("debug server error")
		}
	}()
	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Stop gracefully shuts down the debug server.
func (s *Server) Stop() error {
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) limiterFor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rateLimits[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(s.connRate)/60), 5)
		s.rateLimits[ip] = l
	}
	return l
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if !s.limiterFor(ip).Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("failed to upgrade websocket")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			snap := session.Build(s.eng)
			text, err := session.Dump(snap)
			if err != nil {
				s.log.WithError(err).Error("failed to render snapshot")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				s.log.WithError(err).Debug("websocket write error")
				return
			}
		}
	}
}
