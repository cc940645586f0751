// Package broker implements the TCP front end of the job queue: the
// acceptor, the per-connection session loop, and the per-client ledger that
// drives disconnect-time requeueing.
package broker

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/nuulab/jobq/pkg/events"
	"github.com/nuulab/jobq/pkg/metrics"
	"github.com/nuulab/jobq/pkg/queue"
)

// Config holds broker configuration.
type Config struct {
	// Addr is the TCP listen address, e.g. "0.0.0.0:1337".
	Addr string
	// Verbose enables per-line request/response logging.
	Verbose bool
	// Metrics receives broker counters. Optional.
	Metrics *metrics.Metrics
	// Events receives job lifecycle events. Optional.
	Events *events.Publisher
}

// Server is the broker: one engine shared by every connection.
type Server struct {
	state   *queue.State
	cfg     Config
	metrics *metrics.Metrics
	events  *events.Publisher

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// New creates a broker with a fresh engine.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:1337"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Server{
		state:   queue.NewState(),
		cfg:     cfg,
		metrics: cfg.Metrics,
		events:  cfg.Events,
	}
}

// State exposes the engine for monitoring.
func (s *Server) State() *queue.State {
	return s.state
}

// ListenAndServe binds the configured address and serves until Close.
// A bind failure is the only startup-fatal condition.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("broker: listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln, spawning one session goroutine per
// connection. Returns nil after Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("broker: server closed")
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			log.Printf("broker: accept error: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// Addr returns the bound listen address, for callers that bound port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting connections. Sessions already running terminate
// when their clients disconnect.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}
