// Package lobbytest runs an in-process lobby server that speaks the request
// framing, records what it receives and answers validated requests.
package lobbytest

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/wordbiz/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Responder returns the bytes to send back for a request. nil means stay
// silent.
type Responder func(req frame.Request) []byte

// DefaultResponder acknowledges LOGIN and LOGOUT and ignores the rest.
func DefaultResponder(req frame.Request) []byte {
	if !req.Validate {
		return nil
	}
	switch req.Verb() {
	case "LOGIN":
		return []byte("LOGIN OK")
	case "LOGOUT":
		return []byte("LOGOUT OK")
	default:
		return []byte(req.Verb() + " OK")
	}
}

// Silent never answers.
func Silent(frame.Request) []byte { return nil }

type Option func(*Server)

func WithResponder(r Responder) Option {
	return func(s *Server) { s.respond = r }
}

func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

// Greeting is written to every connection right after accept.
func WithGreeting(b []byte) Option {
	return func(s *Server) { s.greeting = append([]byte(nil), b...) }
}

type Server struct {
	t         testing.TB
	ln        net.Listener
	tlsConfig *tls.Config
	greeting  []byte

	mu       sync.Mutex
	respond  Responder
	requests []frame.Request
	conns    map[net.Conn]struct{}
	accepted int
	closed   bool

	wg sync.WaitGroup
}

// Start listens on 127.0.0.1 with an ephemeral port and stops on test cleanup.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		t:       t,
		respond: DefaultResponder,
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("lobbytest listen: %v", err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

func (s *Server) SetResponder(r Responder) {
	s.mu.Lock()
	s.respond = r
	s.mu.Unlock()
}

// Requests returns a copy of every frame received so far, in order.
func (s *Server) Requests() []frame.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame.Request(nil), s.requests...)
}

// Accepted counts connections accepted since start.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Open counts connections currently held.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// WaitRequests blocks until at least n requests arrived or timeout elapses.
func (s *Server) WaitRequests(n int, timeout time.Duration) []frame.Request {
	deadline := time.Now().Add(timeout)
	for {
		reqs := s.Requests()
		if len(reqs) >= n || time.Now().After(deadline) {
			return reqs
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WaitOpen blocks until exactly n connections are held or timeout elapses.
func (s *Server) WaitOpen(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.Open() == n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Push writes unsolicited bytes to every open connection.
func (s *Server) Push(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_, _ = conn.Write(b)
	}
}

// DropAll closes every client connection but keeps listening.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

// Close stops the listener and all connections. Safe to call twice.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	_ = s.ln.Close()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if len(s.greeting) > 0 {
		if _, err := conn.Write(s.greeting); err != nil {
			return
		}
	}

	for {
		req, err := frame.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Msg("lobbytest.Server.serve read")
			}
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		respond := s.respond
		s.mu.Unlock()

		log.Debug().Uint32("seq", req.Sequence).Str("verb", req.Verb()).Bool("validate", req.Validate).
			Msg("lobbytest.Server.serve <<<")
		if out := respond(req); len(out) > 0 {
			if _, err := conn.Write(out); err != nil {
				return
			}
		}
	}
}
