package rpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/radicle-link/linkd/internal/codec"
)

// Handler processes a single Request and produces the Response to
// write back before the connection is closed — this protocol is
// one-request-per-connection, matching the teacher's admin socket
// pattern of a short-lived connection per command.
type Handler func(Request) Response

// Server listens on a Unix domain socket for control requests and, on
// a second socket, broadcasts Events to any connected subscriber.
type Server struct {
	requestPath string
	eventPath   string
	handler     Handler
	log         *slog.Logger

	mu          sync.Mutex
	subscribers map[net.Conn]struct{}

	reqLn   net.Listener
	eventLn net.Listener
}

// NewServer creates a Server bound to requestPath and eventPath. Both
// sockets are removed and recreated if a stale file is present, as
// Unix sockets do not clean up after an unclean shutdown.
func NewServer(requestPath, eventPath string, handler Handler, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		requestPath: requestPath,
		eventPath:   eventPath,
		handler:     handler,
		log:         log,
		subscribers: make(map[net.Conn]struct{}),
	}

	reqLn, err := listenUnix(requestPath)
	if err != nil {
		return nil, err
	}
	eventLn, err := listenUnix(eventPath)
	if err != nil {
		reqLn.Close()
		return nil, err
	}
	s.reqLn = reqLn
	s.eventLn = eventLn
	return s, nil
}

func listenUnix(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen on %s: %w", path, err)
	}
	return ln, nil
}

// Serve runs the request-accept loop until the listener is closed.
func (s *Server) Serve() error {
	go s.serveEvents()

	for {
		conn, err := s.reqLn.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rpc: accept request connection: %w", err)
		}
		go s.handleRequest(conn)
	}
}

func (s *Server) handleRequest(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := codec.ReadFrame(conn, &req); err != nil {
		s.log.Warn("rpc: read request frame failed", "err", err)
		return
	}

	resp := s.handler(req)
	if err := codec.WriteFrame(conn, &resp); err != nil {
		s.log.Warn("rpc: write response frame failed", "err", err)
	}
}

func (s *Server) serveEvents() {
	for {
		conn, err := s.eventLn.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("rpc: accept event connection failed", "err", err)
			return
		}
		s.mu.Lock()
		s.subscribers[conn] = struct{}{}
		s.mu.Unlock()
	}
}

// Publish broadcasts ev to every currently connected event subscriber,
// dropping (and closing) any connection that fails to keep up.
func (s *Server) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.subscribers {
		if err := codec.WriteFrame(conn, &ev); err != nil {
			conn.Close()
			delete(s.subscribers, conn)
		}
	}
}

// Close shuts down both listeners and any connected event subscribers.
func (s *Server) Close() error {
	s.mu.Lock()
	for conn := range s.subscribers {
		conn.Close()
	}
	s.mu.Unlock()

	err1 := s.reqLn.Close()
	err2 := s.eventLn.Close()
	os.Remove(s.requestPath)
	os.Remove(s.eventPath)
	if err1 != nil {
		return err1
	}
	return err2
}
