// Package server accepts connections and dispatches one session per
// connection. Sessions only block each other through the shared
// snapshot and catalog store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/kshitij406/VendingMachine/internal/session"
)

type Server struct {
	addr string
	deps session.Deps

	ln     net.Listener
	active atomic.Int64
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
}

func New(addr string, deps session.Deps) *Server {
	return &Server{
		addr:     addr,
		deps:     deps,
		sessions: make(map[*session.Session]struct{}),
	}
}

// Listen binds the TCP socket. A failure here is fatal to the process;
// the caller decides (bootstrap does log.Fatalf).
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	log.Printf("[*] server listening on %s", ln.Addr())
	return nil
}

// Serve blocks on the accept loop until Shutdown closes the listener.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		n := s.active.Add(1)
		log.Printf("[+] connection from %s (active: %d)", conn.RemoteAddr(), n)

		sess := session.New(conn, s.deps)
		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Run(ctx)
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
			n := s.active.Add(-1)
			log.Printf("[-] disconnected from %s (active: %d)", conn.RemoteAddr(), n)
		}()
	}
}

// Shutdown stops accepting, terminates every live session, and waits for
// their goroutines to drain. Terminating closes each connection, which
// unblocks sessions parked in a read.
func (s *Server) Shutdown() {
	if s.ln != nil {
		s.ln.Close()
	}

	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Terminate()
	}
	s.wg.Wait()
}

// ActiveSessions reports the current connection count.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
