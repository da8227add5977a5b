// Package daemon implements the Unix-socket server: it owns the listener,
// enforces the session cap and hands decoded requests to the dispatch
// service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doeshing/aiosd/internal/application/dispatch"
	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/ports"
)

// DefaultMaxClients bounds concurrent sessions.
const DefaultMaxClients = 64

// Server accepts connections on a Unix socket, one session per connection.
type Server struct {
	socketPath     string
	maxClients     int
	service        *dispatch.Service
	contextFactory ports.ContextFactory
	logger         ports.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// Options configures a Server.
type Options struct {
	SocketPath     string
	MaxClients     int
	Service        *dispatch.Service
	ContextFactory ports.ContextFactory
	Logger         ports.Logger
}

// NewServer builds a server. The dispatch service's ActiveSessions hook is
// wired here so status responses can report the live session count.
func NewServer(opts Options) *Server {
	maxClients := opts.MaxClients
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	s := &Server{
		socketPath:     opts.SocketPath,
		maxClients:     maxClients,
		service:        opts.Service,
		contextFactory: opts.ContextFactory,
		logger:         opts.Logger,
		sessions:       make(map[string]*Session),
	}
	if s.service != nil {
		s.service.ActiveSessions = s.ActiveSessions
	}
	return s
}

// Run listens until ctx is cancelled, then closes the listener and waits
// for in-flight sessions to drain.
func (s *Server) Run(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}

	s.logger.Info("daemon listening", map[string]interface{}{
		"socket":      s.socketPath,
		"max_clients": s.maxClients,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		listener.Close()
		return nil
	})
	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.logger.Warn("accept failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			s.admit(gctx, conn)
		}
	})

	err = g.Wait()
	s.wg.Wait()
	os.Remove(s.socketPath)
	s.logger.Info("daemon stopped", nil)
	return err
}

// listen binds the socket, replacing a stale file from a previous run. The
// socket is world-writable: peer identity comes from SO_PEERCRED, not file
// permissions.
func (s *Server) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o666); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}

// admit starts a session for conn, or refuses it when the table is full.
func (s *Server) admit(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	if len(s.sessions) >= s.maxClients {
		s.mu.Unlock()
		s.logger.Warn("session table full, rejecting connection", map[string]interface{}{
			"max_clients": s.maxClients,
		})
		enc := json.NewEncoder(conn)
		enc.Encode(domain.ErrorResponse("daemon at capacity, try again later"))
		conn.Close()
		return
	}
	sess := newSession(conn, s.service, s.contextFactory, s.logger)
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.serve(ctx)
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
	}()
}

// ActiveSessions returns the live session count.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns a snapshot of session metadata for diagnostics.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	ID           string
	PID          int
	UID          int
	State        SessionState
	ConnectedAt  time.Time
	LastActivity time.Time
}
