package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/aiosd/internal/application/dispatch"
	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/ports"
)

// SessionState tracks a session's lifecycle.
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateActive     SessionState = "active"
	StateClosed     SessionState = "closed"
)

// Session serves one client connection. Requests and responses are
// newline-delimited JSON, one object per line each way.
type Session struct {
	ID      string
	conn    net.Conn
	service *dispatch.Service
	factory ports.ContextFactory
	logger  ports.Logger

	mu           sync.Mutex
	state        SessionState
	pid          int
	uid          int
	connectedAt  time.Time
	lastActivity time.Time
}

func newSession(conn net.Conn, service *dispatch.Service, factory ports.ContextFactory, logger ports.Logger) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		conn:         conn,
		service:      service,
		factory:      factory,
		logger:       logger,
		state:        StateConnecting,
		connectedAt:  now,
		lastActivity: now,
	}
}

// serve runs the request loop until the peer disconnects or ctx is
// cancelled.
func (s *Session) serve(ctx context.Context) {
	defer s.close()

	pid, uid := peerCredentials(s.conn)
	s.mu.Lock()
	s.pid = pid
	s.uid = uid
	s.state = StateActive
	s.mu.Unlock()

	var tracker ports.ContextTracker
	if s.factory != nil {
		tracker = s.factory.Create(ctx, pid, uid)
	}

	s.logger.Info("session opened", map[string]interface{}{
		"session": s.ID,
		"pid":     pid,
		"uid":     uid,
	})

	// Unblock the decoder when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	reader := bufio.NewReader(s.conn)
	enc := json.NewEncoder(s.conn)
	sess := dispatch.Session{ID: s.ID, Tracker: tracker}

	for {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var req domain.Request
			if err := json.Unmarshal(trimmed, &req); err != nil {
				// Skip only the offending line; requests pipelined
				// behind it are still served from the buffer.
				if encErr := enc.Encode(domain.ErrorResponse("malformed request: " + err.Error())); encErr != nil {
					return
				}
			} else {
				s.touch()
				resp := s.service.Handle(ctx, sess, req)
				if err := enc.Encode(resp); err != nil {
					s.logger.Warn("failed to write response", map[string]interface{}{
						"session": s.ID,
						"error":   err.Error(),
					})
					return
				}
			}
		}
		if readErr != nil {
			return
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) close() {
	s.conn.Close()
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.logger.Info("session closed", map[string]interface{}{"session": s.ID})
}

// Info returns a point-in-time view of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:           s.ID,
		PID:          s.pid,
		UID:          s.uid,
		State:        s.state,
		ConnectedAt:  s.connectedAt,
		LastActivity: s.lastActivity,
	}
}
