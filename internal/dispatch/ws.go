package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

// WSRegistry implements Transport over gorilla websockets. One session per
// account; a reconnect replaces the previous session.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*wsSession
	logger   *slog.Logger
}

type wsSession struct {
	identity Identity
	conn     *websocket.Conn
	send     chan []byte
	closing  sync.Once
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*wsSession), logger: logger}
}

// Join registers a connection under its verified identity and starts the
// read/write pumps. It returns once the connection is registered.
func (r *WSRegistry) Join(id Identity, conn *websocket.Conn) {
	s := &wsSession{identity: id, conn: conn, send: make(chan []byte, sendBuffer)}

	r.mu.Lock()
	if prev, ok := r.sessions[id.AccountID]; ok {
		prev.shutdown()
	}
	r.sessions[id.AccountID] = s
	r.mu.Unlock()

	r.logger.Info("ws client joined", "account_id", id.AccountID, "role", id.Role)
	go r.writePump(s)
	go r.readPump(s)
}

// UpdateIdentity refreshes the broadcast snapshot for a connected account
// (availability toggles, location pings). No-op when not connected.
func (r *WSRegistry) UpdateIdentity(accountID string, fn func(*Identity)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[accountID]; ok {
		fn(&s.identity)
	}
}

func (r *WSRegistry) Send(accountID string, data []byte) bool {
	// the RLock is held across the channel send so a concurrent shutdown
	// (which closes under the write lock) cannot race it
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[accountID]
	if !ok {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		// buffer full; drop rather than block the publisher
		return false
	}
}

func (r *WSRegistry) Identities() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Identity, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.identity)
	}
	return out
}

func (r *WSRegistry) Connected(accountID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[accountID]
	return ok
}

func (r *WSRegistry) remove(s *wsSession) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.identity.AccountID]; ok && cur == s {
		delete(r.sessions, s.identity.AccountID)
	}
	s.shutdown()
	r.mu.Unlock()
}

func (s *wsSession) shutdown() {
	s.closing.Do(func() { close(s.send) })
	_ = s.conn.Close()
}

func (r *WSRegistry) readPump(s *wsSession) {
	defer r.remove(s)
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// clients only listen; reads exist to drive pong handling and
		// notice disconnects
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug("ws read error", "account_id", s.identity.AccountID, "error", err)
			}
			return
		}
	}
}

func (r *WSRegistry) writePump(s *wsSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
