package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bus-ops/internal/eventbus"
	"bus-ops/internal/fanout"
	"bus-ops/pkg/auth"
	"bus-ops/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checking
	},
}

// Manager bridges authenticated dashboard sockets to the event
// dispatcher. Each connection gets its own dispatcher registration so
// multiple sessions of the same user receive events independently.
type Manager struct {
	clients    map[string]*Client // sessionID -> Client
	mu         sync.RWMutex
	dispatcher *fanout.Dispatcher
	jwtMgr     *auth.JWTManager
	log        logger.Logger
}

// NewManager creates a new WebSocket manager.
func NewManager(dispatcher *fanout.Dispatcher, jwtMgr *auth.JWTManager, log logger.Logger) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		dispatcher: dispatcher,
		jwtMgr:     jwtMgr,
		log:        log,
	}
}

// HandleWebSocket upgrades the HTTP connection and starts the client
// loops. Authentication happens in-band via the auth message.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Error("websocket_upgrade_failed", err)
		return
	}

	client := newClient(conn, m, uuid.NewString())

	m.mu.Lock()
	m.clients[client.sessionID] = client
	m.mu.Unlock()

	go client.readLoop()
	go client.writeLoop()
}

// authenticate validates the JWT presented in the auth handshake and
// returns the caller's identity.
func (m *Manager) authenticate(token string) (string, auth.Role, error) {
	token = strings.TrimPrefix(token, "Bearer ")

	claims, err := m.jwtMgr.ParseToken(token)
	if err != nil {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}

	// Public trip trackers open watch-only streams; the dispatcher's
	// routing rules already limit what each role can see.
	if !claims.Role.IsValid() {
		return "", "", fmt.Errorf("unknown role %s", claims.Role)
	}
	return claims.UserID, claims.Role, nil
}

// attach registers (or re-registers) the client with the dispatcher,
// optionally watching a trip, and starts forwarding its events.
// Re-registering under the same session closes the previous
// subscription, which lets the old forwarding goroutine exit.
func (m *Manager) attach(c *Client, tripID string) {
	sub := m.dispatcher.Register(c.sessionID, c.userID, c.role, tripID)

	c.subMu.Lock()
	c.sub = sub
	c.subMu.Unlock()

	go m.forward(c, sub)

	m.log.WithFields(logger.LogFields{"trip_id": tripID}).
		Info("ws_subscribed", fmt.Sprintf("User %s (%s) subscribed via session %s", c.userID, c.role, c.sessionID))
}

// forward copies dispatcher events onto the socket until the
// subscription closes. A close while still current means the
// dispatcher dropped us for falling behind; the client is told to
// resync before the connection goes down.
func (m *Manager) forward(c *Client, sub *eventbus.Subscription) {
	for ev := range sub.Events() {
		data, err := json.Marshal(ev)
		if err != nil {
			m.log.Error("ws_event_marshal_failed", err)
			continue
		}
		msg, err := json.Marshal(Message{
			Type:      MsgTypeEvent,
			EventType: ev.EventType(),
			Data:      data,
		})
		if err != nil {
			m.log.Error("ws_event_marshal_failed", err)
			continue
		}

		select {
		case c.send <- msg:
		default:
			m.log.Info("ws_client_slow", fmt.Sprintf("Send buffer full for session %s, dropping connection", c.sessionID))
			m.remove(c)
			c.conn.Close()
			return
		}
	}

	c.subMu.Lock()
	current := c.sub == sub
	c.subMu.Unlock()
	if !current {
		// Replaced by a newer subscribe, nothing to do.
		return
	}

	if resync, err := json.Marshal(Message{Type: MsgTypeResync}); err == nil {
		select {
		case c.send <- resync:
		default:
		}
	}
	m.log.Info("ws_client_resync", fmt.Sprintf("Session %s fell behind, closing after resync notice", c.sessionID))
	m.remove(c)
	c.conn.Close()
}

// remove drops the client from the manager and the dispatcher. Safe to
// call more than once.
func (m *Manager) remove(c *Client) {
	m.mu.Lock()
	_, ok := m.clients[c.sessionID]
	if ok {
		delete(m.clients, c.sessionID)
	}
	m.mu.Unlock()

	if ok {
		m.dispatcher.Unregister(c.sessionID)
		m.log.Info("ws_client_disconnected", fmt.Sprintf("Session %s disconnected", c.sessionID))
	}
}

// ConnectionCount returns the number of open sessions.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll closes all connections gracefully.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		m.dispatcher.Unregister(client.sessionID)
		client.conn.Close()
	}

	m.log.Info("websocket_manager_closed", "All dashboard connections closed")
}
