package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bus-ops/internal/eventbus"
	"bus-ops/pkg/auth"
)

const (
	authTimeout  = 5 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	mgr       *Manager
	sessionID string

	authenticated bool
	userID        string
	role          auth.Role

	// sub is the dispatcher subscription currently forwarded to this
	// client. Replaced when the client re-subscribes to another trip.
	subMu sync.Mutex
	sub   *eventbus.Subscription
}

func newClient(conn *websocket.Conn, mgr *Manager, sessionID string) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, 256),
		mgr:       mgr,
		sessionID: sessionID,
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.mgr.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(10_000)
	// Unauthenticated connections get a short read window. The deadline
	// is widened to pongWait once the handshake succeeds.
	c.conn.SetReadDeadline(time.Now().Add(authTimeout))
	c.conn.SetPongHandler(func(appData string) error {
		// Extend deadline when pong received
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !c.authenticated {
				c.mgr.log.Info("ws_unauthenticated_close", "Connection closed before authentication")
			}
			return
		}

		var m Message
		if err := json.Unmarshal(msg, &m); err != nil {
			c.mgr.log.Debug("ws_invalid_message", err.Error())
			continue
		}

		// AUTH HANDSHAKE
		if m.Type == MsgTypeAuth && !c.authenticated {
			userID, role, err := c.mgr.authenticate(m.Token)
			if err != nil {
				c.mgr.log.Info("ws_auth_failed", err.Error())
				return
			}
			c.authenticated = true
			c.userID = userID
			c.role = role
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
			// An authenticated client watches no trip until it
			// subscribes. Admins already receive everything.
			c.mgr.attach(c, "")
			continue
		}

		// Reject other messages until authenticated
		if !c.authenticated {
			c.mgr.log.Debug("ws_message_before_auth", "Message before auth ignored")
			continue
		}

		switch m.Type {
		case MsgTypeSubscribe:
			c.mgr.attach(c, m.TripID)
		default:
			c.mgr.log.Debug("ws_unknown_message", "Unknown message type: "+m.Type)
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.WriteMessage(websocket.TextMessage, msg)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
