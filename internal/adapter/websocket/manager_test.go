package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bus-ops/internal/eventbus"
	"bus-ops/internal/fanout"
	"bus-ops/pkg/auth"
	"bus-ops/pkg/logger"
)

func newTestManager(t *testing.T) (*Manager, *auth.JWTManager) {
	t.Helper()
	log := logger.NewLogger("ws-test")
	bus := eventbus.New(log)
	dispatcher := fanout.New(bus, log)
	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	return NewManager(dispatcher, jwtMgr, log), jwtMgr
}

func dialTest(t *testing.T, mgr *Manager) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(mgr.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUnauthenticatedConnectionClosed(t *testing.T) {
	mgr, _ := newTestManager(t)
	conn := dialTest(t, mgr)

	// Stay silent past the auth window and expect the server to hang up.
	conn.SetReadDeadline(time.Now().Add(authTimeout + 3*time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected server to close the silent unauthenticated connection")
	}
	if mgr.ConnectionCount() != 0 {
		t.Errorf("expected 0 tracked connections, got %d", mgr.ConnectionCount())
	}
}

func TestAuthenticatedConnectionOutlivesAuthWindow(t *testing.T) {
	mgr, jwtMgr := newTestManager(t)
	conn := dialTest(t, mgr)

	token, err := jwtMgr.GenerateToken("g-agent-1", auth.RoleAgent)
	if err != nil {
		t.Fatal(err)
	}
	authMsg, _ := json.Marshal(Message{Type: MsgTypeAuth, Token: token})
	if err := conn.WriteMessage(websocket.TextMessage, authMsg); err != nil {
		t.Fatal(err)
	}

	// Past the auth window the widened deadline keeps the session open:
	// a short read times out instead of reporting a closed connection.
	time.Sleep(authTimeout + time.Second)
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected no server message on an idle session")
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("expected read timeout on a live session, got %v", err)
	}
}
