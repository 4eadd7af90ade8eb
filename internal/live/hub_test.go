package live

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readView(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(b, &msg))
	return msg
}

func TestHubSendsLastViewOnConnect(t *testing.T) {
	hub := NewHub(log.New(&bytes.Buffer{}, "", 0))
	hub.Publish(game.View{TotalKills: "7"})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)

	msg := readView(t, conn)
	assert.Equal(t, "view", msg.Type)
	assert.Equal(t, "7", msg.View.TotalKills)
}

func TestHubBroadcasts(t *testing.T) {
	hub := NewHub(log.New(&bytes.Buffer{}, "", 0))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(game.View{TotalKills: "42"})

	assert.Equal(t, "42", readView(t, a).View.TotalKills)
	assert.Equal(t, "42", readView(t, b).View.TotalKills)
}

func TestHubForgetsClosedClients(t *testing.T) {
	hub := NewHub(log.New(&bytes.Buffer{}, "", 0))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	hub.Publish(game.View{TotalKills: "1"})
}
