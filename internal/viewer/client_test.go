package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers one viewer connection with the given frames.
func fakeServer(t *testing.T, gotToken chan<- string, frames ...string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotToken != nil {
			gotToken <- r.Header.Get("X-Timeviewer-Token")
		}
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_SnapshotThenUpdate(t *testing.T) {
	tokens := make(chan string, 1)
	url := fakeServer(t, tokens,
		`[{"starttime":"2026-04-14T10:00:00Z","endtime":null,"title":"main.go","url":null,"app":"Code"}]`,
		`not json`,
		`{"app":"Firefox","title":"Go","url":"https://go.dev/","starttime":"2026-04-14T10:05:00Z"}`,
	)

	c := NewClient(url, "secret")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer c.Close()

	require.IsType(t, ConnectedMsg{}, c.Listen(ctx)())
	assert.Equal(t, "secret", <-tokens)

	snap, ok := c.ReadLoop(ctx)().(SnapshotMsg)
	require.True(t, ok)
	require.Len(t, snap.Segments, 1)
	assert.Equal(t, "Code", snap.Segments[0].App)
	assert.True(t, snap.Segments[0].IsOpen())

	// The malformed frame is skipped.
	upd, ok := c.ReadLoop(ctx)().(UpdateMsg)
	require.True(t, ok)
	assert.Equal(t, "Firefox", upd.Update.App)
	require.NotNil(t, upd.Update.URL)
	assert.Equal(t, "https://go.dev/", *upd.Update.URL)
}

func TestClient_DisconnectReported(t *testing.T) {
	url := fakeServer(t, nil, `[]`)

	c := NewClient(url, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.IsType(t, ConnectedMsg{}, c.Listen(ctx)())
	_, ok := c.ReadLoop(ctx)().(SnapshotMsg)
	require.True(t, ok)

	c.Close()
	msg := c.ReadLoop(ctx)()
	assert.IsType(t, DisconnectedMsg{}, msg)
}

func TestClient_ListenStopsOnCancel(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/client", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, c.Listen(ctx)())
}
