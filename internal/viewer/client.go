// Package viewer is a terminal dashboard that follows a timeviewer server
// over its viewer WebSocket.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/timeviewer/backend/internal/logging"
	"github.com/timeviewer/backend/internal/session"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// Client holds the viewer connection and turns its frames into Bubble Tea
// messages.
type Client struct {
	url   string
	token string
	log   *logrus.Entry

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	gotCatchup bool
	pingCancel context.CancelFunc
}

func NewClient(url, token string) *Client {
	return &Client{url: url, token: token, log: logging.NewLogger("viewer")}
}

// ConnectedMsg is sent when the WebSocket connects.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct{ Err error }

// SnapshotMsg carries the catch-up list sent first on every connection.
type SnapshotMsg struct{ Segments []session.Segment }

// UpdateMsg carries one live update.
type UpdateMsg struct{ Update session.Update }

// Listen returns a command that dials until connected, backing off between
// attempts.
func (c *Client) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			header := http.Header{}
			if c.token != "" {
				header.Set("X-Timeviewer-Token", c.token)
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
			if err != nil {
				c.log.WithError(err).Debugf("dial failed, retry in %v", delay)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCancel != nil {
				c.pingCancel()
			}
			pingCtx, cancel := context.WithCancel(ctx)
			c.conn = conn
			c.gotCatchup = false
			c.pingCancel = cancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)
			return ConnectedMsg{}
		}
	}
}

// ReadLoop returns a command that yields the next frame from the current
// connection. The first frame of a connection is the catch-up snapshot.
func (c *Client) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: fmt.Errorf("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})

		for {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.drop(conn)
				return DisconnectedMsg{Err: err}
			}

			msg, err := c.decode(data)
			if err != nil {
				c.log.WithError(err).Warn("skipping malformed frame")
				continue
			}
			return msg
		}
	}
}

func (c *Client) decode(data []byte) (tea.Msg, error) {
	c.mu.Lock()
	first := !c.gotCatchup
	c.gotCatchup = true
	c.mu.Unlock()

	if first {
		var segments []session.Segment
		if err := json.Unmarshal(data, &segments); err != nil {
			return nil, err
		}
		return SnapshotMsg{Segments: segments}, nil
	}
	var u session.Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return UpdateMsg{Update: u}, nil
}

func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.pingCancel != nil {
			c.pingCancel()
			c.pingCancel = nil
		}
	}
	c.mu.Unlock()
	conn.Close()
}

// Close ends the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	c.drop(conn)
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
