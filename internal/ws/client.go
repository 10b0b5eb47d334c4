package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/presence"
)

const maxInboundMessage = 512

// Settings tunes keepalive and buffering for live connections.
type Settings struct {
	QueueSize    int
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.QueueSize <= 0 {
		s.QueueSize = 64
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.PingInterval <= 0 || s.PingInterval >= s.PongWait {
		s.PingInterval = s.PongWait * 9 / 10
	}
	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
	}
	return s
}

// Client is one live connection. It satisfies presence.Handle: Push only
// enqueues, and a dedicated write pump drains the queue onto the socket.
type Client struct {
	conn     *websocket.Conn
	info     ConnInfo
	settings Settings
	log      *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo, settings Settings, log *zap.Logger) *Client {
	return &Client{
		conn:     conn,
		info:     info,
		settings: settings,
		log:      log,
		send:     make(chan []byte, settings.QueueSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) Identity() string {
	return c.info.UserID
}

func (c *Client) Push(event models.ChatEvent) error {
	select {
	case <-c.done:
		return presence.ErrHandleClosed
	default:
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return presence.ErrHandleClosed
	case c.send <- payload:
		return nil
	default:
		return presence.ErrQueueFull
	}
}

// Close stops the write pump, which sends a close frame and releases the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() error {
	c.conn.SetReadLimit(maxInboundMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		// the channel is push-only; inbound frames are read for keepalive and close
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("ws write failed", zap.String("conn_id", c.info.ConnID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"),
				time.Now().Add(c.settings.WriteWait))
			return
		}
	}
}

var _ presence.Handle = (*Client)(nil)
