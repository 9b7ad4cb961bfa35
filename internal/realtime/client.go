package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mcoot/escaperoom/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Time between pings, shorter than pongWait
	pingPeriod = 30 * time.Second

	// Largest intent accepted from a client
	maxMessageSize = 64 << 10

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// Client is one websocket connection
type Client struct {
	conn        *websocket.Conn
	send        chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
	legacy      bool
	limiter     *rate.Limiter
	connectedAt time.Time
	logger      *slog.Logger

	mu       sync.RWMutex
	playerID model.PlayerID
}

// NewClient wraps a websocket connection. A nil limiter accepts every intent.
func NewClient(conn *websocket.Conn, legacy bool, limiter *rate.Limiter, logger *slog.Logger) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		closed:      make(chan struct{}),
		legacy:      legacy,
		limiter:     limiter,
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// PlayerID returns the player this connection joined as, if any
func (c *Client) PlayerID() model.PlayerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Client) setPlayerID(id model.PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = id
}

// Legacy reports whether the client speaks the first protocol version
func (c *Client) Legacy() bool {
	return c.legacy
}

// Enqueue queues a frame for writing. It returns false if the buffer is
// full or the client is closed.
func (c *Client) Enqueue(frame Frame) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame.Bytes(c.legacy):
		return true
	default:
		return false
	}
}

// Allow reports whether the next intent fits the client's rate limit
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Close stops the write pump, which closes the connection
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// ReadPump reads intents until the connection fails, passing each decoded
// envelope to handle.
func (c *Client) ReadPump(handle func(Envelope)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.Enqueue(ErrorFrame(CodeValidation, "malformed frame"))
			continue
		}
		handle(env)
	}
}

// WritePump writes queued frames and keepalive pings until the client is
// closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
