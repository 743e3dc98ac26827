// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 256
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeWait     = 10 * time.Second
)

// ErrClientClosed is returned by Send once the client has been closed.
var ErrClientClosed = errors.New("client closed")

// Client represents a WebSocket client connection in the chat system.
// Outgoing frames are queued on a buffered channel and written by the
// client's write pump; incoming frames are read by whoever calls Receive.
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	addr         string
	maxFrameSize int64
	log          *slog.Logger
}

// NewClient creates a new Client for conn. Frames larger than maxFrameSize
// end the connection.
func NewClient(conn *websocket.Conn, addr string, maxFrameSize int64, log *slog.Logger) *Client {
	c := &Client{
		conn:         conn,
		send:         make(chan []byte, sendQueueSize),
		done:         make(chan struct{}),
		addr:         addr,
		maxFrameSize: maxFrameSize,
		log:          log.With("addr", addr),
	}
	if conn != nil {
		conn.SetReadLimit(maxFrameSize)
		c.setupReadConnection()
	}
	return c
}

// Addr returns the remote address of the client.
func (c *Client) Addr() string {
	return c.addr
}

// Send queues payload for the write pump. It fails when the client is closed
// or ctx is done before the queue has room. A nil error means the write pump
// will write the frame, either normally or in its final flush.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	select {
	case c.send <- payload:
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The flush runs only after done is closed, so a frame queued while done
	// is still open is always written.
	select {
	case <-c.done:
		return ErrClientClosed
	default:
		return nil
	}
}

// Receive blocks until the next frame arrives. Any error is final.
func (c *Client) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		c.handleReadError(err)
		return nil, err
	}
	return raw, nil
}

// Close stops the write pump, which flushes queued frames, sends a close
// frame and closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs the read error at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("Frame exceeded maximum size", "max_bytes", c.maxFrameSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("Client disconnected", "reason", err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("Client connection closed", "reason", err)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn("Unexpected WebSocket error", "error", err)
		return
	}

	c.log.Warn("WebSocket read error", "error", err)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.handlePing()
	case <-c.done:
		c.flush()
		return c.writeCloseMessage()
	}
}

// flush writes whatever is still queued so replies sent just before a
// close are not lost.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if !c.writeTextMessage(message) {
				return
			}
		default:
			return
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection", "error", err)
		}
	}
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing close message", "error", err)
		}
	}
	return false
}

// writeTextMessage writes one frame. Frames are never batched: every JSON
// object travels in its own WebSocket message.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}
