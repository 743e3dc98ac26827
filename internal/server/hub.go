// Package server tracks live WebSocket clients and their goroutines so the
// service can shut every connection down within a bounded wait.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Hub owns the goroutines of every connected client. Message fan-out is the
// chat router's job; the hub only starts, counts and stops connections.
type Hub struct {
	clients map[*Client]struct{}
	mutex   sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHub creates a Hub. Connection counts are reported to m.
func NewHub(m *metrics.Metrics, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients: make(map[*Client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		log:     log,
	}
}

// Serve starts the client's write pump and runs handle on its own goroutine.
// When handle returns the client is closed and forgotten. Serve returns false
// without starting anything once the hub is shutting down.
func (h *Hub) Serve(client *Client, handle func(ctx context.Context, c *Client)) bool {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return false
	}
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.wg.Add(2)
	h.mutex.Unlock()

	h.metrics.ConnectionOpened()
	h.log.Info("Client connected", "addr", client.addr, "clients", clientCount)

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		defer h.remove(client)
		handle(h.ctx, client)
	}()
	return true
}

func (h *Hub) remove(client *Client) {
	_ = client.Close()

	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if ok {
		h.metrics.ConnectionClosed()
		h.log.Info("Client disconnected", "addr", client.addr, "clients", clientCount)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// shutdownClients closes every connected client.
func (h *Hub) shutdownClients() int {
	h.mutex.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		_ = client.Close()
	}
	return len(clients)
}

// Shutdown closes all clients and waits for their goroutines to finish,
// giving up when ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	closed := h.shutdownClients()
	h.log.Info("Closed client connections", "count", closed)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-ctx.Done():
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return ctx.Err()
	}
}
