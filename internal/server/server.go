// Package server assembles the chat engine, its collaborators and the HTTP
// surface into one Server value.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Server owns the live chat state and serves it over WebSocket.
type Server struct {
	cfg        *Config
	engine     *chat.Engine
	store      chat.Store
	metrics    *metrics.Metrics
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

// New creates a Server. Messages, rooms and users are handed to recorder;
// history is read back from store.
func New(cfg *Config, store chat.Store, recorder chat.Recorder, limiter Limiter, m *metrics.Metrics, log *slog.Logger) *Server {
	if recorder == nil {
		recorder = chat.NopRecorder{}
	}
	engine := chat.NewEngine(cfg.Limits(), log,
		chat.WithSendTimeout(cfg.SendTimeout),
		chat.WithEchoToSender(cfg.EchoToSender),
		chat.WithRecorder(recorder),
		chat.WithObserver(m),
	)

	m.GaugeFunc("sessions_active", "Registered sessions.", func() float64 {
		return float64(engine.Registry.Count())
	})
	m.GaugeFunc("rooms", "Rooms in the directory.", func() float64 {
		return float64(len(engine.Directory.List()))
	})

	origins := newOriginPolicy(cfg.Origins(), log)
	return &Server{
		cfg:        cfg,
		engine:     engine,
		store:      store,
		metrics:    m,
		hub:        NewHub(m, log),
		dispatcher: NewDispatcher(cfg, engine, limiter, store, recorder, m, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		log: log,
	}
}

// RestoreRooms loads persisted room records into the directory. Rooms come
// back empty; members must join again.
func (s *Server) RestoreRooms(ctx context.Context) (int, error) {
	records, err := s.store.LoadRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("load rooms: %w", err)
	}
	restored := s.engine.Directory.Restore(records)
	s.log.Info("Rooms restored", "count", restored)
	return restored, nil
}

// Engine returns the chat engine.
func (s *Server) Engine() *chat.Engine {
	return s.engine
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}

// Shutdown stops the HTTP server, then closes every WebSocket connection.
// Both steps share the deadline of ctx.
func (s *Server) Shutdown(ctx context.Context, httpServer *http.Server) error {
	var errs []error
	if httpServer != nil {
		if err := ShutdownServer(ctx, httpServer, s.log); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	return errors.Join(errs...)
}
