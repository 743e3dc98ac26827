// Package server runs the per-connection protocol state machine that turns
// decoded frames into chat engine calls.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/protocol"
)

const internalErrorMessage = "internal server error"

var (
	errRegisterFirst     = &chat.Error{Kind: chat.KindValidation, Msg: "must register first"}
	errAlreadyRegistered = &chat.Error{Kind: chat.KindConflict, Msg: "already registered"}
)

// Transport is a bidirectional frame connection.
type Transport interface {
	chat.Conn
	// Receive blocks for the next inbound frame. Any error ends the connection.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Limiter admits or denies a message from identity.
type Limiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

// HistoryLoader reads persisted room history.
type HistoryLoader interface {
	LoadRecentMessages(ctx context.Context, room string, limit int) ([]chat.Message, error)
}

// Dispatcher drives one connection at a time through the protocol: a
// register handshake, then requests handled strictly in arrival order.
type Dispatcher struct {
	engine      *chat.Engine
	limiter     Limiter
	history     HistoryLoader
	recorder    chat.Recorder
	metrics     *metrics.Metrics
	maxHistory  int
	sendTimeout time.Duration
	log         *slog.Logger
}

// NewDispatcher creates a Dispatcher. History limits and reply timeouts are
// taken from cfg.
func NewDispatcher(cfg *Config, engine *chat.Engine, limiter Limiter, history HistoryLoader,
	recorder chat.Recorder, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if recorder == nil {
		recorder = chat.NopRecorder{}
	}
	return &Dispatcher{
		engine:      engine,
		limiter:     limiter,
		history:     history,
		recorder:    recorder,
		metrics:     m,
		maxHistory:  cfg.MaxHistory,
		sendTimeout: cfg.SendTimeout,
		log:         log,
	}
}

// Serve runs the connection until the transport fails or ctx is done. The
// session created by the handshake is unregistered exactly once on the way
// out, even when handling panics.
func (d *Dispatcher) Serve(ctx context.Context, t Transport) {
	var session *chat.Session
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Panic in connection", "panic", r, "stack", string(debug.Stack()))
		}
		if session != nil {
			d.engine.Registry.UnregisterSession(session)
		}
		_ = t.Close()
	}()

	session, ok := d.handshake(ctx, t)
	if !ok {
		return
	}

	for {
		raw, err := t.Receive(ctx)
		if err != nil {
			return
		}
		d.handleFrame(ctx, t, session, raw)
	}
}

// handshake waits for the register frame. Anything else is answered with an
// error and ends the connection.
func (d *Dispatcher) handshake(ctx context.Context, t Transport) (*chat.Session, bool) {
	raw, err := t.Receive(ctx)
	if err != nil {
		return nil, false
	}

	req, err := protocol.Decode(raw)
	if err != nil {
		d.metrics.FrameReceived("invalid")
		d.fail(ctx, t, "", err)
		return nil, false
	}
	d.metrics.FrameReceived(req.Type())

	reg, ok := req.(protocol.Register)
	if !ok {
		d.fail(ctx, t, "", errRegisterFirst)
		return nil, false
	}

	session, err := d.engine.Registry.Register(reg.Username, t)
	if err != nil {
		d.fail(ctx, t, "", err)
		return nil, false
	}

	d.recorder.RecordUser(chat.UserRecord{
		ID:          session.ID,
		Identity:    session.Identity,
		ConnectedAt: session.ConnectedAt,
	})
	d.reply(ctx, t, protocol.TypeRegistered, protocol.RegisteredData{
		ID:          session.ID.String(),
		Username:    session.Identity,
		ConnectedAt: session.ConnectedAt,
	})
	return session, true
}

// handleFrame processes one frame. A panic is answered with the generic
// internal error and leaves the connection open.
func (d *Dispatcher) handleFrame(ctx context.Context, t Transport, s *chat.Session, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Panic while handling frame", "identity", s.Identity, "panic", r, "stack", string(debug.Stack()))
			d.metrics.ErrorSent(chat.KindInternal.String())
			d.send(ctx, t, protocol.EncodeError(internalErrorMessage))
		}
	}()

	req, err := protocol.Decode(raw)
	if err != nil {
		d.metrics.FrameReceived("invalid")
		d.fail(ctx, t, s.Identity, err)
		return
	}
	d.metrics.FrameReceived(req.Type())

	if err := d.handle(ctx, t, s, req); err != nil {
		d.fail(ctx, t, s.Identity, err)
	}
}

func (d *Dispatcher) handle(ctx context.Context, t Transport, s *chat.Session, req protocol.Request) error {
	switch req := req.(type) {
	case protocol.Register:
		return errAlreadyRegistered

	case protocol.Post:
		allowed, err := d.limiter.Allow(ctx, s.Identity)
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			d.metrics.RateLimited()
			return chat.ErrRateLimited
		}
		_, err = d.engine.Router.Route(ctx, req.Room, s.Identity, req.Content)
		return err

	case protocol.CreateRoom:
		info, err := d.engine.Directory.Create(req.Name, s.Identity)
		if err != nil {
			return err
		}
		d.recorder.RecordRoom(chat.RoomRecord{
			Name:      info.Name,
			CreatedBy: info.CreatedBy,
			CreatedAt: info.CreatedAt,
		})
		d.reply(ctx, t, protocol.TypeRoomCreated, info)

	case protocol.JoinRoom:
		info, err := d.engine.Directory.Join(req.Name, s.Identity)
		if err != nil {
			return err
		}
		d.reply(ctx, t, protocol.TypeRoomJoined, info)

	case protocol.LeaveRoom:
		if err := d.engine.Directory.Leave(req.Name, s.Identity); err != nil {
			return err
		}
		d.reply(ctx, t, protocol.TypeRoomLeft, protocol.RoomLeftData{Name: strings.TrimSpace(req.Name)})

	case protocol.ListRooms:
		d.reply(ctx, t, protocol.TypeRoomList, nonNil(d.engine.Directory.List()))

	case protocol.ListUsers:
		if strings.TrimSpace(req.Name) == "" {
			d.reply(ctx, t, protocol.TypeUserList, nonNil(d.engine.Registry.ListActive()))
			return nil
		}
		members, err := d.engine.Directory.Members(req.Name)
		if err != nil {
			return err
		}
		d.reply(ctx, t, protocol.TypeUserList, nonNil(members))

	case protocol.History:
		info, err := d.engine.Directory.Info(req.Name)
		if err != nil {
			return err
		}
		limit := d.maxHistory
		if req.Limit != nil {
			limit = min(*req.Limit, d.maxHistory)
		}
		messages, err := d.history.LoadRecentMessages(ctx, info.Name, limit)
		if err != nil {
			return fmt.Errorf("load history of %s: %w", info.Name, err)
		}
		d.reply(ctx, t, protocol.TypeHistory, nonNil(messages))

	default:
		return &protocol.UnknownTypeError{Type: req.Type()}
	}
	return nil
}

// fail answers err with an error frame. Internal errors are logged and
// replaced by a generic message.
func (d *Dispatcher) fail(ctx context.Context, t Transport, identity string, err error) {
	message, kind := describe(err)
	if kind == chat.KindInternal {
		d.log.Error("Request failed", "identity", identity, "error", err)
	} else {
		d.log.Debug("Request rejected", "identity", identity, "kind", kind, "error", err)
	}
	d.metrics.ErrorSent(kind.String())
	d.send(ctx, t, protocol.EncodeError(message))
}

// describe maps err to the message shown to the client and its kind.
func describe(err error) (string, chat.Kind) {
	var (
		unknown *protocol.UnknownTypeError
		field   *protocol.FieldError
	)
	switch {
	case errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrMissingType),
		errors.As(err, &unknown),
		errors.As(err, &field):
		return err.Error(), chat.KindValidation
	}

	kind := chat.KindOf(err)
	if kind == chat.KindInternal {
		return internalErrorMessage, kind
	}
	return err.Error(), kind
}

func (d *Dispatcher) reply(ctx context.Context, t Transport, typ string, data any) {
	payload, err := protocol.Encode(typ, data)
	if err != nil {
		d.log.Error("Failed to encode reply", "type", typ, "error", err)
		d.send(ctx, t, protocol.EncodeError(internalErrorMessage))
		return
	}
	d.send(ctx, t, payload)
}

func (d *Dispatcher) send(ctx context.Context, t Transport, payload []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
	defer cancel()
	if err := t.Send(ctx, payload); err != nil {
		d.log.Debug("Reply dropped", "error", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
