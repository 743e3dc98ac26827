package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/mocks"
	"github.com/Tyrowin/roomchat/internal/ratelimit"
	"github.com/Tyrowin/roomchat/internal/store"
)

// fakeTransport feeds scripted frames to the dispatcher and captures its
// replies.
type fakeTransport struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, payload []byte) error {
	select {
	case <-f.closed:
		return ErrClientClosed
	default:
	}
	select {
	case f.out <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Receive(context.Context) ([]byte, error) {
	select {
	case raw, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return raw, nil
	case <-f.closed:
		return nil, ErrClientClosed
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type reply struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type dispatcherHarness struct {
	t          *testing.T
	cfg        *Config
	engine     *chat.Engine
	db         *store.Badger
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, limiter Limiter, history HistoryLoader) *dispatcherHarness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := NewConfig()
	cfg.SendTimeout = time.Second

	db, err := store.Open("", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if limiter == nil {
		limiter = ratelimit.New(cfg.RateLimit, cfg.Window())
	}
	if history == nil {
		history = db
	}
	engine := chat.NewEngine(cfg.Limits(), log)
	return &dispatcherHarness{
		t:          t,
		cfg:        cfg,
		engine:     engine,
		db:         db,
		dispatcher: NewDispatcher(cfg, engine, limiter, history, chat.NopRecorder{}, metrics.New(), log),
	}
}

// connect starts serving a new transport and returns it with a channel
// closed when Serve returns.
func (h *dispatcherHarness) connect() (*fakeTransport, <-chan struct{}) {
	tr := newFakeTransport()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.dispatcher.Serve(context.Background(), tr)
	}()
	return tr, done
}

// login connects and registers identity.
func (h *dispatcherHarness) login(identity string) (*fakeTransport, <-chan struct{}) {
	tr, done := h.connect()
	send(h.t, tr, map[string]any{"type": "register", "username": identity})
	r := next(h.t, tr)
	require.Equal(h.t, "registered", r.Type, r.Message)
	return tr, done
}

func send(t *testing.T, tr *fakeTransport, frame any) {
	t.Helper()
	raw, ok := frame.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(frame)
		require.NoError(t, err)
	}
	select {
	case tr.in <- raw:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not read the frame")
	}
}

func next(t *testing.T, tr *fakeTransport) reply {
	t.Helper()
	select {
	case payload := <-tr.out:
		var r reply
		require.NoError(t, json.Unmarshal(payload, &r))
		return r
	case <-time.After(time.Second):
		t.Fatal("no reply from dispatcher")
		return reply{}
	}
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection was not closed")
	}
}

// TestDispatcher_Handshake verifies that only a valid register frame opens
// a session.
func TestDispatcher_Handshake(t *testing.T) {
	tests := []struct {
		name    string
		frame   any
		message string
	}{
		{"malformed JSON", []byte("{nope"), "invalid JSON format"},
		{"another type first", map[string]any{"type": "list_rooms"}, "must register first"},
		{"missing username", map[string]any{"type": "register"}, `invalid field "username": is required`},
		{"invalid username", map[string]any{"type": "register", "username": "a b"}, "invalid username: must be 3-30 characters without spaces"},
	}
	for _, tt := range tests {
		t.Run("should close after "+tt.name, func(t *testing.T) {
			req := require.New(t)
			h := newHarness(t, nil, nil)
			tr, done := h.connect()

			send(t, tr, tt.frame)
			r := next(t, tr)

			req.Equal("error", r.Type)
			req.Equal(tt.message, r.Message)
			waitClosed(t, done)
			req.Zero(h.engine.Registry.Count())
		})
	}

	t.Run("should reject a duplicate username and keep the first session", func(t *testing.T) {
		req := require.New(t)
		h := newHarness(t, nil, nil)
		_, _ = h.login("alice")
		tr, done := h.connect()

		send(t, tr, map[string]any{"type": "register", "username": "alice"})
		r := next(t, tr)

		req.Equal("error", r.Type)
		req.Equal("username already in use", r.Message)
		waitClosed(t, done)
		req.Equal([]string{"alice"}, h.engine.Registry.ListActive())
	})

	t.Run("should answer with the session details", func(t *testing.T) {
		req := require.New(t)
		h := newHarness(t, nil, nil)
		tr, _ := h.connect()

		send(t, tr, map[string]any{"type": "register", "username": "  alice "})
		r := next(t, tr)

		req.Equal("registered", r.Type)
		var data struct {
			ID          string    `json:"id"`
			Username    string    `json:"username"`
			ConnectedAt time.Time `json:"connected_at"`
		}
		req.NoError(json.Unmarshal(r.Data, &data))
		req.Equal("alice", data.Username)
		_, err := uuid.Parse(data.ID)
		req.NoError(err)
		req.False(data.ConnectedAt.IsZero())
	})
}

// TestDispatcher_LobbyScenario walks alice and bob through a shared room.
func TestDispatcher_LobbyScenario(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, nil, nil)
	alice, _ := h.login("alice")
	bob, bobDone := h.login("bob")

	send(t, alice, map[string]any{"type": "create_room", "name": "lobby"})
	r := next(t, alice)
	req.Equal("room_created", r.Type)
	var info chat.RoomInfo
	req.NoError(json.Unmarshal(r.Data, &info))
	req.Equal("lobby", info.Name)
	req.Equal("alice", info.CreatedBy)
	req.Equal([]string{"alice"}, info.Members)

	send(t, bob, map[string]any{"type": "join_room", "name": "lobby"})
	r = next(t, bob)
	req.Equal("room_joined", r.Type)
	req.NoError(json.Unmarshal(r.Data, &info))
	req.Equal([]string{"alice", "bob"}, info.Members)

	send(t, alice, map[string]any{"type": "message", "room": "lobby", "content": "hello"})
	for _, tr := range []*fakeTransport{alice, bob} {
		r = next(t, tr)
		req.Equal("message", r.Type)
		var msg chat.Message
		req.NoError(json.Unmarshal(r.Data, &msg))
		req.Equal("alice", msg.Sender)
		req.Equal("lobby", msg.Room)
		req.Equal("hello", msg.Content)
	}

	send(t, bob, map[string]any{"type": "list_users", "name": "lobby"})
	r = next(t, bob)
	req.Equal("user_list", r.Type)
	req.JSONEq(`["alice","bob"]`, string(r.Data))

	send(t, bob, map[string]any{"type": "list_rooms"})
	r = next(t, bob)
	req.Equal("room_list", r.Type)
	req.JSONEq(`["lobby"]`, string(r.Data))

	close(bob.in)
	waitClosed(t, bobDone)

	req.Eventually(func() bool {
		members, err := h.engine.Directory.Members("lobby")
		return err == nil && len(members) == 1 && members[0] == "alice"
	}, time.Second, 5*time.Millisecond)
	req.Equal([]string{"alice"}, h.engine.Registry.ListActive())
}

// TestDispatcher_ActiveErrors verifies that request errors are reported and
// leave the connection open.
func TestDispatcher_ActiveErrors(t *testing.T) {
	h := newHarness(t, nil, nil)
	alice, done := h.login("alice")
	_, _ = h.login("bob")
	send(t, alice, map[string]any{"type": "create_room", "name": "lobby"})
	require.Equal(t, "room_created", next(t, alice).Type)

	tests := []struct {
		name    string
		frame   any
		message string
	}{
		{"malformed JSON", []byte("][ "), "invalid JSON format"},
		{"unknown type", map[string]any{"type": "shout"}, "unknown message type: shout"},
		{"missing type", map[string]any{"name": "lobby"}, "missing message type"},
		{"second register", map[string]any{"type": "register", "username": "alice2"}, "already registered"},
		{"wrong field type", map[string]any{"type": "join_room", "name": 12}, `invalid field "name": expected string`},
		{"unknown room", map[string]any{"type": "join_room", "name": "nowhere"}, "room not found: nowhere"},
		{"duplicate room", map[string]any{"type": "create_room", "name": "lobby"}, "room already exists: lobby"},
		{"message to unknown room", map[string]any{"type": "message", "room": "nowhere", "content": "hi"}, "room not found: nowhere"},
		{"empty message", map[string]any{"type": "message", "room": "lobby", "content": "  "}, "invalid message: content is empty"},
		{"history of unknown room", map[string]any{"type": "history", "name": "nowhere"}, "room not found: nowhere"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, alice, tt.frame)
			r := next(t, alice)
			require.Equal(t, "error", r.Type)
			require.Equal(t, tt.message, r.Message)
		})
	}

	t.Run("leave by a non-member", func(t *testing.T) {
		carol, _ := h.connect()
		send(t, carol, map[string]any{"type": "register", "username": "carol"})
		require.Equal(t, "registered", next(t, carol).Type)

		send(t, carol, map[string]any{"type": "leave_room", "name": "lobby"})
		r := next(t, carol)

		require.Equal(t, "error", r.Type)
		require.Equal(t, "not a member of room: lobby", r.Message)
	})

	t.Run("connection stays open", func(t *testing.T) {
		select {
		case <-done:
			t.Fatal("connection closed after a request error")
		default:
		}
		send(t, alice, map[string]any{"type": "leave_room", "name": "lobby"})
		r := next(t, alice)
		require.Equal(t, "room_left", r.Type)
		require.JSONEq(t, `{"name":"lobby"}`, string(r.Data))
	})
}

// TestDispatcher_RateLimit verifies that the sixth message inside the window
// is refused.
func TestDispatcher_RateLimit(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, ratelimit.New(5, time.Hour), nil)
	alice, _ := h.login("alice")
	send(t, alice, map[string]any{"type": "create_room", "name": "lobby"})
	req.Equal("room_created", next(t, alice).Type)

	for i := 0; i < 5; i++ {
		send(t, alice, map[string]any{"type": "message", "room": "lobby", "content": "spam"})
		req.Equal("message", next(t, alice).Type, "message %d", i+1)
	}
	send(t, alice, map[string]any{"type": "message", "room": "lobby", "content": "spam"})
	r := next(t, alice)

	req.Equal("error", r.Type)
	req.Equal("rate limit exceeded", r.Message)

	// Other requests are not limited.
	send(t, alice, map[string]any{"type": "list_rooms"})
	req.Equal("room_list", next(t, alice).Type)
}

// TestDispatcher_ListUsers verifies that list_users without a room lists
// every online user.
func TestDispatcher_ListUsers(t *testing.T) {
	h := newHarness(t, nil, nil)
	alice, _ := h.login("alice")
	_, _ = h.login("bob")

	send(t, alice, map[string]any{"type": "list_users"})
	r := next(t, alice)

	require.Equal(t, "user_list", r.Type)
	require.JSONEq(t, `["alice","bob"]`, string(r.Data))

	send(t, alice, map[string]any{"type": "list_rooms"})
	r = next(t, alice)
	require.JSONEq(t, `[]`, string(r.Data))
}

// TestDispatcher_History verifies history replies and limit clamping.
func TestDispatcher_History(t *testing.T) {
	t.Run("should return stored messages oldest first", func(t *testing.T) {
		req := require.New(t)
		h := newHarness(t, nil, nil)
		alice, _ := h.login("alice")
		send(t, alice, map[string]any{"type": "create_room", "name": "lobby"})
		req.Equal("room_created", next(t, alice).Type)

		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, content := range []string{"one", "two", "three"} {
			req.NoError(h.db.SaveMessage(context.Background(), chat.Message{
				ID: uuid.New(), Room: "lobby", Sender: "alice", Content: content,
				Timestamp: base.Add(time.Duration(i) * time.Second),
			}))
		}

		send(t, alice, map[string]any{"type": "history", "name": "lobby", "limit": 2})
		r := next(t, alice)

		req.Equal("history", r.Type)
		var messages []chat.Message
		req.NoError(json.Unmarshal(r.Data, &messages))
		req.Len(messages, 2)
		req.Equal("two", messages[0].Content)
		req.Equal("three", messages[1].Content)
	})

	t.Run("should clamp the limit and answer an empty list", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		history := mocks.NewMockStore(ctrl)
		h := newHarness(t, nil, history)
		alice, _ := h.login("alice")
		send(t, alice, map[string]any{"type": "create_room", "name": "lobby"})
		req.Equal("room_created", next(t, alice).Type)

		history.EXPECT().LoadRecentMessages(gomock.Any(), "lobby", h.cfg.MaxHistory).Return(nil, nil).Times(2)

		send(t, alice, map[string]any{"type": "history", "name": "lobby", "limit": 10000})
		r := next(t, alice)
		req.Equal("history", r.Type)
		req.JSONEq(`[]`, string(r.Data))

		send(t, alice, map[string]any{"type": "history", "name": "lobby"})
		req.Equal("history", next(t, alice).Type)
	})

	t.Run("should hide store failures", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		history := mocks.NewMockStore(ctrl)
		h := newHarness(t, nil, history)
		alice, _ := h.login("alice")
		send(t, alice, map[string]any{"type": "create_room", "name": "lobby"})
		req.Equal("room_created", next(t, alice).Type)

		history.EXPECT().LoadRecentMessages(gomock.Any(), "lobby", gomock.Any()).
			Return(nil, errors.New("value log truncated"))

		send(t, alice, map[string]any{"type": "history", "name": "lobby"})
		r := next(t, alice)

		req.Equal("error", r.Type)
		req.Equal("internal server error", r.Message)
	})
}

type panickingLimiter struct{}

func (panickingLimiter) Allow(context.Context, string) (bool, error) {
	panic("limiter exploded")
}

// TestDispatcher_PanicRecovery verifies that a panic while handling one
// frame is answered with the generic error and the connection survives.
func TestDispatcher_PanicRecovery(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, panickingLimiter{}, nil)
	alice, done := h.login("alice")
	send(t, alice, map[string]any{"type": "create_room", "name": "lobby"})
	req.Equal("room_created", next(t, alice).Type)

	send(t, alice, map[string]any{"type": "message", "room": "lobby", "content": "boom"})
	r := next(t, alice)
	req.Equal("error", r.Type)
	req.Equal("internal server error", r.Message)

	send(t, alice, map[string]any{"type": "list_rooms"})
	req.Equal("room_list", next(t, alice).Type)

	close(alice.in)
	waitClosed(t, done)
	req.Zero(h.engine.Registry.Count())
}

// TestDispatcher_RecordsRoomsAndUsers verifies that registrations and new
// rooms are handed to the recorder.
func TestDispatcher_RecordsRoomsAndUsers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := NewConfig()
	engine := chat.NewEngine(cfg.Limits(), log)
	d := NewDispatcher(cfg, engine, ratelimit.New(5, time.Minute), nil, recorder, metrics.New(), log)

	recorder.EXPECT().RecordUser(gomock.Any()).Do(func(u chat.UserRecord) {
		req.Equal("alice", u.Identity)
	})
	recorder.EXPECT().RecordRoom(gomock.Any()).Do(func(r chat.RoomRecord) {
		req.Equal("lobby", r.Name)
		req.Equal("alice", r.CreatedBy)
	})

	tr := newFakeTransport()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Serve(context.Background(), tr)
	}()

	send(t, tr, map[string]any{"type": "register", "username": "alice"})
	req.Equal("registered", next(t, tr).Type)
	send(t, tr, map[string]any{"type": "create_room", "name": "lobby"})
	req.Equal("room_created", next(t, tr).Type)
	close(tr.in)
	waitClosed(t, done)
}
