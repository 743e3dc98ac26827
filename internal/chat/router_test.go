package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/mocks"
)

type routedFrame struct {
	Type string       `json:"type"`
	Data chat.Message `json:"data"`
}

func decodeRouted(t *testing.T, payload []byte) chat.Message {
	t.Helper()
	var f routedFrame
	require.NoError(t, json.Unmarshal(payload, &f))
	require.Equal(t, "message", f.Type)
	return f.Data
}

type observerFunc func(chat.DeliveryReport)

func (f observerFunc) ObserveDelivery(r chat.DeliveryReport) { f(r) }

// TestRouter_Route covers the lobby walkthrough: alice creates lobby, bob
// joins, and a message from alice reaches both of them.
func TestRouter_Route(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)

	var reports []chat.DeliveryReport
	e := chat.NewEngine(chat.DefaultLimits(), discardLogger(),
		chat.WithRecorder(recorder),
		chat.WithObserver(observerFunc(func(r chat.DeliveryReport) { reports = append(reports, r) })),
	)

	alice, bob := mocks.NewMockConn(ctrl), mocks.NewMockConn(ctrl)
	_, err := e.Registry.Register("alice", alice)
	req.NoError(err)
	_, err = e.Registry.Register("bob", bob)
	req.NoError(err)
	_, err = e.Directory.Create("lobby", "alice")
	req.NoError(err)
	_, err = e.Directory.Join("lobby", "bob")
	req.NoError(err)

	var toAlice, toBob []byte
	alice.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, p []byte) error {
		_, hasDeadline := ctx.Deadline()
		req.True(hasDeadline)
		toAlice = p
		return nil
	})
	bob.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p []byte) error {
		toBob = p
		return nil
	})
	recorder.EXPECT().RecordMessage(gomock.Any()).Do(func(msg chat.Message) {
		req.Equal("hi", msg.Content)
	})

	report, err := e.Router.Route(context.Background(), "lobby", "alice", "hi")

	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, report.Delivered)
	req.Empty(report.Failed)
	req.Equal(2, report.Recipients())
	req.Len(reports, 1)

	msg := decodeRouted(t, toBob)
	req.Equal("lobby", msg.Room)
	req.Equal("alice", msg.Sender)
	req.Equal("hi", msg.Content)
	req.Equal(report.Message.ID, msg.ID)
	req.WithinDuration(time.Now(), msg.Timestamp, time.Minute)
	req.Equal(toBob, toAlice)
}

// TestRouter_PartialFailure verifies that a failing recipient neither stops
// delivery to the others nor fails the route.
func TestRouter_PartialFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	e := chat.NewEngine(chat.DefaultLimits(), discardLogger())

	conns := map[string]*mocks.MockConn{}
	for _, id := range []string{"anna", "bert", "cora"} {
		conns[id] = mocks.NewMockConn(ctrl)
		_, err := e.Registry.Register(id, conns[id])
		req.NoError(err)
	}
	_, err := e.Directory.Create("room", "anna")
	req.NoError(err)
	for _, id := range []string{"bert", "cora"} {
		_, err = e.Directory.Join("room", id)
		req.NoError(err)
	}

	conns["anna"].EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
	conns["bert"].EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("broken pipe"))
	conns["cora"].EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	report, err := e.Router.Route(context.Background(), "room", "anna", "hello")

	req.NoError(err)
	req.Equal([]string{"anna", "cora"}, report.Delivered)
	req.Equal([]string{"bert"}, report.Failed)
}

// TestRouter_SendTimeout verifies that a stuck recipient is given up on
// after the send timeout.
func TestRouter_SendTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	e := chat.NewEngine(chat.DefaultLimits(), discardLogger(),
		chat.WithSendTimeout(20*time.Millisecond),
		chat.WithEchoToSender(false),
	)

	sender, stuck := mocks.NewMockConn(ctrl), mocks.NewMockConn(ctrl)
	_, err := e.Registry.Register("sender", sender)
	req.NoError(err)
	_, err = e.Registry.Register("stuck", stuck)
	req.NoError(err)
	_, err = e.Directory.Create("room", "sender")
	req.NoError(err)
	_, err = e.Directory.Join("room", "stuck")
	req.NoError(err)

	stuck.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	report, err := e.Router.Route(context.Background(), "room", "sender", "anyone?")

	req.NoError(err)
	req.Equal([]string{"stuck"}, report.Failed)
	req.Empty(report.Delivered)
	req.Less(time.Since(start), 2*time.Second)
}

// TestRouter_Errors verifies the rejections that happen before any send.
func TestRouter_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := chat.NewEngine(chat.DefaultLimits(), discardLogger())
	for _, id := range []string{"alice", "bob"} {
		_, err := e.Registry.Register(id, mocks.NewMockConn(ctrl))
		require.NoError(t, err)
	}
	_, err := e.Directory.Create("lobby", "alice")
	require.NoError(t, err)

	tests := []struct {
		name    string
		room    string
		sender  string
		content string
		want    error
	}{
		{"non-member", "lobby", "bob", "hi", chat.ErrNotMember},
		{"unknown room", "nowhere", "alice", "hi", chat.ErrRoomNotFound},
		{"empty content", "lobby", "alice", "   ", chat.ErrInvalidMessage},
		{"oversized content", "lobby", "alice", strings.Repeat("x", 501), chat.ErrInvalidMessage},
		{"control characters", "lobby", "alice", "bell\x07", chat.ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run("should reject "+tt.name, func(t *testing.T) {
			_, err := e.Router.Route(context.Background(), tt.room, tt.sender, tt.content)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("should accept content at the limit", func(t *testing.T) {
		accept := mocks.NewMockConn(ctrl)
		accept.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
		_, err := e.Registry.Register("carol", accept)
		require.NoError(t, err)
		_, err = e.Directory.Create("solo", "carol")
		require.NoError(t, err)

		report, err := e.Router.Route(context.Background(), "solo", "carol", strings.Repeat("é", 500))

		require.NoError(t, err)
		require.Equal(t, []string{"carol"}, report.Delivered)
	})
}

// TestRouter_SenderDisconnectDoesNotCancel verifies that deliveries carry on
// when the sender's context is already cancelled.
func TestRouter_SenderDisconnectDoesNotCancel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	e := chat.NewEngine(chat.DefaultLimits(), discardLogger(), chat.WithEchoToSender(false))

	_, err := e.Registry.Register("alice", mocks.NewMockConn(ctrl))
	req.NoError(err)
	bob := mocks.NewMockConn(ctrl)
	_, err = e.Registry.Register("bob", bob)
	req.NoError(err)
	_, err = e.Directory.Create("lobby", "alice")
	req.NoError(err)
	_, err = e.Directory.Join("lobby", "bob")
	req.NoError(err)

	bob.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ []byte) error {
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := e.Router.Route(ctx, "lobby", "alice", "bye")

	req.NoError(err)
	req.Equal([]string{"bob"}, report.Delivered)
}

// TestRouter_ReRegisteredMemberIsSkipped verifies that a member who
// reconnects under the same identity while a message is routed does not
// receive it, since the new session never joined the room.
func TestRouter_ReRegisteredMemberIsSkipped(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	e := chat.NewEngine(chat.DefaultLimits(), discardLogger())

	aaa, zed, newZed := mocks.NewMockConn(ctrl), mocks.NewMockConn(ctrl), mocks.NewMockConn(ctrl)
	_, err := e.Registry.Register("aaa", aaa)
	req.NoError(err)
	_, err = e.Registry.Register("zed", zed)
	req.NoError(err)
	_, err = e.Directory.Create("secret", "aaa")
	req.NoError(err)
	_, err = e.Directory.Join("secret", "zed")
	req.NoError(err)

	// newZed and the old zed expect no sends; gomock fails the test on any call.
	aaa.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, []byte) error {
		req.True(e.Registry.Unregister("zed"))
		_, err := e.Registry.Register("zed", newZed)
		req.NoError(err)
		return nil
	})

	report, err := e.Router.Route(context.Background(), "secret", "aaa", "for members only")

	req.NoError(err)
	req.Equal([]string{"aaa"}, report.Delivered)
	req.Equal([]string{"zed"}, report.Skipped)
	req.Empty(report.Failed)

	members, err := e.Directory.Members("secret")
	req.NoError(err)
	req.Equal([]string{"aaa"}, members)
}
