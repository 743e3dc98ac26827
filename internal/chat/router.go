package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

const defaultSendTimeout = 5 * time.Second

// DeliveryReport describes what happened to each recipient of a message.
type DeliveryReport struct {
	Message   Message
	Delivered []string
	Failed    []string
	// Skipped lists members whose session ended before delivery.
	Skipped []string
}

// Recipients returns the number of recipients a send was attempted for.
func (r DeliveryReport) Recipients() int {
	return len(r.Delivered) + len(r.Failed)
}

// DeliveryObserver is notified after every routed message.
type DeliveryObserver interface {
	ObserveDelivery(report DeliveryReport)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithSendTimeout bounds each recipient send.
func WithSendTimeout(d time.Duration) RouterOption {
	return func(rt *Router) {
		if d > 0 {
			rt.sendTimeout = d
		}
	}
}

// WithEchoToSender controls whether the sender receives its own messages.
func WithEchoToSender(echo bool) RouterOption {
	return func(rt *Router) { rt.echo = echo }
}

// WithRecorder sets where routed messages are handed for persistence.
func WithRecorder(rec Recorder) RouterOption {
	return func(rt *Router) {
		if rec != nil {
			rt.recorder = rec
		}
	}
}

// WithObserver sets the delivery observer.
func WithObserver(o DeliveryObserver) RouterOption {
	return func(rt *Router) { rt.observer = o }
}

// Router delivers room messages to the live sessions of the room's members.
type Router struct {
	directory   *Directory
	registry    *Registry
	limits      Limits
	sendTimeout time.Duration
	echo        bool
	recorder    Recorder
	observer    DeliveryObserver
	log         *slog.Logger
	now         func() time.Time
}

// NewRouter creates a Router. By default the sender receives its own
// messages and nothing is persisted.
func NewRouter(directory *Directory, registry *Registry, limits Limits, log *slog.Logger, opts ...RouterOption) *Router {
	rt := &Router{
		directory:   directory,
		registry:    registry,
		limits:      limits.sanitize(),
		sendTimeout: defaultSendTimeout,
		echo:        true,
		recorder:    NopRecorder{},
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Route posts content from sender to the room. Only members may post.
// A failed send to one recipient never stops delivery to the others.
func (rt *Router) Route(ctx context.Context, roomName, sender, content string) (DeliveryReport, error) {
	if err := rt.limits.ValidateContent(content); err != nil {
		return DeliveryReport{}, err
	}
	info, members, err := rt.directory.Roster(roomName)
	if err != nil {
		return DeliveryReport{}, err
	}
	if !slices.Contains(info.Members, sender) {
		return DeliveryReport{}, fmt.Errorf("%w: %s", ErrNotMember, info.Name)
	}

	msg := Message{
		ID:        uuid.New(),
		Room:      info.Name,
		Sender:    sender,
		Content:   content,
		Timestamp: rt.now().UTC(),
	}
	payload, err := protocol.Encode(protocol.TypeMessage, msg)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("encode message: %w", err)
	}

	// Deliveries must outlive a sender that disconnects mid-route.
	sendCtx := context.WithoutCancel(ctx)

	report := DeliveryReport{Message: msg}
	for _, member := range members {
		identity := member.Identity
		if identity == sender && !rt.echo {
			continue
		}
		// A session that re-registered the identity never joined this room.
		session, ok := rt.registry.Lookup(identity)
		if !ok || session.ID != member.Session {
			report.Skipped = append(report.Skipped, identity)
			continue
		}
		if err := rt.send(sendCtx, session, payload); err != nil {
			rt.log.Warn("Delivery failed", "room", msg.Room, "recipient", identity, "message", msg.ID, "error", err)
			report.Failed = append(report.Failed, identity)
			continue
		}
		report.Delivered = append(report.Delivered, identity)
	}

	rt.recorder.RecordMessage(msg)
	if rt.observer != nil {
		rt.observer.ObserveDelivery(report)
	}
	rt.log.Debug("Message routed", "room", msg.Room, "sender", sender,
		"delivered", len(report.Delivered), "failed", len(report.Failed), "skipped", len(report.Skipped))
	return report, nil
}

func (rt *Router) send(ctx context.Context, s *Session, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, rt.sendTimeout)
	defer cancel()
	return s.Conn().Send(ctx, payload)
}
