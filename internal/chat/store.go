//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is a chat message posted to a room.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserRecord is the durable trace of a registration.
type UserRecord struct {
	ID          uuid.UUID `json:"id"`
	Identity    string    `json:"username"`
	ConnectedAt time.Time `json:"connected_at"`
}

// RoomRecord is the durable part of a room; membership is never persisted.
type RoomRecord struct {
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users, rooms and message history.
type Store interface {
	SaveUser(ctx context.Context, user UserRecord) error
	SaveRoom(ctx context.Context, room RoomRecord) error
	SaveMessage(ctx context.Context, msg Message) error
	// LoadRecentMessages returns at most limit messages of room, oldest first.
	LoadRecentMessages(ctx context.Context, room string, limit int) ([]Message, error)
	LoadRooms(ctx context.Context) ([]RoomRecord, error)
}

// Recorder accepts records for best-effort persistence without blocking.
type Recorder interface {
	RecordUser(user UserRecord)
	RecordRoom(room RoomRecord)
	RecordMessage(msg Message)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordUser(UserRecord) {}
func (NopRecorder) RecordRoom(RoomRecord) {}
func (NopRecorder) RecordMessage(Message) {}
