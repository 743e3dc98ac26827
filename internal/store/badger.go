// Package store persists users, rooms and message history in BadgerDB.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const (
	userPrefix = "user:"
	roomPrefix = "room:"
	msgPrefix  = "msg:"
)

// Badger is a chat.Store backed by BadgerDB.
type Badger struct {
	db  *badger.DB
	log *slog.Logger
}

var _ chat.Store = (*Badger)(nil)

// Open opens the database at path. An empty path keeps everything in memory.
func Open(path string, log *slog.Logger) (*Badger, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(badgerLogger{log: log.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	log.Info("Store opened", "path", path, "in_memory", path == "")
	return &Badger{db: db, log: log}, nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	b.log.Info("Closing store")
	return b.db.Close()
}

// SaveUser stores the latest registration of a user.
func (b *Badger) SaveUser(_ context.Context, user chat.UserRecord) error {
	return b.put(userPrefix+user.Identity, user)
}

// SaveRoom stores a room record.
func (b *Badger) SaveRoom(_ context.Context, room chat.RoomRecord) error {
	return b.put(roomPrefix+room.Name, room)
}

// SaveMessage stores a message. Keys are laid out as
// "msg:{base64 room}:{19-digit unix nanos}:{uuid}" so a prefix scan walks a
// room's history in time order; the uuid keeps same-instant messages apart.
func (b *Badger) SaveMessage(_ context.Context, msg chat.Message) error {
	key := fmt.Sprintf("%s%019d:%s", roomMessagesPrefix(msg.Room), msg.Timestamp.UnixNano(), msg.ID)
	return b.put(key, msg)
}

// LoadRecentMessages returns the last limit messages of room, oldest first.
func (b *Badger) LoadRecentMessages(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	messages := make([]chat.Message, 0, max(limit, 0))
	if limit <= 0 {
		return messages, nil
	}

	prefix := []byte(roomMessagesPrefix(room))
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		for it.Seek(append(slices.Clone(prefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var msg chat.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// LoadRooms returns every stored room record ordered by name.
func (b *Badger) LoadRooms(ctx context.Context) ([]chat.RoomRecord, error) {
	var rooms []chat.RoomRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(roomPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var room chat.RoomRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &room)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	return rooms, err
}

func (b *Badger) put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// roomMessagesPrefix encodes the room name so names containing ':' cannot
// collide with another room's prefix.
func roomMessagesPrefix(room string) string {
	return msgPrefix + base64.RawURLEncoding.EncodeToString([]byte(room)) + ":"
}

// badgerLogger routes badger's printf-style logging to slog. Badger's info
// output is compaction chatter, so it is logged at debug level.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
