package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 5 * time.Second
)

// job carries exactly one record.
type job struct {
	user *chat.UserRecord
	room *chat.RoomRecord
	msg  *chat.Message
}

// Archiver hands records to a Store from a single background worker.
// Record calls never block: when the queue is full the record is dropped.
type Archiver struct {
	store        chat.Store
	queue        chan job
	writeTimeout time.Duration
	dropped      atomic.Int64
	written      atomic.Int64
	log          *slog.Logger
}

var _ chat.Recorder = (*Archiver)(nil)

// NewArchiver creates an Archiver with room for queueSize pending records.
func NewArchiver(store chat.Store, queueSize int, log *slog.Logger) *Archiver {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Archiver{
		store:        store,
		queue:        make(chan job, queueSize),
		writeTimeout: defaultWriteTimeout,
		log:          log,
	}
}

func (a *Archiver) RecordUser(user chat.UserRecord) { a.enqueue(job{user: &user}) }
func (a *Archiver) RecordRoom(room chat.RoomRecord) { a.enqueue(job{room: &room}) }
func (a *Archiver) RecordMessage(msg chat.Message)  { a.enqueue(job{msg: &msg}) }

// Dropped returns how many records were discarded because the queue was full.
func (a *Archiver) Dropped() int64 {
	return a.dropped.Load()
}

// Written returns how many records reached the store.
func (a *Archiver) Written() int64 {
	return a.written.Load()
}

func (a *Archiver) enqueue(j job) {
	select {
	case a.queue <- j:
	default:
		a.dropped.Add(1)
		a.log.Warn("Archive queue full, dropping record", "dropped", a.dropped.Load())
	}
}

// Run writes queued records until ctx is done, then drains what is left.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return nil
		case j := <-a.queue:
			a.write(j)
		}
	}
}

func (a *Archiver) drain() {
	for {
		select {
		case j := <-a.queue:
			a.write(j)
		default:
			return
		}
	}
}

func (a *Archiver) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()

	var err error
	switch {
	case j.user != nil:
		err = a.store.SaveUser(ctx, *j.user)
	case j.room != nil:
		err = a.store.SaveRoom(ctx, *j.room)
	case j.msg != nil:
		err = a.store.SaveMessage(ctx, *j.msg)
	}
	if err != nil {
		a.log.Error("Failed to persist record", "error", err)
		return
	}
	a.written.Add(1)
}
