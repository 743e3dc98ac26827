package chat

import "errors"

// Kind classifies an error by how the connection dispatcher reports it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a user-facing failure. Its message is safe to send to clients.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

var (
	ErrInvalidIdentity   = &Error{Kind: KindValidation, Msg: "invalid username"}
	ErrInvalidRoomName   = &Error{Kind: KindValidation, Msg: "invalid room name"}
	ErrInvalidMessage    = &Error{Kind: KindValidation, Msg: "invalid message"}
	ErrDuplicateIdentity = &Error{Kind: KindConflict, Msg: "username already in use"}
	ErrRoomExists        = &Error{Kind: KindConflict, Msg: "room already exists"}
	ErrRoomFull          = &Error{Kind: KindConflict, Msg: "room is full"}
	ErrRoomQuota         = &Error{Kind: KindConflict, Msg: "too many rooms joined"}
	ErrRoomNotFound      = &Error{Kind: KindNotFound, Msg: "room not found"}
	ErrNotMember         = &Error{Kind: KindNotFound, Msg: "not a member of room"}
	ErrSessionNotFound   = &Error{Kind: KindNotFound, Msg: "user not connected"}
	ErrRateLimited       = &Error{Kind: KindRateLimited, Msg: "rate limit exceeded"}
)

// KindOf reports the Kind of err. Errors that do not wrap an *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
