package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformed reports a frame that is not a JSON object.
	ErrMalformed = errors.New("invalid JSON format")
	// ErrMissingType reports a frame without a type field.
	ErrMissingType = errors.New("missing message type")
)

// UnknownTypeError reports a well-formed frame of an unsupported type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return "unknown message type: " + e.Type
}

// FieldError reports a field that is missing or has the wrong shape.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// Request is a decoded client frame.
type Request interface {
	Type() string
}

// Register claims a username for the connection. It must be the first frame.
type Register struct {
	Username string `json:"username" validate:"required"`
}

// Post sends Content to every member of Room.
type Post struct {
	Room    string `json:"room" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// CreateRoom creates a room and joins the sender to it.
type CreateRoom struct {
	Name string `json:"name" validate:"required"`
}

// JoinRoom adds the sender to an existing room.
type JoinRoom struct {
	Name string `json:"name" validate:"required"`
}

// LeaveRoom removes the sender from a room.
type LeaveRoom struct {
	Name string `json:"name" validate:"required"`
}

// ListRooms lists the names of all rooms.
type ListRooms struct{}

// ListUsers lists the members of Name, or every online user when Name is empty.
type ListUsers struct {
	Name string `json:"name"`
}

// History asks for the latest messages of a room. A nil Limit means the
// server default.
type History struct {
	Name  string `json:"name" validate:"required"`
	Limit *int   `json:"limit" validate:"omitempty,min=1"`
}

func (Register) Type() string   { return TypeRegister }
func (Post) Type() string       { return TypeMessage }
func (CreateRoom) Type() string { return TypeCreateRoom }
func (JoinRoom) Type() string   { return TypeJoinRoom }
func (LeaveRoom) Type() string  { return TypeLeaveRoom }
func (ListRooms) Type() string  { return TypeListRooms }
func (ListUsers) Type() string  { return TypeListUsers }
func (History) Type() string    { return TypeHistory }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses and validates a client frame.
func Decode(raw []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrMalformed
	}
	rawType, ok := fields["type"]
	if !ok {
		return nil, ErrMissingType
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, &FieldError{Field: "type", Reason: "must be a string"}
	}

	switch typ {
	case TypeRegister:
		return decodeAs[Register](raw)
	case TypeMessage:
		return decodeAs[Post](raw)
	case TypeCreateRoom:
		return decodeAs[CreateRoom](raw)
	case TypeJoinRoom:
		return decodeAs[JoinRoom](raw)
	case TypeLeaveRoom:
		return decodeAs[LeaveRoom](raw)
	case TypeListRooms:
		return ListRooms{}, nil
	case TypeListUsers:
		return decodeAs[ListUsers](raw)
	case TypeHistory:
		return decodeAs[History](raw)
	case "":
		return nil, ErrMissingType
	default:
		return nil, &UnknownTypeError{Type: typ}
	}
}

func decodeAs[T Request](raw []byte) (Request, error) {
	var req T
	if err := json.Unmarshal(raw, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &FieldError{Field: typeErr.Field, Reason: "expected " + jsonKind(typeErr.Type)}
		}
		return nil, ErrMalformed
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &FieldError{Field: verrs[0].Field(), Reason: reason(verrs[0])}
		}
		return nil, err
	}
	return req, nil
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Bool:
		return "boolean"
	default:
		return t.Kind().String()
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
