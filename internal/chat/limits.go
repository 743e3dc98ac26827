package chat

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Limits bounds identities, rooms and messages.
type Limits struct {
	MinUsernameLength int
	MaxUsernameLength int
	MaxRoomNameLength int
	MaxMessageLength  int
	MaxRoomsPerUser   int
	MaxUsersPerRoom   int
}

// DefaultLimits returns the limits the service ships with.
func DefaultLimits() Limits {
	return Limits{
		MinUsernameLength: 3,
		MaxUsernameLength: 30,
		MaxRoomNameLength: 50,
		MaxMessageLength:  500,
		MaxRoomsPerUser:   10,
		MaxUsersPerRoom:   50,
	}
}

func (l Limits) sanitize() Limits {
	d := DefaultLimits()
	if l.MinUsernameLength <= 0 {
		l.MinUsernameLength = d.MinUsernameLength
	}
	if l.MaxUsernameLength < l.MinUsernameLength {
		l.MaxUsernameLength = max(d.MaxUsernameLength, l.MinUsernameLength)
	}
	if l.MaxRoomNameLength <= 0 {
		l.MaxRoomNameLength = d.MaxRoomNameLength
	}
	if l.MaxMessageLength <= 0 {
		l.MaxMessageLength = d.MaxMessageLength
	}
	if l.MaxRoomsPerUser <= 0 {
		l.MaxRoomsPerUser = d.MaxRoomsPerUser
	}
	if l.MaxUsersPerRoom <= 0 {
		l.MaxUsersPerRoom = d.MaxUsersPerRoom
	}
	return l
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// min/max already count runes; these rules cover the charset.
	_ = v.RegisterValidation("nospace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), func(r rune) bool {
			return unicode.IsSpace(r) || !unicode.IsPrint(r)
		})
	})
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
	})
	_ = v.RegisterValidation("printable", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), func(r rune) bool {
			return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
		})
	})
	return v
}

// NormalizeIdentity trims identity and checks it against the username rules.
func (l Limits) NormalizeIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	rule := fmt.Sprintf("required,min=%d,max=%d,nospace", l.MinUsernameLength, l.MaxUsernameLength)
	if err := validate.Var(identity, rule); err != nil {
		return "", fmt.Errorf("%w: must be %d-%d characters without spaces",
			ErrInvalidIdentity, l.MinUsernameLength, l.MaxUsernameLength)
	}
	return identity, nil
}

// NormalizeRoomName trims name and checks it against the room name rules.
func (l Limits) NormalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	rule := fmt.Sprintf("required,max=%d,singleline", l.MaxRoomNameLength)
	if err := validate.Var(name, rule); err != nil {
		return "", fmt.Errorf("%w: must be 1-%d characters", ErrInvalidRoomName, l.MaxRoomNameLength)
	}
	return name, nil
}

// ValidateContent checks a chat message body. Content is delivered as sent.
func (l Limits) ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	if err := validate.Var(content, fmt.Sprintf("max=%d", l.MaxMessageLength)); err != nil {
		return fmt.Errorf("%w: content must be at most %d characters", ErrInvalidMessage, l.MaxMessageLength)
	}
	if err := validate.Var(content, "printable"); err != nil {
		return fmt.Errorf("%w: content contains control characters", ErrInvalidMessage)
	}
	return nil
}
