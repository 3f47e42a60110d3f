package chat

import (
	"errors"

	"github.com/tbourn/go-shop-chat/internal/services"
)

// Errors raised by the session layer itself.
var (
	ErrNotJoined     = errors.New("session not joined")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrInvalidFrame  = errors.New("invalid frame")
	ErrInvalidParams = errors.New("invalid payload")
)

// PublicMessage maps an error to the text a client is allowed to see.
// Non-members and missing rooms read the same.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrRoomNotFound), errors.Is(err, services.ErrNotRoomMember):
		return services.ErrRoomNotFound.Error()
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrEmptyBody),
		errors.Is(err, services.ErrBodyTooLong),
		errors.Is(err, services.ErrInvalidTarget),
		errors.Is(err, ErrNotJoined),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUnknownEvent),
		errors.Is(err, ErrInvalidFrame),
		errors.Is(err, ErrInvalidParams):
		return err.Error()
	default:
		return "internal error"
	}
}
