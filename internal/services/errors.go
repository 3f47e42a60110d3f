// Package services defines the business logic for rooms, messages, and
// authentication. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages, HTTP status codes, or socket error
// events is performed at the transport layer.
package services

import "errors"

// Authentication errors.
var (
	// ErrUnauthenticated covers a missing, malformed, expired, or otherwise
	// invalid credential, and a credential whose user no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. Both cases share one error.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned when a password is too short.
	ErrWeakPassword = errors.New("password too short")

	// ErrPasswordMismatch is returned when password and confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Chat errors.
var (
	// ErrRoomNotFound indicates the room does not exist or is not visible to
	// the caller.
	ErrRoomNotFound = errors.New("room not found")

	// ErrUserNotFound indicates a named target user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotRoomMember is returned when a non-member addresses a room by id.
	// Transports report it the same way as ErrRoomNotFound.
	ErrNotRoomMember = errors.New("not a room member")

	// ErrEmptyBody is returned when a message body is blank after trimming.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrBodyTooLong is returned when a message body exceeds the rune limit.
	ErrBodyTooLong = errors.New("message body too long")

	// ErrInvalidTarget is returned when a message names neither a room nor a
	// target user, or targets its own author.
	ErrInvalidTarget = errors.New("invalid message target")

	// ErrRoomConflict is returned when room creation kept colliding on the
	// unique key and the winning room could not be fetched.
	ErrRoomConflict = errors.New("room conflict")
)
