// Package services – MessageService
//
// MessageService owns the append-only message log. It normalizes and
// validates message bodies, appends messages to existing rooms, serves room
// history, and remembers client message ids so retried submissions can be
// answered without writing twice.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include room/user identifiers and pagination parameters where applicable.
// Message bodies are never attached to spans.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/repo"
)

// MessageService coordinates message persistence and history reads.
type MessageService struct {
	DB *gorm.DB

	// MaxBodyRunes caps message bodies; 0 disables the limit.
	MaxBodyRunes int
	// DedupTTL is how long a client message id is remembered.
	DedupTTL time.Duration
}

// NewMessageService constructs a MessageService with sane defaults.
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{
		DB:           db,
		MaxBodyRunes: 2000,
		DedupTTL:     10 * time.Minute,
	}
}

func (s *MessageService) tracer() trace.Tracer { return otel.Tracer("services/MessageService") }

// NormalizeBody trims the body, converts it to NFC and enforces the rune
// limit. It returns ErrEmptyBody or ErrBodyTooLong on failure.
func (s *MessageService) NormalizeBody(body string) (string, error) {
	body = norm.NFC.String(strings.TrimSpace(body))
	if body == "" {
		return "", ErrEmptyBody
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return "", ErrBodyTooLong
	}
	return body, nil
}

// Append validates body and persists it as a message by authorID in roomID.
// A missing room yields ErrRoomNotFound.
func (s *MessageService) Append(ctx context.Context, authorID, roomID int64, body string) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "Append",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.Int64("user.id", authorID),
		),
	)
	defer span.End()

	body, err := s.NormalizeBody(body)
	if err != nil {
		return nil, err
	}
	m, err := repo.CreateMessage(ctx, s.DB, roomID, authorID, body)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListByRoom returns every message in the room in ascending creation order.
func (s *MessageService) ListByRoom(ctx context.Context, roomID int64) ([]domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "ListByRoom",
		trace.WithAttributes(attribute.Int64("room.id", roomID)))
	defer span.End()

	return repo.ListMessages(ctx, s.DB, roomID, 0)
}

// ListPage returns paginated messages for a room.
func (s *MessageService) ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := s.tracer().Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountMessages(ctx, s.DB, roomID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	if page == 1 && total <= int64(pageSize) {
		items, err := s.ListByRoom(ctx, roomID)
		return items, total, err
	}

	items, err := repo.ListMessagesPage(ctx, s.DB, roomID, offset, pageSize)
	return items, total, err
}

// Stats returns the message count and latest creation time for a room.
func (s *MessageService) Stats(ctx context.Context, roomID int64) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.DB, roomID)
}

// FindByClientID returns the message previously recorded for (userID, key),
// or nil when there is none. A blank key always misses.
func (s *MessageService) FindByClientID(ctx context.Context, userID int64, key string) (*domain.Message, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// AppendOnce is Append keyed by a client message id. The first call for
// (authorID, key) persists the message and returns created=true. Any later or
// concurrent call with the same key persists nothing and returns the message
// the first call stored. A blank key behaves like Append.
func (s *MessageService) AppendOnce(ctx context.Context, authorID, roomID int64, body, key string) (msg *domain.Message, created bool, err error) {
	if key == "" {
		msg, err = s.Append(ctx, authorID, roomID, body)
		return msg, err == nil, err
	}
	ctx, span := s.tracer().Start(ctx, "AppendOnce",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.Int64("user.id", authorID),
		),
	)
	defer span.End()

	body, err = s.NormalizeBody(body)
	if err != nil {
		return nil, false, err
	}
	msg, err = repo.CreateMessageOnce(ctx, s.DB, roomID, authorID, body, key, s.DedupTTL)
	switch {
	case err == nil:
		return msg, true, nil
	case errors.Is(err, repo.ErrNotFound):
		return nil, false, ErrRoomNotFound
	case errors.Is(err, repo.ErrDuplicate):
		prev, ferr := s.FindByClientID(ctx, authorID, key)
		if ferr != nil {
			return nil, false, ferr
		}
		if prev == nil {
			return nil, false, fmt.Errorf("client message id %q: %w", key, repo.ErrDuplicate)
		}
		return prev, false, nil
	}
	return nil, false, err
}
