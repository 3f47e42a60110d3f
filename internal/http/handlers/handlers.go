// Package handlers implements the REST side of the chat service: account
// registration and login, and read access to rooms and message history.
// Real-time messaging lives in the websocket gateway (package ws).
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService registers accounts and issues access tokens.
type AuthService interface {
	// Register creates a user with the default role.
	Register(ctx context.Context, email, password, confirm string) (*domain.User, error)
	// Login verifies credentials and returns a signed access token.
	Login(ctx context.Context, email, password string) (string, error)
}

// RoomService exposes the read side of the room store.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RoomService interface {
	// ListForUser returns the rooms userID belongs to, with member ids.
	ListForUser(ctx context.Context, userID int64) ([]domain.ChatRoom, error)
	// Stats returns the caller's room count and latest room update.
	Stats(ctx context.Context, userID int64) (int64, *time.Time, error)
	// CanRead fails with services.ErrRoomNotFound unless who may read roomID.
	CanRead(ctx context.Context, roomID int64, who domain.Identity) error
}

// MessageService exposes message history.
type MessageService interface {
	// ListPage returns a page of messages within a room and the total count.
	ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]domain.Message, int64, error)
	// Stats returns the room's message count and latest creation time.
	Stats(ctx context.Context, roomID int64) (int64, *time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the REST endpoints.
type Handlers struct {
	authSvc  AuthService
	roomSvc  RoomService
	msgSvc   MessageService
	tokenTTL time.Duration
}

// New constructs Handlers bound to the given services. tokenTTL is reported
// to clients as expires_in on login.
func New(authSvc AuthService, roomSvc RoomService, msgSvc MessageService, tokenTTL time.Duration) *Handlers {
	return &Handlers{authSvc: authSvc, roomSvc: roomSvc, msgSvc: msgSvc, tokenTTL: tokenTTL}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = defaultPage
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}
