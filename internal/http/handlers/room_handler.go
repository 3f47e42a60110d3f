// Room HTTP handlers.
//
//   - GET /rooms                  (rooms the caller belongs to, ETag support)
//   - GET /rooms/{id}/messages    (paginated history, ETag support)
//
// Both require AuthRequired upstream. A room the caller may not read answers
// 404 exactly like a missing one.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/http/middleware"
	"github.com/tbourn/go-shop-chat/internal/services"
	"github.com/tbourn/go-shop-chat/internal/utils"
)

// ListRoomsResponse wraps the caller's rooms.
type ListRoomsResponse struct {
	Rooms []domain.ChatRoom `json:"rooms"`
}

// ListMessagesResponse contains a page of room messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List my rooms
// @Description Returns the rooms the caller is a member of, most recently created first, with member ids.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object} handlers.ListRoomsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	// ETag pre-check (best effort).
	if count, latest, err := h.roomSvc.Stats(ctx, uid); err == nil {
		if notModified(c, "rooms:"+strconv.FormatInt(uid, 10), count, latest) {
			return
		}
	}

	rooms, err := h.roomSvc.ListForUser(ctx, uid)
	if err != nil {
		failInternal(c, ErrCodeListFailed, err)
		return
	}
	if rooms == nil {
		rooms = []domain.ChatRoom{}
	}
	ok(c, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a room
// @Description Returns a page of the room's history, oldest first. Admins may read any room.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    int     true  "Room ID"        minimum(1)
// @Param       page           query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page" minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Room not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /rooms/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()

	roomID, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a positive integer")
		return
	}

	who, _ := middleware.IdentityFrom(c)
	if err := h.roomSvc.CanRead(ctx, roomID, who); err != nil {
		if errors.Is(err, services.ErrRoomNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
			return
		}
		failInternal(c, ErrCodeListFailed, err)
		return
	}

	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort). Page parameters are part of the scope.
	if count, latest, err := h.msgSvc.Stats(ctx, roomID); err == nil {
		scope := "messages:" + strconv.FormatInt(roomID, 10) + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(pageSize)
		if notModified(c, scope, count, latest) {
			return
		}
	}

	items, total, err := h.msgSvc.ListPage(ctx, roomID, page, pageSize)
	if err != nil {
		failInternal(c, ErrCodeListFailed, err)
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
