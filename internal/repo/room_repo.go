// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chat rooms and
// their membership rows.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition. Member lists are loaded only when asked for.
//
// Error semantics:
//   - Missing rooms yield ErrNotFound.
//   - A second room with an existing unique key yields ErrDuplicate; the
//     unique index is the safety net for concurrent creation.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-shop-chat/internal/domain"
)

// FindRoomByKey returns the room whose unique key equals key, without members.
func FindRoomByKey(ctx context.Context, db *gorm.DB, key string) (*domain.ChatRoom, error) {
	var r domain.ChatRoom
	if err := db.WithContext(ctx).Where("unique_key = ?", key).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoom fetches a room by id. When withMembers is true the member ids are
// loaded with one additional query.
func GetRoom(ctx context.Context, db *gorm.DB, id int64, withMembers bool) (*domain.ChatRoom, error) {
	var r domain.ChatRoom
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	if withMembers {
		ids, err := ListMemberIDs(ctx, db, r.ID)
		if err != nil {
			return nil, err
		}
		r.MemberIDs = ids
	}
	return &r, nil
}

// ListMemberIDs returns the member ids of a room in ascending order.
func ListMemberIDs(ctx context.Context, db *gorm.DB, roomID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.RoomMember{}).
		Where("room_id = ?", roomID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// CreateRoom inserts a room with the given key and its members in a single
// transaction. A unique-key collision is reported as ErrDuplicate and leaves
// nothing behind.
func CreateRoom(ctx context.Context, db *gorm.DB, key string, memberIDs []int64) (*domain.ChatRoom, error) {
	now := time.Now().UTC()
	room := &domain.ChatRoom{UniqueKey: key, CreatedAt: now, UpdatedAt: now}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		rows := make([]domain.RoomMember, 0, len(memberIDs))
		for _, uid := range memberIDs {
			rows = append(rows, domain.RoomMember{RoomID: room.ID, UserID: uid, CreatedAt: now})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	room.MemberIDs = append([]int64(nil), memberIDs...)
	return room, nil
}

// AddMember adds userID to the room. Adding an existing member is a no-op.
// It returns ErrNotFound when the room does not exist.
func AddMember(ctx context.Context, db *gorm.DB, roomID, userID int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.ChatRoom{}).Where("id = ?", roomID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		m := domain.RoomMember{RoomID: roomID, UserID: userID, CreatedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
	})
}

// IsMember reports whether userID belongs to the room.
func IsMember(ctx context.Context, db *gorm.DB, roomID, userID int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}

// ListRoomIDsForUser returns the ids of every room userID belongs to.
func ListRoomIDsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.RoomMember{}).
		Where("user_id = ?", userID).
		Order("room_id ASC").
		Pluck("room_id", &ids).Error
	return ids, err
}

// ListRoomsForUser returns the rooms userID belongs to, most recently created
// first, with member ids populated.
func ListRoomsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.ChatRoom, error) {
	var rooms []domain.ChatRoom
	err := db.WithContext(ctx).
		Joins("JOIN room_members rm ON rm.room_id = chat_rooms.id").
		Where("rm.user_id = ?", userID).
		Order("chat_rooms.created_at DESC, chat_rooms.id DESC").
		Find(&rooms).Error
	if err != nil || len(rooms) == 0 {
		return rooms, err
	}

	ids := make([]int64, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	var members []domain.RoomMember
	if err := db.WithContext(ctx).
		Where("room_id IN ?", ids).
		Order("user_id ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	byRoom := make(map[int64][]int64, len(rooms))
	for _, m := range members {
		byRoom[m.RoomID] = append(byRoom[m.RoomID], m.UserID)
	}
	for i := range rooms {
		rooms[i].MemberIDs = byRoom[rooms[i].ID]
	}
	return rooms, nil
}

// IsNotFound reports whether err means "no such record".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Rooms adapts the free functions above to services.RoomRepo.
type Rooms struct{}

func (Rooms) FindRoomByKey(ctx context.Context, db *gorm.DB, key string) (*domain.ChatRoom, error) {
	return FindRoomByKey(ctx, db, key)
}

func (Rooms) GetRoom(ctx context.Context, db *gorm.DB, id int64, withMembers bool) (*domain.ChatRoom, error) {
	return GetRoom(ctx, db, id, withMembers)
}

func (Rooms) ListMemberIDs(ctx context.Context, db *gorm.DB, roomID int64) ([]int64, error) {
	return ListMemberIDs(ctx, db, roomID)
}

func (Rooms) CreateRoom(ctx context.Context, db *gorm.DB, key string, memberIDs []int64) (*domain.ChatRoom, error) {
	return CreateRoom(ctx, db, key, memberIDs)
}

func (Rooms) AddMember(ctx context.Context, db *gorm.DB, roomID, userID int64) error {
	return AddMember(ctx, db, roomID, userID)
}

func (Rooms) IsMember(ctx context.Context, db *gorm.DB, roomID, userID int64) (bool, error) {
	return IsMember(ctx, db, roomID, userID)
}

func (Rooms) ListRoomsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.ChatRoom, error) {
	return ListRoomsForUser(ctx, db, userID)
}

func (Rooms) ListRoomIDsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]int64, error) {
	return ListRoomIDsForUser(ctx, db, userID)
}
