// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-shop-chat/internal/domain"
)

// CreateMessage inserts a new message row in roomID. The room must exist;
// otherwise ErrNotFound is returned and nothing is written.
func CreateMessage(ctx context.Context, db *gorm.DB, roomID, authorID int64, body string) (*domain.Message, error) {
	var m *domain.Message
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = insertMessage(tx, roomID, authorID, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMessageOnce is CreateMessage guarded by the (authorID, key) record.
// The record is claimed before the message row is written, in the same
// transaction, so of two concurrent calls with one key exactly one commits;
// the other gets ErrDuplicate and writes nothing.
func CreateMessageOnce(ctx context.Context, db *gorm.DB, roomID, authorID int64, body, key string, ttl time.Duration) (*domain.Message, error) {
	var m *domain.Message
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := CreateIdempotency(ctx, tx, authorID, key, roomID, 0, ttl)
		if err != nil {
			return err
		}
		if m, err = insertMessage(tx, roomID, authorID, body); err != nil {
			return err
		}
		return tx.Model(rec).Update("message_id", m.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func insertMessage(tx *gorm.DB, roomID, authorID int64, body string) (*domain.Message, error) {
	var n int64
	if err := tx.Model(&domain.ChatRoom{}).Where("id = ?", roomID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	m := &domain.Message{
		RoomID:    roomID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(m).Error; err != nil {
		return nil, err
	}
	// Bump the room so listings surface recent activity first.
	if err := tx.Model(&domain.ChatRoom{}).Where("id = ?", roomID).Update("updated_at", m.CreatedAt).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, roomID int64, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, roomID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE room_id = ?", roomID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, roomID int64, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
