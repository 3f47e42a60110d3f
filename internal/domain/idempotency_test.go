package domain

import (
	"testing"
	"time"
)

func TestIdempotency_Migration_UniquePerUserKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_user_key") {
		t.Fatalf("expected unique index ux_user_key")
	}

	now := time.Now().UTC()
	first := Idempotency{UserID: 1, Key: "k1", MessageID: 10, RoomID: 3, ExpiresAt: now.Add(time.Minute)}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be set by autoCreateTime")
	}

	// Same key for another user is fine.
	other := Idempotency{UserID: 2, Key: "k1", MessageID: 11, RoomID: 3, ExpiresAt: now.Add(time.Minute)}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("insert other user: %v", err)
	}

	// Same (user, key) violates the unique index.
	dup := Idempotency{UserID: 1, Key: "k1", MessageID: 12, RoomID: 3, ExpiresAt: now.Add(time.Minute)}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (user_id, key)")
	}
}
