package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-shop-chat/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "chat.db")

	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("OpenSQLite(%q) = %v, %v; want ErrNotExist", bad, db, err)
	}
}

func TestOpenSQLite_PragmasPoolAndSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for name, v := range want {
		var got string
		if err := db.Raw("PRAGMA " + name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if strings.ToLower(got) != v {
			t.Errorf("PRAGMA %s = %q; want %q", name, got, v)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != maxOpenConns {
		t.Fatalf("MaxOpenConnections = %d", n)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, tbl := range []any{&domain.User{}, &domain.ChatRoom{}, &domain.RoomMember{}, &domain.Message{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(tbl) {
			t.Fatalf("missing table for %T", tbl)
		}
	}

	// members must reference an existing user
	ctx := context.Background()
	if _, err := CreateRoom(ctx, db, "900_901", []int64{900, 901}); err == nil {
		t.Fatalf("room with unknown members was accepted")
	}
	if err := Ping(ctx, db); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPing_ClosedHandle(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if err := Ping(context.Background(), db); err == nil {
		t.Fatalf("Ping on a closed handle should fail")
	}
}

func TestWithPragmas(t *testing.T) {
	got := withPragmas("file:x?mode=memory")
	if !strings.HasPrefix(got, "file:x?mode=memory&_pragma=journal_mode(WAL)&") {
		t.Fatalf("withPragmas = %q", got)
	}
	if got := withPragmas("/tmp/chat.db"); !strings.HasPrefix(got, "/tmp/chat.db?_pragma=") || strings.Count(got, "_pragma=") != len(pragmas) {
		t.Fatalf("withPragmas = %q", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{gorm.ErrDuplicatedKey, true},
		{fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{errors.New("UNIQUE constraint failed: users.email"), true},
		{errors.New("constraint failed: UNIQUE (2067)"), true},
		{errors.New("ERROR: duplicate key value"), true},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(tc.err); got != tc.want {
			t.Errorf("isUniqueViolation(%v) = %v", tc.err, got)
		}
	}
}
