package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-shop-chat/internal/domain"
)

// newRepoDB opens a per-test in-memory database. With migrate=true the full
// schema is created and foreign keys are enforced.
func newRepoDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// One connection so the PRAGMA below applies to every statement.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")

	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedUsers(t *testing.T, db *gorm.DB, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		u, err := CreateUser(context.Background(), db, fmt.Sprintf("u%d@example.com", i+1), "hash", domain.RoleUser)
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		ids = append(ids, u.ID)
	}
	return ids
}

func TestCreateRoom_PersistsRoomAndMembers(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	ids := seedUsers(t, db, 2)
	key := domain.CanonicalKey(ids)

	room, err := CreateRoom(ctx, db, key, ids)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID == 0 || room.UniqueKey != key || len(room.MemberIDs) != 2 {
		t.Fatalf("unexpected room: %+v", room)
	}

	got, err := GetRoom(ctx, db, room.ID, true)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if len(got.MemberIDs) != 2 || got.MemberIDs[0] != ids[0] || got.MemberIDs[1] != ids[1] {
		t.Fatalf("members = %v, want %v", got.MemberIDs, ids)
	}

	byKey, err := FindRoomByKey(ctx, db, key)
	if err != nil || byKey.ID != room.ID {
		t.Fatalf("FindRoomByKey = %+v, %v", byKey, err)
	}
	if byKey.MemberIDs != nil {
		t.Fatalf("FindRoomByKey should not load members, got %v", byKey.MemberIDs)
	}
}

func TestCreateRoom_DuplicateKey_ReturnsErrDuplicate_NoOrphans(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	ids := seedUsers(t, db, 2)
	key := domain.CanonicalKey(ids)

	if _, err := CreateRoom(ctx, db, key, ids); err != nil {
		t.Fatalf("first CreateRoom: %v", err)
	}
	if _, err := CreateRoom(ctx, db, key, ids); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	var rooms, members int64
	db.Model(&domain.ChatRoom{}).Count(&rooms)
	db.Model(&domain.RoomMember{}).Count(&members)
	if rooms != 1 || members != 2 {
		t.Fatalf("expected 1 room / 2 members, got %d / %d", rooms, members)
	}
}

func TestCreateRoom_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if _, err := CreateRoom(context.Background(), db, "1_2", []int64{1, 2}); err == nil {
		t.Fatalf("expected error without tables")
	}
}

func TestGetRoom_And_FindRoomByKey_NotFound(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	if _, err := GetRoom(ctx, db, 999, false); !IsNotFound(err) {
		t.Fatalf("GetRoom: expected not found, got %v", err)
	}
	if _, err := FindRoomByKey(ctx, db, "nope"); !IsNotFound(err) {
		t.Fatalf("FindRoomByKey: expected not found, got %v", err)
	}
}

func TestAddMember_IdempotentAndMissingRoom(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	ids := seedUsers(t, db, 3)
	room, err := CreateRoom(ctx, db, domain.CanonicalKey(ids[:2]), ids[:2])
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := AddMember(ctx, db, room.ID, ids[2]); err != nil {
			t.Fatalf("AddMember #%d: %v", i, err)
		}
	}
	members, err := ListMemberIDs(ctx, db, room.ID)
	if err != nil {
		t.Fatalf("ListMemberIDs: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %v", members)
	}
	ok, err := IsMember(ctx, db, room.ID, ids[2])
	if err != nil || !ok {
		t.Fatalf("IsMember = %v, %v", ok, err)
	}

	if err := AddMember(ctx, db, 12345, ids[0]); !IsNotFound(err) {
		t.Fatalf("expected not found for missing room, got %v", err)
	}
}

func TestListRoomsForUser_FiltersAndLoadsMembers(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	ids := seedUsers(t, db, 3)

	r1, err := CreateRoom(ctx, db, domain.CanonicalKey(ids[:2]), ids[:2])
	if err != nil {
		t.Fatalf("room1: %v", err)
	}
	// Make r2 strictly newer.
	time.Sleep(2 * time.Millisecond)
	r2, err := CreateRoom(ctx, db, domain.CanonicalKey([]int64{ids[0], ids[2]}), []int64{ids[0], ids[2]})
	if err != nil {
		t.Fatalf("room2: %v", err)
	}
	if _, err := CreateRoom(ctx, db, domain.CanonicalKey(ids[1:]), ids[1:]); err != nil {
		t.Fatalf("room3: %v", err)
	}

	rooms, err := ListRoomsForUser(ctx, db, ids[0])
	if err != nil {
		t.Fatalf("ListRoomsForUser: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != r2.ID || rooms[1].ID != r1.ID {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}
	for _, r := range rooms {
		if len(r.MemberIDs) != 2 || !r.HasMember(ids[0]) {
			t.Fatalf("members not loaded for room %d: %v", r.ID, r.MemberIDs)
		}
	}

	roomIDs, err := ListRoomIDsForUser(ctx, db, ids[0])
	if err != nil {
		t.Fatalf("ListRoomIDsForUser: %v", err)
	}
	if len(roomIDs) != 2 {
		t.Fatalf("expected 2 room ids, got %v", roomIDs)
	}

	none, err := ListRoomsForUser(ctx, db, 999)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no rooms, got %v, %v", none, err)
	}
}
