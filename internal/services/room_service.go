// Package services – RoomService
//
// RoomService owns creation and lookup of chat rooms. A room is keyed by the
// canonical encoding of its original member set; the unique index on that key
// is what makes concurrent get-or-create converge on one room, across
// processes, without in-process locking.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/repo"
)

// RoomRepo defines the repository contract required by RoomService.
type RoomRepo interface {
	// FindRoomByKey returns the room with the given unique key.
	FindRoomByKey(ctx context.Context, db *gorm.DB, key string) (*domain.ChatRoom, error)

	// GetRoom returns a room by id, optionally with member ids.
	GetRoom(ctx context.Context, db *gorm.DB, id int64, withMembers bool) (*domain.ChatRoom, error)

	// ListMemberIDs returns the member ids of a room.
	ListMemberIDs(ctx context.Context, db *gorm.DB, roomID int64) ([]int64, error)

	// CreateRoom inserts a room and its members; repo.ErrDuplicate on key clash.
	CreateRoom(ctx context.Context, db *gorm.DB, key string, memberIDs []int64) (*domain.ChatRoom, error)

	// AddMember adds a member; existing members are a no-op.
	AddMember(ctx context.Context, db *gorm.DB, roomID, userID int64) error

	// IsMember reports whether a user belongs to a room; missing rooms have
	// no members.
	IsMember(ctx context.Context, db *gorm.DB, roomID, userID int64) (bool, error)

	// ListRoomsForUser returns the rooms a user belongs to, with members.
	ListRoomsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.ChatRoom, error)

	// ListRoomIDsForUser returns the ids of the rooms a user belongs to.
	ListRoomIDsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]int64, error)
}

// RoomService provides room lookup, creation and membership operations.
type RoomService struct {
	DB   *gorm.DB
	Repo RoomRepo
}

// NewRoomService constructs a RoomService.
func NewRoomService(db *gorm.DB, r RoomRepo) *RoomService {
	return &RoomService{DB: db, Repo: r}
}

func (s *RoomService) tracer() trace.Tracer { return otel.Tracer("services/RoomService") }

// FindByMembers returns the room whose key matches memberIDs, with members
// loaded, or ErrRoomNotFound.
func (s *RoomService) FindByMembers(ctx context.Context, memberIDs []int64) (*domain.ChatRoom, error) {
	key := domain.CanonicalKey(memberIDs)
	ctx, span := s.tracer().Start(ctx, "FindByMembers",
		trace.WithAttributes(attribute.String("room.key", key)))
	defer span.End()

	room, err := s.Repo.FindRoomByKey(ctx, s.DB, key)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	ids, err := s.Repo.ListMemberIDs(ctx, s.DB, room.ID)
	if err != nil {
		return nil, err
	}
	room.MemberIDs = ids
	return room, nil
}

// FindByID returns the room with id, or ErrRoomNotFound.
func (s *RoomService) FindByID(ctx context.Context, id int64, withMembers bool) (*domain.ChatRoom, error) {
	ctx, span := s.tracer().Start(ctx, "FindByID",
		trace.WithAttributes(attribute.Int64("room.id", id)))
	defer span.End()

	room, err := s.Repo.GetRoom(ctx, s.DB, id, withMembers)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	return room, nil
}

// Create inserts a room for memberIDs. It fails with ErrRoomConflict when a
// room with the same canonical key already exists.
func (s *RoomService) Create(ctx context.Context, memberIDs []int64) (*domain.ChatRoom, error) {
	members := domain.NormalizeMembers(memberIDs)
	key := domain.CanonicalKey(members)
	ctx, span := s.tracer().Start(ctx, "Create",
		trace.WithAttributes(attribute.String("room.key", key)))
	defer span.End()

	room, err := s.Repo.CreateRoom(ctx, s.DB, key, members)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrRoomConflict
	}
	return room, err
}

// AddMember adds userID to the room and returns the room with its members.
// Adding an existing member is a no-op.
func (s *RoomService) AddMember(ctx context.Context, roomID, userID int64) (*domain.ChatRoom, error) {
	ctx, span := s.tracer().Start(ctx, "AddMember",
		trace.WithAttributes(attribute.Int64("room.id", roomID), attribute.Int64("user.id", userID)))
	defer span.End()

	if err := s.Repo.AddMember(ctx, s.DB, roomID, userID); err != nil {
		return nil, mapRoomErr(err)
	}
	return s.FindByID(ctx, roomID, true)
}

// ResolvePair returns the room shared by a and b, creating it when missing.
// created reports whether this call inserted the room. A creation that loses
// a race re-fetches the winner once; if that also misses, ErrRoomConflict is
// returned.
func (s *RoomService) ResolvePair(ctx context.Context, a, b int64) (room *domain.ChatRoom, created bool, err error) {
	ctx, span := s.tracer().Start(ctx, "ResolvePair",
		trace.WithAttributes(attribute.Int64("user.a", a), attribute.Int64("user.b", b)))
	defer span.End()

	members := []int64{a, b}
	room, err = s.FindByMembers(ctx, members)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, false, err
	}

	room, err = s.Create(ctx, members)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, ErrRoomConflict) {
		return nil, false, err
	}

	// Lost the race: the winner's row is committed, fetch it.
	room, err = s.FindByMembers(ctx, members)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, false, ErrRoomConflict
		}
		return nil, false, err
	}
	return room, false, nil
}

// ListForUser returns the rooms userID belongs to, newest first.
func (s *RoomService) ListForUser(ctx context.Context, userID int64) ([]domain.ChatRoom, error) {
	ctx, span := s.tracer().Start(ctx, "ListForUser",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()
	return s.Repo.ListRoomsForUser(ctx, s.DB, userID)
}

// Stats returns how many rooms userID belongs to and the latest room update,
// for cache validators.
func (s *RoomService) Stats(ctx context.Context, userID int64) (int64, *time.Time, error) {
	return repo.RoomsStats(ctx, s.DB, userID)
}

// RoomIDsForUser returns the ids of every room userID belongs to.
func (s *RoomService) RoomIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return s.Repo.ListRoomIDsForUser(ctx, s.DB, userID)
}

// Access returns the room if the identity may use it. Members always may.
// Admins are added as members on first access. Everyone else gets
// ErrNotRoomMember. joined reports whether the identity was newly added.
func (s *RoomService) Access(ctx context.Context, roomID int64, who domain.Identity) (room *domain.ChatRoom, joined bool, err error) {
	room, err = s.FindByID(ctx, roomID, true)
	if err != nil {
		return nil, false, err
	}
	if room.HasMember(who.ID) {
		return room, false, nil
	}
	if !who.IsAdmin() {
		return nil, false, ErrNotRoomMember
	}
	room, err = s.AddMember(ctx, roomID, who.ID)
	if err != nil {
		return nil, false, err
	}
	return room, true, nil
}

// CanRead reports whether the identity may read the room's history without
// changing membership. It returns ErrRoomNotFound for missing rooms and for
// non-members.
func (s *RoomService) CanRead(ctx context.Context, roomID int64, who domain.Identity) error {
	if who.IsAdmin() {
		_, err := s.FindByID(ctx, roomID, false)
		return err
	}
	ok, err := s.Repo.IsMember(ctx, s.DB, roomID, who.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomNotFound
	}
	return nil
}

func mapRoomErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRoomNotFound
	}
	return err
}
