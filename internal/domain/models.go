// Package domain defines the persistence models for users, chat rooms, room
// membership, and messages. These types are mapped with GORM and form the core
// data layer of the chat service.
package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Role is the authorization role carried by a user identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Identity is the authenticated principal behind a request or connection.
// It is read-only for the lifetime of that request or connection.
type Identity struct {
	ID   int64
	Role Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// User is an account that can authenticate and chat.
//
// Fields:
//   - ID: autoincrement primary key; also the JWT subject.
//   - Email: login name (unique).
//   - PasswordHash: bcrypt hash, never serialized.
//   - Role: "user" or "admin" (enforced by DB constraint).
type User struct {
	ID           int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	Role         Role      `json:"role"       gorm:"type:varchar(16);not null;default:'user';check:role IN ('user','admin')"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ChatRoom is a persistent conversation between a set of members.
//
// UniqueKey is the canonical key of the member set the room was created for.
// It is fixed at creation time and backed by a unique index, so two rows can
// never share it. MemberIDs is populated only when a query asks for members.
type ChatRoom struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	UniqueKey string    `json:"unique_key" gorm:"type:varchar(255);not null;uniqueIndex:ux_chat_rooms_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MemberIDs []int64 `json:"member_ids,omitempty" gorm:"-"`
}

// TableName returns the database table name for ChatRoom.
func (ChatRoom) TableName() string { return "chat_rooms" }

// HasMember reports whether userID is in the loaded member list.
func (r *ChatRoom) HasMember(userID int64) bool {
	for _, id := range r.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// RoomMember links a user to a chat room. The composite primary key makes
// membership inserts naturally idempotent.
type RoomMember struct {
	RoomID    int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64     `gorm:"primaryKey;autoIncrement:false;index:idx_room_members_user"`
	CreatedAt time.Time `gorm:"not null"`

	Room ChatRoom `gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User User     `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RoomMember.
func (RoomMember) TableName() string { return "room_members" }

// Message is a single, immutable chat line bound to one room and one author.
type Message struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	RoomID    int64     `json:"room_id"    gorm:"not null;index:idx_room_msgs,priority:1"`
	AuthorID  int64     `json:"author_id"  gorm:"not null;index"`
	Body      string    `json:"body"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_room_msgs,priority:2"`

	Room   ChatRoom `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Author User     `json:"-" gorm:"foreignKey:AuthorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// keySep separates member ids inside a canonical key.
const keySep = "_"

// CanonicalKey returns the order-independent key for a member set: the
// distinct ids sorted ascending and joined by "_". Duplicates are ignored, so
// {2,1,2} and {1,2} map to "1_2".
func CanonicalKey(memberIDs []int64) string {
	ids := NormalizeMembers(memberIDs)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, keySep)
}

// NormalizeMembers returns the distinct ids of memberIDs in ascending order.
func NormalizeMembers(memberIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(memberIDs))
	out := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
