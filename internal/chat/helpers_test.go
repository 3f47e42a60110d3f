package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/repo"
	"github.com/tbourn/go-shop-chat/internal/services"
)

// fakeOut records every event queued to it.
type fakeOut struct {
	mu     sync.Mutex
	events []Event
	closed int
	full   bool
}

func (f *fakeOut) Send(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeOut) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeOut) named(name string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	db       *gorm.DB
	mgr      *Manager
	rooms    *services.RoomService
	msgs     *services.MessageService
	auth     *services.AuthService
	verifier *services.JWTVerifier
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:chat_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	require.NoError(t, repo.AutoMigrate(db))

	issuer := &services.TokenIssuer{Secret: []byte("k"), Issuer: "test", TTL: time.Hour}
	auth := services.NewAuthService(db, issuer)
	auth.HashCost = bcrypt.MinCost
	verifier := &services.JWTVerifier{DB: db, Secret: []byte("k"), Issuer: "test"}
	rooms := services.NewRoomService(db, repo.Rooms{})
	msgs := services.NewMessageService(db)

	return &harness{
		db:       db,
		mgr:      NewManager(verifier, rooms, msgs, auth, NewRegistry(), opts),
		rooms:    rooms,
		msgs:     msgs,
		auth:     auth,
		verifier: verifier,
	}
}

func (h *harness) user(t *testing.T, email string, role domain.Role) domain.Identity {
	t.Helper()
	var (
		u   *domain.User
		err error
	)
	if role == domain.RoleAdmin {
		u, err = h.auth.RegisterAdmin(context.Background(), email, "password1")
	} else {
		u, err = h.auth.Register(context.Background(), email, "password1", "password1")
	}
	require.NoError(t, err)
	return domain.Identity{ID: u.ID, Role: u.Role}
}

func (h *harness) connect(t *testing.T, id domain.Identity) (*Session, *fakeOut) {
	t.Helper()
	out := &fakeOut{}
	s, err := h.mgr.Connect(context.Background(), id, out)
	require.NoError(t, err)
	return s, out
}
