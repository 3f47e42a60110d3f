package chat

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-shop-chat/internal/domain"
)

// State is a session's lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbound is the transport side of a session.
type Outbound interface {
	// Send queues ev for delivery without blocking. It returns false when
	// the event was dropped.
	Send(ev Event) bool
	// Close tears the connection down. It must be safe to call twice.
	Close() error
}

// Session is one live connection of one user.
type Session struct {
	ID       string
	Identity domain.Identity

	out     Outbound
	limiter *rate.Limiter
	state   atomic.Int32

	mu    sync.RWMutex
	rooms map[int64]struct{}
	left  map[int64]struct{}
}

// NewSession creates a session in the Connecting state. A nil limiter
// disables throttling.
func NewSession(out Outbound, limiter *rate.Limiter) *Session {
	return &Session{
		ID:      uuid.NewString(),
		out:     out,
		limiter: limiter,
		rooms:   make(map[int64]struct{}),
		left:    make(map[int64]struct{}),
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// advance moves from one state to the next; it fails if another goroutine
// got there first.
func (s *Session) advance(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// close marks the session closed and reports whether this call did it.
func (s *Session) close() bool {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(StateClosed)) {
			return true
		}
	}
}

// Subscribe adds roomID to the rooms this session receives broadcasts for.
// It reports whether the room was newly added.
func (s *Session) Subscribe(roomID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.left, roomID)
	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = struct{}{}
	return true
}

// autoSubscribe subscribes to roomID unless the session explicitly left it.
func (s *Session) autoSubscribe(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, gone := s.left[roomID]; gone {
		return
	}
	s.rooms[roomID] = struct{}{}
}

// Unsubscribe removes roomID and keeps it out of automatic subscription until
// the next explicit Subscribe. It reports whether the room was present.
func (s *Session) Unsubscribe(roomID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left[roomID] = struct{}{}
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

// Subscribed reports whether the session receives broadcasts for roomID.
func (s *Session) Subscribed(roomID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms returns the subscribed room ids in ascending order.
func (s *Session) Rooms() []int64 {
	s.mu.RLock()
	out := make([]int64, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Send delivers ev unless the session is closed. It returns false when the
// event was not queued.
func (s *Session) Send(ev Event) bool {
	if s.State() == StateClosed || s.out == nil {
		return false
	}
	return s.out.Send(ev)
}

func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}
