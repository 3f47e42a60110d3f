package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/services"
)

// IdentityVerifier authenticates a bearer credential.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

// RoomStore is the room persistence the manager depends on.
type RoomStore interface {
	ResolvePair(ctx context.Context, a, b int64) (*domain.ChatRoom, bool, error)
	Access(ctx context.Context, roomID int64, who domain.Identity) (*domain.ChatRoom, bool, error)
	RoomIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// MessageStore is the message persistence the manager depends on.
type MessageStore interface {
	NormalizeBody(body string) (string, error)
	// AppendOnce persists body unless key was already used by authorID, in
	// which case it returns the earlier message with created=false.
	AppendOnce(ctx context.Context, authorID, roomID int64, body, key string) (msg *domain.Message, created bool, err error)
	FindByClientID(ctx context.Context, userID int64, key string) (*domain.Message, error)
}

// UserDirectory answers whether a user exists.
type UserDirectory interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

// Options tunes per-session behavior.
type Options struct {
	// MsgRPS and MsgBurst throttle inbound events per session; MsgRPS <= 0
	// disables throttling.
	MsgRPS   float64
	MsgBurst int
}

// Manager drives sessions through Connecting, Authenticated, Joined and
// Closed, and handles their inbound events.
type Manager struct {
	verifier IdentityVerifier
	rooms    RoomStore
	messages MessageStore
	users    UserDirectory
	registry *Registry
	opts     Options
}

// NewManager wires a Manager. A nil registry gets a fresh one.
func NewManager(v IdentityVerifier, rooms RoomStore, msgs MessageStore, users UserDirectory, reg *Registry, opts Options) *Manager {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Manager{
		verifier: v,
		rooms:    rooms,
		messages: msgs,
		users:    users,
		registry: reg,
		opts:     opts,
	}
}

// Registry exposes the session registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Authenticate verifies the credential. On failure nothing is registered and
// services.ErrUnauthenticated (or a storage error) is returned.
func (m *Manager) Authenticate(ctx context.Context, credential string) (domain.Identity, error) {
	id, err := m.verifier.Verify(ctx, credential)
	if err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// Connect creates a session for an authenticated identity, greets it with
// "connected", registers it and subscribes it to every room the user belongs
// to. The greeting is queued before the session becomes visible to
// broadcasts, so it is always the first event. The session is Joined when
// Connect returns; on error the session is torn down and out closed.
func (m *Manager) Connect(ctx context.Context, id domain.Identity, out Outbound) (*Session, error) {
	var lim *rate.Limiter
	if m.opts.MsgRPS > 0 {
		burst := m.opts.MsgBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(m.opts.MsgRPS), burst)
	}
	s := NewSession(out, lim)
	s.Identity = id
	s.advance(StateConnecting, StateAuthenticated)
	s.Send(ConnectedEvent(id.ID))

	// Register first: a room created from here on subscribes this session
	// itself, and every older room is in the listing below.
	m.registry.Register(id.ID, s)

	roomIDs, err := m.rooms.RoomIDsForUser(ctx, id.ID)
	if err != nil {
		m.teardown(s)
		return nil, err
	}
	for _, rid := range roomIDs {
		s.Subscribe(rid)
	}
	if !s.advance(StateAuthenticated, StateJoined) {
		m.teardown(s)
		return nil, ErrNotJoined
	}
	connsActive.Inc()
	log.Debug().Int64("user_id", id.ID).Str("session_id", s.ID).Int("rooms", len(roomIDs)).Msg("chat session joined")
	return s, nil
}

// Disconnect closes the session and removes exactly this session from the
// registry. Calling it twice is harmless.
func (m *Manager) Disconnect(s *Session) {
	wasJoined := s.State() == StateJoined
	if !m.teardown(s) {
		return
	}
	if wasJoined {
		connsActive.Dec()
	}
	log.Debug().Int64("user_id", s.Identity.ID).Str("session_id", s.ID).Msg("chat session closed")
}

func (m *Manager) teardown(s *Session) bool {
	if !s.close() {
		return false
	}
	m.registry.Remove(s.Identity.ID, s)
	if s.out != nil {
		_ = s.out.Close()
	}
	return true
}

// SubmitMessage resolves the target room, persists the message, and fans it
// out to every live session of every room member that is subscribed to the
// room, the sender's own sessions included. It returns the persisted message.
//
// A repeated ClientMessageID returns the original message without writing or
// broadcasting again.
func (m *Manager) SubmitMessage(ctx context.Context, s *Session, req SendMessage) (*domain.Message, error) {
	msg, outcome, err := m.submit(ctx, s, req)
	messagesTotal.WithLabelValues(outcome).Inc()
	return msg, err
}

func (m *Manager) submit(ctx context.Context, s *Session, req SendMessage) (*domain.Message, string, error) {
	if s.State() != StateJoined {
		return nil, "rejected", ErrNotJoined
	}
	if !s.allow() {
		return nil, "rejected", ErrRateLimited
	}
	sender := s.Identity

	body, err := m.messages.NormalizeBody(req.Body)
	if err != nil {
		return nil, "rejected", err
	}

	// Answers retries of a finished submission early. Concurrent ones are
	// settled by AppendOnce.
	if req.ClientMessageID != "" {
		prev, err := m.messages.FindByClientID(ctx, sender.ID, req.ClientMessageID)
		if err != nil {
			return nil, "failed", err
		}
		if prev != nil {
			return prev, "duplicate", nil
		}
	}

	room, err := m.resolveRoom(ctx, sender, req)
	if err != nil {
		if errors.Is(err, services.ErrRoomConflict) {
			log.Error().Err(err).Int64("user_id", sender.ID).Int64("target_id", req.TargetUserID).Msg("room resolution kept conflicting")
			return nil, "failed", err
		}
		return nil, outcomeFor(err), err
	}

	msg, created, err := m.messages.AppendOnce(ctx, sender.ID, room.ID, body, req.ClientMessageID)
	if err != nil {
		return nil, outcomeFor(err), err
	}
	if !created {
		return msg, "duplicate", nil
	}

	m.subscribeMembers(room)
	m.broadcast(room, msg)
	return msg, "sent", nil
}

// resolveRoom picks the room for a submission: by id when given, otherwise
// the sender/target pair room, created on first use.
func (m *Manager) resolveRoom(ctx context.Context, sender domain.Identity, req SendMessage) (*domain.ChatRoom, error) {
	switch {
	case req.RoomID > 0:
		room, _, err := m.rooms.Access(ctx, req.RoomID, sender)
		return room, err

	case req.TargetUserID > 0:
		if req.TargetUserID == sender.ID {
			return nil, services.ErrInvalidTarget
		}
		ok, err := m.users.UserExists(ctx, req.TargetUserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, services.ErrUserNotFound
		}
		room, created, err := m.rooms.ResolvePair(ctx, sender.ID, req.TargetUserID)
		if err != nil {
			return nil, err
		}
		if created {
			roomsCreated.Inc()
		}
		return room, nil

	default:
		return nil, services.ErrInvalidTarget
	}
}

// subscribeMembers makes sure every live session of every member receives
// the room, so a room created or grown by a concurrent submission is not
// missed. Sessions that left the room stay out.
func (m *Manager) subscribeMembers(room *domain.ChatRoom) {
	for _, uid := range room.MemberIDs {
		for _, s := range m.registry.Resolve(uid) {
			s.autoSubscribe(room.ID)
		}
	}
}

func (m *Manager) broadcast(room *domain.ChatRoom, msg *domain.Message) {
	ev := NewMessageEvent(msg)
	for _, uid := range room.MemberIDs {
		for _, s := range m.registry.Resolve(uid) {
			if !s.Subscribed(room.ID) {
				continue
			}
			if s.Send(ev) {
				deliveriesTotal.WithLabelValues("queued").Inc()
			} else {
				deliveriesTotal.WithLabelValues("dropped").Inc()
				log.Warn().Int64("user_id", uid).Str("session_id", s.ID).Int64("message_id", msg.ID).Msg("newMessage dropped")
			}
		}
	}
}

// JoinRoom subscribes the session to roomID. Only members may join; an admin
// is added as a member first. Joining twice is a no-op.
func (m *Manager) JoinRoom(ctx context.Context, s *Session, roomID int64) error {
	if s.State() != StateJoined {
		return ErrNotJoined
	}
	if _, _, err := m.rooms.Access(ctx, roomID, s.Identity); err != nil {
		return err
	}
	s.Subscribe(roomID)
	return nil
}

// LeaveRoom unsubscribes the session from roomID. Room membership is not
// touched and leaving a room that was never joined succeeds.
func (m *Manager) LeaveRoom(_ context.Context, s *Session, roomID int64) error {
	if s.State() != StateJoined {
		return ErrNotJoined
	}
	s.Unsubscribe(roomID)
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrNotRoomMember),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrInvalidTarget),
		errors.Is(err, services.ErrEmptyBody),
		errors.Is(err, services.ErrBodyTooLong):
		return "rejected"
	default:
		return "failed"
	}
}
