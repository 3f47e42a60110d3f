package chat

import (
	"time"

	"github.com/tbourn/go-shop-chat/internal/domain"
)

// Inbound event names.
const (
	EventSendMessage = "sendMessage"
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
)

// Outbound event names.
const (
	EventConnected   = "connected"
	EventMessageSent = "messageSent"
	EventNewMessage  = "newMessage"
	EventRoomJoined  = "roomJoined"
	EventRoomLeft    = "roomLeft"
	EventError       = "error"
)

// Event is one frame on the wire: {"event": name, "data": payload}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// ConnectedData is the payload of "connected".
type ConnectedData struct {
	UserID int64 `json:"userId"`
}

// MessageSentData acknowledges a submission to its sender.
type MessageSentData struct {
	MessageID int64     `json:"messageId"`
	RoomID    int64     `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageData is the payload broadcast to room members.
type NewMessageData struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"authorId"`
	RoomID    int64     `json:"roomId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomData is the payload of "roomJoined" and "roomLeft".
type RoomData struct {
	RoomID int64 `json:"roomId"`
}

// ErrorData reports a per-event failure to the sending connection.
type ErrorData struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// SendMessage is the decoded payload of an inbound "sendMessage".
type SendMessage struct {
	Body            string `json:"body"`
	RoomID          int64  `json:"roomId"          validate:"omitempty,gt=0"`
	TargetUserID    int64  `json:"targetUserId"    validate:"omitempty,gt=0"`
	ClientMessageID string `json:"clientMessageId" validate:"omitempty,clientid"`
}

// RoomRequest is the decoded payload of "joinRoom" and "leaveRoom".
type RoomRequest struct {
	RoomID int64 `json:"roomId" validate:"required,gt=0"`
}

// ConnectedEvent builds the greeting sent once a session has joined.
func ConnectedEvent(userID int64) Event {
	return Event{Name: EventConnected, Data: ConnectedData{UserID: userID}}
}

// MessageSentEvent builds the sender acknowledgement for m.
func MessageSentEvent(m *domain.Message) Event {
	return Event{Name: EventMessageSent, Data: MessageSentData{MessageID: m.ID, RoomID: m.RoomID, Timestamp: m.CreatedAt}}
}

// NewMessageEvent builds the broadcast for m.
func NewMessageEvent(m *domain.Message) Event {
	return Event{Name: EventNewMessage, Data: NewMessageData{
		ID:        m.ID,
		AuthorID:  m.AuthorID,
		RoomID:    m.RoomID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}}
}

// RoomJoinedEvent builds the "roomJoined" reply.
func RoomJoinedEvent(roomID int64) Event {
	return Event{Name: EventRoomJoined, Data: RoomData{RoomID: roomID}}
}

// RoomLeftEvent builds the "roomLeft" reply.
func RoomLeftEvent(roomID int64) Event {
	return Event{Name: EventRoomLeft, Data: RoomData{RoomID: roomID}}
}

// ErrorEvent turns err into an "error" event for the inbound event named by
// source. Internal failures are reported generically.
func ErrorEvent(err error, source string) Event {
	return Event{Name: EventError, Data: ErrorData{Message: PublicMessage(err), Event: source}}
}
