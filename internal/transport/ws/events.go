package ws

import (
	"encoding/json"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/google/uuid"
)

// Event types - Client → Server
const (
	EventTypeJoinConversation  = "join_conversation"
	EventTypeLeaveConversation = "leave_conversation"
	EventTypeSendMessage       = "send_message"
	EventTypeTypingStart       = "typing_start"
	EventTypeTypingStop        = "typing_stop"
	EventTypePing              = "ping"
)

// Event types - Server → Client
const (
	EventTypeNewMessage        = "newMessage"
	EventTypeMessageSent       = "message_sent"
	EventTypeMessageError      = "message_error"
	EventTypeMessageFiltered   = "message_filtered"
	EventTypeUserTyping        = "user_typing"
	EventTypeUserStoppedTyping = "user_stopped_typing"
	EventTypePong              = "pong"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type ConversationPayload struct {
	ConversationID string     `json:"conversation_id"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
}

type SendMessagePayload struct {
	RecipientID string              `json:"recipient_id"`
	Content     string              `json:"content"`
	MessageType string              `json:"message_type,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	OrderID     *uuid.UUID          `json:"order_id,omitempty"`
}

type TypingPayload struct {
	RecipientID    string `json:"recipient_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// --- Server → Client payloads ---

type MessageSentPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type MessageFilteredPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Warning   string    `json:"warning"`
}

type MessageErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type UserTypingPayload struct {
	UserID         uuid.UUID `json:"user_id"`
	UserName       string    `json:"user_name"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}

// UserRoom is the personal room every connection of a user is in.
func UserRoom(userID uuid.UUID) string {
	return "user_" + userID.String()
}
