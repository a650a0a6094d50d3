package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxContentLength = 2000

// Message types.
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

// ValidMessageType reports whether t is one of the known message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeSystem:
		return true
	}
	return false
}

type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Message is immutable after creation except for IsRead/ReadAt.
type Message struct {
	ID             uuid.UUID    `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Participants   [2]uuid.UUID `json:"participants"`
	SenderID       uuid.UUID    `json:"sender_id"`
	RecipientID    uuid.UUID    `json:"recipient_id"`
	Content        string       `json:"content"`
	Type           string       `json:"message_type"`
	Attachments    []Attachment `json:"attachments"`
	OrderID        *uuid.UUID   `json:"order_id,omitempty"`
	IsRead         bool         `json:"is_read"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	IsFiltered     bool         `json:"is_filtered"`
	CreatedAt      time.Time    `json:"created_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (m *Message) HasParticipant(userID uuid.UUID) bool {
	return m.Participants[0] == userID || m.Participants[1] == userID
}

// Counterpart returns the participant that is not userID.
func (m *Message) Counterpart(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Less orders messages by creation time, ties broken by id.
func (m *Message) Less(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.String() < other.ID.String()
}

// MessageView is the API shape of a message with its references resolved.
type MessageView struct {
	Message
	Sender    *UserSummary  `json:"sender,omitempty"`
	Recipient *UserSummary  `json:"recipient,omitempty"`
	Order     *OrderSummary `json:"order,omitempty"`
}
