package domain

import "github.com/google/uuid"

// ConversationSummary is one entry of a user's conversation list as
// aggregated by the store.
type ConversationSummary struct {
	ConversationID string     `json:"conversation_id"`
	LastMessage    Message    `json:"last_message"`
	UnreadCount    int64      `json:"unread_count"`
	IsOrderScoped  bool       `json:"is_order_scoped"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
}

// ConversationView is the API shape of a conversation list entry.
type ConversationView struct {
	ConversationID string        `json:"conversation_id"`
	LastMessage    MessageView   `json:"last_message"`
	UnreadCount    int64         `json:"unread_count"`
	IsOrderScoped  bool          `json:"is_order_scoped"`
	OrderID        *uuid.UUID    `json:"order_id,omitempty"`
	OtherUser      *UserSummary  `json:"other_user,omitempty"`
	Order          *OrderSummary `json:"order,omitempty"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}
