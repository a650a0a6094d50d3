package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/google/uuid"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error)
}

type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Order, error)
	TouchLastActivity(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MessageRepository is raw message persistence. Lookups return (nil, nil)
// when nothing matches.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListConversation returns one page of the conversation restricted to the
	// given pair, newest first, plus the total count for that filter.
	ListConversation(ctx context.Context, conversationID string, pair [2]uuid.UUID, offset, limit int) ([]domain.Message, int64, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error)
	MarkConversationRead(ctx context.Context, conversationID string, userID uuid.UUID, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	HasSystemMessage(ctx context.Context, conversationID string) (bool, error)
}
