// Package store is the persistence surface for messages. It owns the
// invariants every stored message must satisfy, whichever path created it.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/guard"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	// maxOffset bounds the skip sent to the repository. Pages past it are empty.
	maxOffset = math.MaxInt32
)

var (
	ErrEmptyMessage     = fmt.Errorf("%w: content or attachments required", domain.ErrValidation)
	ErrContentTooLong   = fmt.Errorf("%w: content exceeds %d characters", domain.ErrValidation, domain.MaxContentLength)
	ErrInvalidType      = fmt.Errorf("%w: invalid message type", domain.ErrValidation)
	ErrMissingParty     = fmt.Errorf("%w: sender and recipient are required", domain.ErrValidation)
	ErrSameParty        = fmt.Errorf("%w: sender and recipient must differ", domain.ErrValidation)
	ErrKeyMismatch      = fmt.Errorf("%w: conversation id does not match participants", domain.ErrValidation)
	ErrMessageNotFound  = fmt.Errorf("%w: message", domain.ErrNotFound)
	ErrDuplicateMessage = fmt.Errorf("%w: %w", domain.ErrConflict, repository.ErrDuplicate)
)

// StorageError wraps a failure of the underlying repository.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{domain.ErrStorage, e.Err}
}

// PolicyError is returned by Append when the content guard hard-rejects.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return domain.ErrPolicyViolation.Error()
}

func (e *PolicyError) Unwrap() error {
	return domain.ErrPolicyViolation
}

// Page is one page of a conversation, oldest first.
type Page struct {
	Messages   []domain.Message  `json:"messages"`
	Pagination domain.Pagination `json:"pagination"`
}

type MessageStore struct {
	messages repository.MessageRepository
	now      func() time.Time
}

func New(messages repository.MessageRepository) *MessageStore {
	return &MessageStore{messages: messages, now: time.Now}
}

// SetClock replaces the source of createdAt/readAt timestamps.
func (s *MessageStore) SetClock(now func() time.Time) {
	s.now = now
}

// Append validates msg, assigns its id and creation time and persists it.
// IsFiltered is kept as given; read state always starts unset. User content
// that the guard hard-rejects fails with a *PolicyError.
func (s *MessageStore) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	stored := *msg
	if err := validate(&stored); err != nil {
		return nil, err
	}
	// System messages are platform text and may quote order numbers.
	if stored.Type != domain.MessageTypeSystem {
		if rejected, reason := guard.HardReject(stored.Content); rejected {
			return nil, &PolicyError{Reason: reason}
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, &StorageError{Op: "generating id", Err: err}
	}

	stored.ID = id
	stored.Participants = conversation.Pair(msg.SenderID, msg.RecipientID)
	stored.CreatedAt = s.now().UTC()
	stored.IsRead = false
	stored.ReadAt = nil
	if stored.Attachments == nil {
		stored.Attachments = []domain.Attachment{}
	}

	if err := s.messages.Create(ctx, &stored); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateMessage
		}
		return nil, &StorageError{Op: "creating message", Err: err}
	}
	return &stored, nil
}

func validate(msg *domain.Message) error {
	if msg.Type == "" {
		msg.Type = domain.MessageTypeText
	}
	if !domain.ValidMessageType(msg.Type) {
		return ErrInvalidType
	}
	if msg.SenderID == uuid.Nil || msg.RecipientID == uuid.Nil {
		return ErrMissingParty
	}
	if msg.SenderID == msg.RecipientID {
		return ErrSameParty
	}
	if strings.TrimSpace(msg.Content) == "" && len(msg.Attachments) == 0 {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(msg.Content) > domain.MaxContentLength {
		return ErrContentTooLong
	}
	if msg.ConversationID != conversation.Key(msg.SenderID, msg.RecipientID, msg.OrderID) {
		return ErrKeyMismatch
	}
	return nil
}

func (s *MessageStore) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "getting message", Err: err}
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// ListConversation returns page of the conversation restricted to pair.
// Page 1 holds the most recent messages; each page is returned oldest first.
// A pair that does not match the stored participants yields an empty page.
func (s *MessageStore) ListConversation(ctx context.Context, conversationID string, pair [2]uuid.UUID, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	offset := maxOffset
	if page-1 <= maxOffset/limit {
		offset = (page - 1) * limit
	}

	messages, total, err := s.messages.ListConversation(ctx, conversationID, pair, offset, limit)
	if err != nil {
		return nil, &StorageError{Op: "listing conversation", Err: err}
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return &Page{
		Messages: messages,
		Pagination: domain.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

func (s *MessageStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	list, err := s.messages.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "listing conversations", Err: err}
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	return list, nil
}

// MarkConversationRead marks every unread message addressed to userID in
// the conversation as read and returns how many changed.
func (s *MessageStore) MarkConversationRead(ctx context.Context, conversationID string, userID uuid.UUID) (int64, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("%w: conversation id is required", domain.ErrValidation)
	}
	n, err := s.messages.MarkConversationRead(ctx, conversationID, userID, s.now().UTC())
	if err != nil {
		return 0, &StorageError{Op: "marking conversation read", Err: err}
	}
	return n, nil
}

func (s *MessageStore) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, &StorageError{Op: "counting unread", Err: err}
	}
	return n, nil
}

func (s *MessageStore) HasSystemMessage(ctx context.Context, conversationID string) (bool, error) {
	ok, err := s.messages.HasSystemMessage(ctx, conversationID)
	if err != nil {
		return false, &StorageError{Op: "checking system message", Err: err}
	}
	return ok, nil
}
