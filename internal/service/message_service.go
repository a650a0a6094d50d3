package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/guard"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/idempotency"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/metrics"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/store"
	"github.com/Siddharthgautam09/SERVEPE-sub000/pkg/validator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ValidationError carries per-field problems of a rejected request.
type ValidationError struct {
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	return e.Fields.Error()
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrValidation
}

type MessageService struct {
	store     *store.MessageStore
	resolver  *conversation.Resolver
	orderRepo repository.OrderRepository
	assembler *Assembler
	idem      idempotency.Store
	notifier  Notifier
	log       *zap.Logger
}

func NewMessageService(
	messages *store.MessageStore,
	resolver *conversation.Resolver,
	orderRepo repository.OrderRepository,
	assembler *Assembler,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		store:     messages,
		resolver:  resolver,
		orderRepo: orderRepo,
		assembler: assembler,
		log:       log,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetIdempotencyStore enables Idempotency-Key handling on Send.
func (s *MessageService) SetIdempotencyStore(st idempotency.Store) {
	s.idem = st
}

type SendMessageInput struct {
	RecipientID    string              `json:"recipient_id"`
	Content        string              `json:"content"`
	MessageType    string              `json:"message_type,omitempty"`
	Attachments    []domain.Attachment `json:"attachments,omitempty"`
	OrderID        *uuid.UUID          `json:"order_id,omitempty"`
	IdempotencyKey string              `json:"-"`
}

type SendResult struct {
	Message  *domain.MessageView `json:"message"`
	Warning  string              `json:"warning,omitempty"`
	Replayed bool                `json:"-"`
}

type ConversationPage struct {
	ConversationID string               `json:"conversation_id"`
	Messages       []domain.MessageView `json:"messages"`
	Pagination     domain.Pagination    `json:"pagination"`
}

func (in *SendMessageInput) validate() error {
	attachments := make([]validator.Attachment, len(in.Attachments))
	for i, a := range in.Attachments {
		attachments[i] = validator.Attachment{Name: a.Name, URL: a.URL, Size: a.Size}
	}
	if errs := validator.ValidateSendMessage(in.RecipientID, in.Content, in.MessageType, in.OrderID != nil, attachments); errs.HasErrors() {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Send is the single send pipeline for REST and websocket clients: validate,
// resolve the counterpart, flag, persist, fan out and touch the order.
func (s *MessageService) Send(ctx context.Context, senderID uuid.UUID, path string, input SendMessageInput) (res *SendResult, err error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		key := idempotency.SendKey(senderID, input.IdempotencyKey)
		reservation, rerr := s.idem.Reserve(ctx, key)
		if rerr != nil {
			if errors.Is(rerr, domain.ErrConflict) {
				return nil, rerr
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrStorage, rerr)
		}
		if !reservation.Reserved {
			return s.replay(ctx, senderID, reservation.MessageID)
		}
		defer func() {
			s.settleIdempotency(key, res, err)
		}()
	}

	target, err := s.resolver.Resolve(ctx, senderID, input.RecipientID, input.OrderID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: target.ConversationID,
		SenderID:       senderID,
		RecipientID:    target.CounterpartID,
		Content:        input.Content,
		Type:           input.MessageType,
		Attachments:    input.Attachments,
		OrderID:        target.OrderID,
		IsFiltered:     guard.SoftFlag(input.Content),
	}

	stored, err := s.store.Append(ctx, msg)
	if err != nil {
		var policyErr *store.PolicyError
		if errors.As(err, &policyErr) {
			metrics.HardRejects.WithLabelValues(policyErr.Reason).Inc()
			s.log.Info("message rejected by content guard",
				zap.String("sender_id", senderID.String()),
				zap.String("reason", policyErr.Reason),
			)
		}
		return nil, err
	}

	metrics.MessagesStored.WithLabelValues(path, stored.Type).Inc()
	if stored.IsFiltered {
		metrics.SoftFlags.Inc()
	}

	view := s.present(ctx, stored)
	if s.notifier != nil {
		s.notifier.NotifyNewMessage(view)
	}

	if stored.OrderID != nil {
		if err := s.orderRepo.TouchLastActivity(ctx, *stored.OrderID, stored.CreatedAt); err != nil {
			s.log.Warn("updating order activity",
				zap.String("order_id", stored.OrderID.String()),
				zap.Error(err),
			)
		}
	}

	return newSendResult(view), nil
}

func newSendResult(view *domain.MessageView) *SendResult {
	res := &SendResult{Message: view}
	if view.IsFiltered {
		res.Warning = guard.Warning
	}
	return res
}

// present assembles the view of a freshly stored message. The message is
// already durable, so a lookup failure degrades to a bare view.
func (s *MessageService) present(ctx context.Context, msg *domain.Message) *domain.MessageView {
	view, err := s.assembler.Message(ctx, msg)
	if err != nil {
		s.log.Warn("assembling message view", zap.String("message_id", msg.ID.String()), zap.Error(err))
		return &domain.MessageView{Message: *msg}
	}
	return view
}

func (s *MessageService) replay(ctx context.Context, senderID, messageID uuid.UUID) (*SendResult, error) {
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, store.ErrMessageNotFound
	}
	res := newSendResult(s.present(ctx, msg))
	res.Replayed = true
	return res, nil
}

// settleIdempotency records the outcome under key. It runs detached from the
// request context so a cancelled client still leaves a usable record.
func (s *MessageService) settleIdempotency(key string, res *SendResult, sendErr error) {
	ctx := context.Background()
	if sendErr != nil || res == nil {
		if err := s.idem.Release(ctx, key); err != nil {
			s.log.Warn("releasing idempotency key", zap.String("key", key), zap.Error(err))
		}
		return
	}
	if err := s.idem.Complete(ctx, key, res.Message.ID); err != nil {
		s.log.Warn("completing idempotency key", zap.String("key", key), zap.Error(err))
	}
}

// GetConversation returns one page of the conversation between userID and
// counterpart, which may be "unknown" when orderID is set.
func (s *MessageService) GetConversation(ctx context.Context, userID uuid.UUID, counterpart string, orderID *uuid.UUID, page, limit int) (*ConversationPage, error) {
	target, err := s.resolver.Resolve(ctx, userID, counterpart, orderID)
	if err != nil {
		return nil, err
	}

	p, err := s.store.ListConversation(ctx, target.ConversationID, conversation.Pair(userID, target.CounterpartID), page, limit)
	if err != nil {
		return nil, err
	}

	views, err := s.assembler.Messages(ctx, p.Messages)
	if err != nil {
		return nil, err
	}
	return &ConversationPage{
		ConversationID: target.ConversationID,
		Messages:       views,
		Pagination:     p.Pagination,
	}, nil
}

func (s *MessageService) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.ConversationView, error) {
	sums, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.assembler.Conversations(ctx, userID, sums)
}

// MarkRead marks the conversation read for userID and returns the number of
// messages that changed.
func (s *MessageService) MarkRead(ctx context.Context, userID uuid.UUID, conversationID string) (int64, error) {
	if errs := validator.ValidateMarkRead(conversationID); errs.HasErrors() {
		return 0, &ValidationError{Fields: errs}
	}
	if err := s.resolver.CanJoin(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	return s.store.MarkConversationRead(ctx, conversationID, userID)
}

func (s *MessageService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

// GetMessage returns a message visible to userID. Messages of other
// conversations are reported as missing.
func (s *MessageService) GetMessage(ctx context.Context, userID, messageID uuid.UUID) (*domain.MessageView, error) {
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.HasParticipant(userID) {
		return nil, store.ErrMessageNotFound
	}
	return s.assembler.Message(ctx, msg)
}
