package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/metrics"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/store"
	"go.uber.org/zap"
)

const acceptedTemplate = "Order #%s has been accepted. You can now discuss the project details here."

// Outcomes recorded for order acceptance notices.
const (
	outcomeCreated = "created"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// OrderEventBridge posts the system message that opens an order conversation
// once the order is accepted.
type OrderEventBridge struct {
	orderRepo repository.OrderRepository
	store     *store.MessageStore
	assembler *Assembler
	notifier  Notifier
	log       *zap.Logger
}

func NewOrderEventBridge(orderRepo repository.OrderRepository, messages *store.MessageStore, assembler *Assembler, log *zap.Logger) *OrderEventBridge {
	return &OrderEventBridge{
		orderRepo: orderRepo,
		store:     messages,
		assembler: assembler,
		log:       log,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (b *OrderEventBridge) SetNotifier(n Notifier) {
	b.notifier = n
}

// HandleStatusChange reacts to transitions into the accepted state. Failures
// are logged and never reported back: the transition has already happened.
func (b *OrderEventBridge) HandleStatusChange(ctx context.Context, evt domain.OrderStatusChanged) {
	if evt.Status != domain.OrderStatusAccepted {
		return
	}

	outcome, err := b.announceAcceptance(ctx, evt)
	metrics.SystemMessages.WithLabelValues(outcome).Inc()
	if err != nil {
		b.log.Error("creating order acceptance message",
			zap.String("order_id", evt.OrderID.String()),
			zap.Error(err),
		)
	}
}

func (b *OrderEventBridge) announceAcceptance(ctx context.Context, evt domain.OrderStatusChanged) (string, error) {
	key := conversation.OrderKey(evt.OrderID)

	exists, err := b.store.HasSystemMessage(ctx, key)
	if err != nil {
		return outcomeFailed, err
	}
	if exists {
		return outcomeSkipped, nil
	}

	order, err := b.orderRepo.GetByID(ctx, evt.OrderID)
	if err != nil {
		return outcomeFailed, fmt.Errorf("looking up order: %w", err)
	}
	if order == nil {
		return outcomeFailed, conversation.ErrOrderNotFound
	}
	if order.FreelancerID == nil {
		return outcomeFailed, conversation.ErrNoCounterpart
	}

	orderID := order.ID
	msg := &domain.Message{
		ConversationID: key,
		SenderID:       *order.FreelancerID,
		RecipientID:    order.ClientID,
		Content:        fmt.Sprintf(acceptedTemplate, order.Number),
		Type:           domain.MessageTypeSystem,
		OrderID:        &orderID,
	}

	stored, err := b.store.Append(ctx, msg)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost the race with a concurrent delivery of the same event.
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeFailed, err
	}

	metrics.MessagesStored.WithLabelValues(metrics.PathSystem, stored.Type).Inc()
	b.log.Info("order acceptance message created",
		zap.String("order_id", orderID.String()),
		zap.String("message_id", stored.ID.String()),
	)

	if b.notifier != nil {
		view, err := b.assembler.Message(ctx, stored)
		if err != nil {
			b.log.Warn("assembling system message view", zap.Error(err))
			view = &domain.MessageView{Message: *stored}
		}
		b.notifier.NotifyNewMessage(view)
	}
	return outcomeCreated, nil
}
