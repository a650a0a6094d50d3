package service

import (
	"context"
	"fmt"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/google/uuid"
)

// Assembler resolves the user and order references of stored messages into
// API views. The store itself never joins across entities.
type Assembler struct {
	users  repository.UserRepository
	orders repository.OrderRepository
}

func NewAssembler(users repository.UserRepository, orders repository.OrderRepository) *Assembler {
	return &Assembler{users: users, orders: orders}
}

type references struct {
	users  map[uuid.UUID]*domain.User
	orders map[uuid.UUID]*domain.Order
}

func (a *Assembler) load(ctx context.Context, msgs []domain.Message) (*references, error) {
	userSet := make(map[uuid.UUID]struct{})
	orderSet := make(map[uuid.UUID]struct{})
	for i := range msgs {
		userSet[msgs[i].SenderID] = struct{}{}
		userSet[msgs[i].RecipientID] = struct{}{}
		if msgs[i].OrderID != nil {
			orderSet[*msgs[i].OrderID] = struct{}{}
		}
	}

	users, err := a.users.GetByIDs(ctx, keys(userSet))
	if err != nil {
		return nil, fmt.Errorf("%w: loading users: %w", domain.ErrStorage, err)
	}
	orders, err := a.orders.GetByIDs(ctx, keys(orderSet))
	if err != nil {
		return nil, fmt.Errorf("%w: loading orders: %w", domain.ErrStorage, err)
	}
	return &references{users: users, orders: orders}, nil
}

func keys(set map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *references) view(msg domain.Message) domain.MessageView {
	v := domain.MessageView{Message: msg}
	if u, ok := r.users[msg.SenderID]; ok {
		v.Sender = u.Summary()
	}
	if u, ok := r.users[msg.RecipientID]; ok {
		v.Recipient = u.Summary()
	}
	if msg.OrderID != nil {
		if o, ok := r.orders[*msg.OrderID]; ok {
			v.Order = o.Summary()
		}
	}
	return v
}

func (a *Assembler) Message(ctx context.Context, msg *domain.Message) (*domain.MessageView, error) {
	views, err := a.Messages(ctx, []domain.Message{*msg})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (a *Assembler) Messages(ctx context.Context, msgs []domain.Message) ([]domain.MessageView, error) {
	refs, err := a.load(ctx, msgs)
	if err != nil {
		return nil, err
	}
	views := make([]domain.MessageView, len(msgs))
	for i := range msgs {
		views[i] = refs.view(msgs[i])
	}
	return views, nil
}

// Conversations builds the conversation list for userID.
func (a *Assembler) Conversations(ctx context.Context, userID uuid.UUID, sums []domain.ConversationSummary) ([]domain.ConversationView, error) {
	last := make([]domain.Message, len(sums))
	for i := range sums {
		last[i] = sums[i].LastMessage
	}
	refs, err := a.load(ctx, last)
	if err != nil {
		return nil, err
	}

	views := make([]domain.ConversationView, len(sums))
	for i, sum := range sums {
		v := domain.ConversationView{
			ConversationID: sum.ConversationID,
			LastMessage:    refs.view(sum.LastMessage),
			UnreadCount:    sum.UnreadCount,
			IsOrderScoped:  sum.IsOrderScoped,
			OrderID:        sum.OrderID,
		}
		if u, ok := refs.users[sum.LastMessage.Counterpart(userID)]; ok {
			v.OtherUser = u.Summary()
		}
		if sum.OrderID != nil {
			if o, ok := refs.orders[*sum.OrderID]; ok {
				v.Order = o.Summary()
			}
		}
		views[i] = v
	}
	return views, nil
}
