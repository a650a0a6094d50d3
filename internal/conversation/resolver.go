package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/google/uuid"
)

// UnknownRecipient lets a client address "the other party of this order"
// without knowing who that is.
const UnknownRecipient = "unknown"

var (
	ErrMissingRecipient = fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	ErrInvalidRecipient = fmt.Errorf("%w: invalid recipient id", domain.ErrValidation)
	ErrSelfConversation = fmt.Errorf("%w: cannot message yourself", domain.ErrValidation)
	ErrNoCounterpart    = fmt.Errorf("%w: order has no assigned freelancer", domain.ErrValidation)
	ErrInvalidKey       = fmt.Errorf("%w: invalid conversation id", domain.ErrValidation)
	ErrOrderNotFound    = fmt.Errorf("%w: order", domain.ErrNotFound)
	ErrNotOrderParty    = fmt.Errorf("%w: not a party to this order", domain.ErrNotAuthorized)
	ErrNotParticipant   = fmt.Errorf("%w: not a participant of this conversation", domain.ErrNotAuthorized)
)

// OrderLookup is the single external read the resolver needs.
type OrderLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

// Target is the resolved other end of a conversation.
type Target struct {
	CounterpartID  uuid.UUID
	OrderID        *uuid.UUID
	ConversationID string
	Order          *domain.Order
}

type Resolver struct {
	orders OrderLookup
}

func NewResolver(orders OrderLookup) *Resolver {
	return &Resolver{orders: orders}
}

// Resolve determines the counterpart and conversation key for callerID.
// recipient is a user id, UnknownRecipient, or empty when orderID is set.
func (r *Resolver) Resolve(ctx context.Context, callerID uuid.UUID, recipient string, orderID *uuid.UUID) (*Target, error) {
	recipient = strings.TrimSpace(recipient)

	if orderID == nil {
		if recipient == "" || recipient == UnknownRecipient {
			return nil, ErrMissingRecipient
		}
		other, err := uuid.Parse(recipient)
		if err != nil {
			return nil, ErrInvalidRecipient
		}
		if other == callerID {
			return nil, ErrSelfConversation
		}
		return &Target{CounterpartID: other, ConversationID: PairKey(callerID, other)}, nil
	}

	order, err := r.lookupOrder(ctx, *orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(callerID) {
		return nil, ErrNotOrderParty
	}
	other, ok := order.OtherParty(callerID)
	if !ok {
		return nil, ErrNoCounterpart
	}

	// An explicit recipient must be the other party; order chat is closed to
	// everyone else.
	if recipient != "" && recipient != UnknownRecipient {
		given, err := uuid.Parse(recipient)
		if err != nil {
			return nil, ErrInvalidRecipient
		}
		if given != other {
			return nil, ErrNotOrderParty
		}
	}

	id := order.ID
	return &Target{
		CounterpartID:  other,
		OrderID:        &id,
		ConversationID: OrderKey(id),
		Order:          order,
	}, nil
}

// CanJoin checks that userID may listen on the room for key.
func (r *Resolver) CanJoin(ctx context.Context, userID uuid.UUID, key string) error {
	if orderID, ok := OrderIDFromKey(key); ok {
		order, err := r.lookupOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.IsParty(userID) {
			return ErrNotOrderParty
		}
		return nil
	}

	a, b, ok := PairFromKey(key)
	if !ok {
		return ErrInvalidKey
	}
	if userID != a && userID != b {
		return ErrNotParticipant
	}
	return nil
}

func (r *Resolver) lookupOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := r.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up order: %v", domain.ErrStorage, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
