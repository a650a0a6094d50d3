// Package memory is an in-process implementation of the repository
// interfaces. It backs the "memory" store driver and the test suites.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	messages []*domain.Message
	byID     map[uuid.UUID]*domain.Message
	users    map[uuid.UUID]*domain.User
	orders   map[uuid.UUID]*domain.Order
}

func NewStore() *Store {
	return &Store{
		byID:   make(map[uuid.UUID]*domain.Message),
		users:  make(map[uuid.UUID]*domain.User),
		orders: make(map[uuid.UUID]*domain.Order),
	}
}

func (s *Store) Messages() *MessageRepo { return &MessageRepo{s: s} }
func (s *Store) Users() *UserRepo       { return &UserRepo{s: s} }
func (s *Store) Orders() *OrderRepo     { return &OrderRepo{s: s} }

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// PutOrder inserts or replaces an order.
func (s *Store) PutOrder(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Attachments = slices.Clone(m.Attachments)
	if m.ReadAt != nil {
		t := *m.ReadAt
		cp.ReadAt = &t
	}
	if m.OrderID != nil {
		id := *m.OrderID
		cp.OrderID = &id
	}
	return &cp
}

type MessageRepo struct {
	s *Store
}

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.byID[msg.ID]; ok {
		return repository.ErrDuplicate
	}
	// Same constraint as the database indexes: one system message per conversation.
	if msg.Type == domain.MessageTypeSystem {
		for _, m := range r.s.messages {
			if m.ConversationID == msg.ConversationID && m.Type == domain.MessageTypeSystem {
				return repository.ErrDuplicate
			}
		}
	}

	cp := copyMessage(msg)
	r.s.messages = append(r.s.messages, cp)
	r.s.byID[cp.ID] = cp
	return nil
}

func (r *MessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.byID[id]
	if !ok {
		return nil, nil
	}
	return copyMessage(m), nil
}

func samePair(m *domain.Message, pair [2]uuid.UUID) bool {
	return m.HasParticipant(pair[0]) && m.HasParticipant(pair[1])
}

// newestFirst sorts by (created_at, id) descending.
func newestFirst(a, b *domain.Message) int {
	switch {
	case b.Less(a):
		return -1
	case a.Less(b):
		return 1
	}
	return 0
}

func (r *MessageRepo) ListConversation(_ context.Context, conversationID string, pair [2]uuid.UUID, offset, limit int) ([]domain.Message, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*domain.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && samePair(m, pair) {
			matched = append(matched, m)
		}
	}
	slices.SortFunc(matched, newestFirst)

	total := int64(len(matched))
	offset = max(offset, 0)
	if offset >= len(matched) || limit <= 0 {
		return []domain.Message{}, total, nil
	}
	end := min(offset+limit, len(matched))

	out := make([]domain.Message, 0, end-offset)
	for _, m := range matched[offset:end] {
		out = append(out, *copyMessage(m))
	}
	return out, total, nil
}

func (r *MessageRepo) ListConversationsForUser(_ context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byConv := make(map[string]*domain.ConversationSummary)
	for _, m := range r.s.messages {
		if !m.HasParticipant(userID) {
			continue
		}
		sum, ok := byConv[m.ConversationID]
		if !ok {
			sum = &domain.ConversationSummary{ConversationID: m.ConversationID, LastMessage: *copyMessage(m)}
			if orderID, ok := conversation.OrderIDFromKey(m.ConversationID); ok {
				sum.IsOrderScoped = true
				sum.OrderID = &orderID
			}
			byConv[m.ConversationID] = sum
		} else if sum.LastMessage.Less(m) {
			sum.LastMessage = *copyMessage(m)
		}
		if m.RecipientID == userID && !m.IsRead {
			sum.UnreadCount++
		}
	}

	out := make([]domain.ConversationSummary, 0, len(byConv))
	for _, sum := range byConv {
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b domain.ConversationSummary) int {
		return newestFirst(&a.LastMessage, &b.LastMessage)
	})
	return out, nil
}

func (r *MessageRepo) MarkConversationRead(_ context.Context, conversationID string, userID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, m := range r.s.messages {
		if m.ConversationID != conversationID || m.RecipientID != userID || m.IsRead {
			continue
		}
		readAt := at
		m.IsRead = true
		m.ReadAt = &readAt
		n++
	}
	return n, nil
}

func (r *MessageRepo) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int64
	for _, m := range r.s.messages {
		if m.RecipientID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) HasSystemMessage(_ context.Context, conversationID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, m := range r.s.messages {
		if m.ConversationID == conversationID && m.Type == domain.MessageTypeSystem {
			return true, nil
		}
	}
	return false, nil
}

type UserRepo struct {
	s *Store
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

type OrderRepo struct {
	s *Store
}

func (r *OrderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *OrderRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uuid.UUID]*domain.Order, len(ids))
	for _, id := range ids {
		if o, ok := r.s.orders[id]; ok {
			cp := *o
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *OrderRepo) TouchLastActivity(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o, ok := r.s.orders[id]; ok {
		t := at
		o.LastActivityAt = &t
	}
	return nil
}
