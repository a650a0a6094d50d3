package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/idempotency"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository/memory"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu    sync.Mutex
	views []*domain.MessageView
}

func (n *recordingNotifier) NotifyNewMessage(msg *domain.MessageView) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.views = append(n.views, msg)
}

func (n *recordingNotifier) sent() []*domain.MessageView {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.MessageView(nil), n.views...)
}

type fixture struct {
	db         *memory.Store
	store      *store.MessageStore
	messages   *MessageService
	bridge     *OrderEventBridge
	notifier   *recordingNotifier
	client     *domain.User
	freelancer *domain.User
	stranger   *domain.User
	order      *domain.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := memory.NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := func(name, role string) *domain.User {
		u := &domain.User{ID: uuid.New(), Email: name + "@servepe.test", Name: name, Role: role, IsActive: true, CreatedAt: now, UpdatedAt: now}
		db.PutUser(u)
		return u
	}
	client := user("Asha", "client")
	freelancer := user("Ravi", "freelancer")
	stranger := user("Meera", "freelancer")

	freelancerID := freelancer.ID
	order := &domain.Order{
		ID:           uuid.New(),
		Number:       "ORD-1741234567890",
		ClientID:     client.ID,
		FreelancerID: &freelancerID,
		Status:       domain.OrderStatusPending,
		CreatedAt:    now,
	}
	db.PutOrder(order)

	st := store.New(db.Messages())
	var tick atomic.Int64
	st.SetClock(func() time.Time {
		return now.Add(time.Duration(tick.Add(1)) * time.Second)
	})

	assembler := NewAssembler(db.Users(), db.Orders())
	notifier := &recordingNotifier{}
	log := zap.NewNop()

	messages := NewMessageService(st, conversation.NewResolver(db.Orders()), db.Orders(), assembler, log)
	messages.SetNotifier(notifier)
	messages.SetIdempotencyStore(idempotency.NewMemoryStore(time.Hour))

	bridge := NewOrderEventBridge(db.Orders(), st, assembler, log)
	bridge.SetNotifier(notifier)

	return &fixture{
		db:         db,
		store:      st,
		messages:   messages,
		bridge:     bridge,
		notifier:   notifier,
		client:     client,
		freelancer: freelancer,
		stranger:   stranger,
		order:      order,
	}
}

func (f *fixture) orderID() *uuid.UUID {
	id := f.order.ID
	return &id
}
