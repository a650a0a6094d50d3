package ws

import (
	"context"
	"encoding/json"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Envelope is one fan-out: an encoded event and the rooms it goes to.
type Envelope struct {
	Rooms   []string        `json:"rooms"`
	Exclude *uuid.UUID      `json:"exclude,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Relay carries envelopes to every instance, this one included.
type Relay interface {
	Publish(ctx context.Context, env *Envelope) error
}

// Hub tracks the connections of this instance and delivers envelopes to the
// ones that are in a target room. All connections of a user share the
// user's personal room.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	deliver    chan *Envelope
	quit       chan struct{}

	relay Relay
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan *Envelope, 256),
		quit:       make(chan struct{}),
		log:        log,
	}
}

// SetRelay routes Publish through r instead of delivering locally.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Run starts the Hub's main event loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.quit)
		for client := range h.clients {
			h.remove(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			metrics.Connections.Inc()
			h.log.Debug("ws client connected",
				zap.String("user_id", client.userID.String()),
				zap.Int("connections", len(h.clients)),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.log.Debug("ws client disconnected",
					zap.String("user_id", client.userID.String()),
					zap.Int("connections", len(h.clients)),
				)
			}

		case env := <-h.deliver:
			for client := range h.clients {
				if env.Exclude != nil && client.userID == *env.Exclude {
					continue
				}
				if !client.InAnyRoom(env.Rooms) {
					continue
				}
				if !client.trySend(env.Data) {
					// Client buffer full - disconnect
					metrics.DroppedDeliveries.Inc()
					h.log.Warn("ws client too slow, disconnecting", zap.String("user_id", client.userID.String()))
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	client.close()
	metrics.Connections.Dec()
}

// Register adds a connection. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Deliver queues env for the connections of this instance.
func (h *Hub) Deliver(env *Envelope) {
	select {
	case h.deliver <- env:
	case <-h.quit:
	}
}

// Publish sends evt to every connection in any of rooms, skipping the
// connections of exclude. A connection in several of the rooms gets the event
// once per Publish; across Publish calls clients de-duplicate by id.
func (h *Hub) Publish(ctx context.Context, rooms []string, evt *Event, exclude *uuid.UUID) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("ws hub: marshal error", zap.Error(err))
		return
	}
	env := &Envelope{Rooms: rooms, Exclude: exclude, Data: data}

	if h.relay != nil {
		err := h.relay.Publish(ctx, env)
		if err == nil {
			return
		}
		h.log.Warn("ws relay publish failed, delivering locally", zap.Error(err))
	}
	h.Deliver(env)
}

// HandleTyping relays a typing change to the recipient's personal room and,
// when the sender has joined it, to the conversation room.
func (h *Hub) HandleTyping(ctx context.Context, sender *Client, eventType string, p TypingPayload) bool {
	var rooms []string
	if recipient, err := uuid.Parse(p.RecipientID); err == nil && recipient != sender.userID {
		rooms = append(rooms, UserRoom(recipient))
	}
	if p.ConversationID != "" && sender.InRoom(p.ConversationID) {
		rooms = append(rooms, p.ConversationID)
	}
	if len(rooms) == 0 {
		return false
	}

	outType := EventTypeUserTyping
	if eventType == EventTypeTypingStop {
		outType = EventTypeUserStoppedTyping
	}
	evt, err := NewEvent(outType, UserTypingPayload{
		UserID:         sender.userID,
		UserName:       sender.userName,
		ConversationID: p.ConversationID,
	})
	if err != nil {
		return false
	}

	h.Publish(ctx, rooms, evt, &sender.userID)
	return true
}
