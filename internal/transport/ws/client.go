package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/metrics"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	sendTimeout    = 15 * time.Second
	joinTimeout    = 5 * time.Second
	maxMessageSize = 32 << 10
	sendBufSize    = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   uuid.UUID
	userName string

	messages MessageSender
	rooms    RoomAuthorizer
	limiter  *rate.Limiter
	inflight *semaphore.Weighted
	log      *zap.Logger

	// joined tracks the rooms this connection listens to.
	joined map[string]struct{}
	mu     sync.RWMutex

	send   chan []byte
	sendMu sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(hub *Hub, conn *websocket.Conn, user *domain.User, opts *Options) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   user.ID,
		userName: user.Name,
		messages: opts.Messages,
		rooms:    opts.Rooms,
		limiter:  rate.NewLimiter(rate.Limit(opts.SendRate), opts.SendBurst),
		inflight: semaphore.NewWeighted(max(opts.MaxInFlight, 1)),
		log:      opts.Log.With(zap.String("user_id", user.ID.String())),
		joined:   map[string]struct{}{UserRoom(user.ID): {}},
		send:     make(chan []byte, sendBufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// InRoom reports whether this connection has joined room.
func (c *Client) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.joined[room]
	return ok
}

func (c *Client) InAnyRoom(rooms []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, room := range rooms {
		if _, ok := c.joined[room]; ok {
			return true
		}
	}
	return false
}

func (c *Client) Join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[room] = struct{}{}
}

// Leave removes a room. The personal room cannot be left.
func (c *Client) Leave(room string) {
	if room == UserRoom(c.userID) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, room)
}

// trySend queues data without blocking. It reports false only when the
// buffer is full; a closed client swallows the data.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads messages from the WebSocket and routes them.
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(c.ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug("ws client closed connection")
			} else {
				c.log.Debug("ws read error", zap.Error(err))
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug("ws write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug("ws ping error", zap.Error(err))
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeJoinConversation:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid join_conversation payload")
			return
		}
		c.joinRooms(p.rooms())

	case EventTypeLeaveConversation:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid leave_conversation payload")
			return
		}
		for _, room := range p.rooms() {
			c.Leave(room)
		}

	case EventTypeSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid send_message payload")
			return
		}
		if !c.limiter.Allow() {
			c.sendError("RATE_LIMITED", "sending too fast, slow down")
			return
		}
		if !c.inflight.TryAcquire(1) {
			c.sendError("TOO_MANY_IN_FLIGHT", "wait for earlier messages to be confirmed")
			return
		}
		go func() {
			defer c.inflight.Release(1)
			c.handleSend(p)
		}()

	case EventTypeTypingStart, EventTypeTypingStop:
		var p TypingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid typing payload")
			return
		}
		if !c.hub.HandleTyping(c.ctx, c, event.Type, p) {
			c.sendError("INVALID_PAYLOAD", "recipient_id or a joined conversation_id required for typing events")
		}

	case EventTypePing:
		c.sendEvent(EventTypePong, nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (p ConversationPayload) rooms() []string {
	var rooms []string
	if p.ConversationID != "" {
		rooms = append(rooms, p.ConversationID)
	}
	if p.OrderID != nil {
		if key := conversation.OrderKey(*p.OrderID); key != p.ConversationID {
			rooms = append(rooms, key)
		}
	}
	return rooms
}

// joinRooms joins all of rooms or, if any is refused, none of them.
func (c *Client) joinRooms(rooms []string) {
	if len(rooms) == 0 {
		c.sendError("INVALID_PAYLOAD", "conversation_id or order_id required")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, joinTimeout)
	defer cancel()
	for _, room := range rooms {
		if err := c.rooms.CanJoin(ctx, c.userID, room); err != nil {
			c.log.Debug("ws join refused", zap.String("room", room), zap.Error(err))
			c.sendError(errorCode(err))
			return
		}
	}
	for _, room := range rooms {
		c.Join(room)
	}
}

// handleSend runs one send to completion even if the connection drops
// meanwhile, so a stored message is still fanned out.
func (c *Client) handleSend(p SendMessagePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	res, err := c.messages.Send(ctx, c.userID, metrics.PathWebsocket, service.SendMessageInput{
		RecipientID: p.RecipientID,
		Content:     p.Content,
		MessageType: p.MessageType,
		Attachments: p.Attachments,
		OrderID:     p.OrderID,
	})
	if err != nil {
		code, msg := errorCode(err)
		if code == "INTERNAL_ERROR" {
			c.log.Error("ws send failed", zap.Error(err))
		}
		c.sendError(code, msg)
		return
	}

	c.sendEvent(EventTypeMessageSent, MessageSentPayload{MessageID: res.Message.ID})
	if res.Warning != "" {
		c.sendEvent(EventTypeMessageFiltered, MessageFilteredPayload{
			MessageID: res.Message.ID,
			Warning:   res.Warning,
		})
	}
}

// errorCode maps a failure to the code and text the sender sees.
func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrPolicyViolation):
		return "POLICY_VIOLATION", "message blocked: sharing contact details or external links is not allowed"
	case errors.Is(err, domain.ErrValidation):
		return "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrNotAuthorized):
		return "FORBIDDEN", err.Error()
	case errors.Is(err, domain.ErrConflict):
		return "CONFLICT", err.Error()
	default:
		return "INTERNAL_ERROR", "failed to send message"
	}
}

func (c *Client) sendEvent(eventType string, payload any) {
	var evt *Event
	if payload == nil {
		evt = &Event{Type: eventType, Timestamp: time.Now().Unix()}
	} else {
		var err error
		if evt, err = NewEvent(eventType, payload); err != nil {
			return
		}
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventTypeMessageError, MessageErrorPayload{Code: code, Error: message})
}
