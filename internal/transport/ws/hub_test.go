package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/guard"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/service"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	send func(ctx context.Context, senderID uuid.UUID, path string, in service.SendMessageInput) (*service.SendResult, error)
}

func (f *fakeSender) Send(ctx context.Context, senderID uuid.UUID, path string, in service.SendMessageInput) (*service.SendResult, error) {
	return f.send(ctx, senderID, path, in)
}

type fakeRooms struct {
	allowed map[string]bool
}

func (f *fakeRooms) CanJoin(_ context.Context, _ uuid.UUID, key string) error {
	if f.allowed[key] {
		return nil
	}
	return conversation.ErrNotParticipant
}

type fakeAuth struct{}

func (fakeAuth) Authenticate(context.Context, string) (*domain.User, error) {
	return nil, service.ErrInvalidToken
}

type recordingRelay struct {
	mu   sync.Mutex
	envs []*Envelope
	err  error
}

func (r *recordingRelay) Publish(_ context.Context, env *Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return r.err
}

func testOptions() *Options {
	return &Options{
		Messages:    &fakeSender{},
		Rooms:       &fakeRooms{allowed: map[string]bool{}},
		SendRate:    100,
		SendBurst:   100,
		MaxInFlight: 4,
		Log:         zap.NewNop(),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, name string, opts *Options) *Client {
	t.Helper()
	user := &domain.User{ID: uuid.New(), Name: name, IsActive: true}
	return connectAs(t, hub, user, opts)
}

func connectAs(t *testing.T, hub *Hub, user *domain.User, opts *Options) *Client {
	t.Helper()
	c := NewClient(hub, nil, user, opts)
	require.True(t, hub.Register(c))
	return c
}

func recv(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "client was closed")
		var evt Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return &evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustEvent(t *testing.T, eventType string, payload any) *Event {
	t.Helper()
	evt, err := NewEvent(eventType, payload)
	require.NoError(t, err)
	return evt
}

func TestPublish_DeliversToRoomMembersOnly(t *testing.T) {
	hub := startHub(t)
	opts := testOptions()
	member := connect(t, hub, "Asha", opts)
	outsider := connect(t, hub, "Meera", opts)
	member.Join("order_1")

	hub.Publish(context.Background(), []string{"order_1"}, mustEvent(t, EventTypeNewMessage, map[string]string{"id": "m1"}), nil)

	assert.Equal(t, EventTypeNewMessage, recv(t, member).Type)
	assertSilent(t, outsider)
}

func TestPublish_OncePerConnectionAcrossRooms(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, "Asha", testOptions())
	c.Join("order_1")

	hub.Publish(context.Background(), []string{UserRoom(c.userID), "order_1"}, mustEvent(t, EventTypeNewMessage, nil), nil)

	recv(t, c)
	assertSilent(t, c)
}

func TestPublish_EveryConnectionOfAUser(t *testing.T) {
	hub := startHub(t)
	opts := testOptions()
	user := &domain.User{ID: uuid.New(), Name: "Ravi", IsActive: true}
	phone := connectAs(t, hub, user, opts)
	laptop := connectAs(t, hub, user, opts)

	hub.Publish(context.Background(), []string{UserRoom(user.ID)}, mustEvent(t, EventTypeNewMessage, nil), nil)

	recv(t, phone)
	recv(t, laptop)
}

func TestPublish_PreservesOrderWithinRoom(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, "Asha", testOptions())
	c.Join("order_1")

	for i := range 5 {
		hub.Publish(context.Background(), []string{"order_1"}, mustEvent(t, EventTypeNewMessage, map[string]int{"n": i}), nil)
	}
	for i := range 5 {
		var p map[string]int
		require.NoError(t, json.Unmarshal(recv(t, c).Payload, &p))
		assert.Equal(t, i, p["n"])
	}
}

func TestPublish_EvictsSlowConsumer(t *testing.T) {
	hub := startHub(t)
	slow := connect(t, hub, "Asha", testOptions())
	for range sendBufSize {
		slow.send <- []byte(`{}`)
	}

	hub.Publish(context.Background(), []string{UserRoom(slow.userID)}, mustEvent(t, EventTypeNewMessage, nil), nil)

	// Reading before the hub has delivered would free a slot.
	require.Eventually(t, func() bool {
		slow.sendMu.Lock()
		defer slow.sendMu.Unlock()
		return slow.closed
	}, 2*time.Second, 10*time.Millisecond, "slow client was not disconnected")

	drained := 0
	for range slow.send {
		drained++
	}
	assert.Equal(t, sendBufSize, drained)
}

func TestPublish_GoesThroughRelay(t *testing.T) {
	hub := startHub(t)
	relay := &recordingRelay{}
	hub.SetRelay(relay)
	c := connect(t, hub, "Asha", testOptions())

	hub.Publish(context.Background(), []string{UserRoom(c.userID)}, mustEvent(t, EventTypeNewMessage, nil), nil)

	assertSilent(t, c)
	require.Len(t, relay.envs, 1)
	assert.Equal(t, []string{UserRoom(c.userID)}, relay.envs[0].Rooms)

	hub.Deliver(relay.envs[0])
	assert.Equal(t, EventTypeNewMessage, recv(t, c).Type)
}

func TestPublish_RelayFailureDeliversLocally(t *testing.T) {
	hub := startHub(t)
	hub.SetRelay(&recordingRelay{err: errors.New("redis down")})
	c := connect(t, hub, "Asha", testOptions())

	hub.Publish(context.Background(), []string{UserRoom(c.userID)}, mustEvent(t, EventTypeNewMessage, nil), nil)

	assert.Equal(t, EventTypeNewMessage, recv(t, c).Type)
}

func TestHandleTyping_RelaysToRecipientNotSender(t *testing.T) {
	hub := startHub(t)
	opts := testOptions()
	client := connect(t, hub, "Asha", opts)
	freelancer := connect(t, hub, "Ravi", opts)

	payload, _ := json.Marshal(TypingPayload{RecipientID: freelancer.userID.String()})
	client.handleEvent(&Event{Type: EventTypeTypingStart, Payload: payload})

	evt := recv(t, freelancer)
	assert.Equal(t, EventTypeUserTyping, evt.Type)
	var p UserTypingPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, client.userID, p.UserID)
	assert.Equal(t, "Asha", p.UserName)
	assertSilent(t, client)

	client.handleEvent(&Event{Type: EventTypeTypingStop, Payload: payload})
	assert.Equal(t, EventTypeUserStoppedTyping, recv(t, freelancer).Type)
}

func TestHandleTyping_ConversationRoomRequiresJoin(t *testing.T) {
	hub := startHub(t)
	opts := testOptions()
	typist := connect(t, hub, "Meera", opts)
	listener := connect(t, hub, "Ravi", opts)
	listener.Join("order_1")

	payload, _ := json.Marshal(TypingPayload{ConversationID: "order_1"})
	typist.handleEvent(&Event{Type: EventTypeTypingStart, Payload: payload})

	evt := recv(t, typist)
	assert.Equal(t, EventTypeMessageError, evt.Type)
	assertSilent(t, listener)
}

func TestJoinConversation(t *testing.T) {
	hub := startHub(t)
	orderID := uuid.New()
	opts := testOptions()
	opts.Rooms = &fakeRooms{allowed: map[string]bool{conversation.OrderKey(orderID): true}}
	c := connect(t, hub, "Asha", opts)

	payload, _ := json.Marshal(ConversationPayload{OrderID: &orderID})
	c.handleEvent(&Event{Type: EventTypeJoinConversation, Payload: payload})
	assert.True(t, c.InRoom(conversation.OrderKey(orderID)))

	payload, _ = json.Marshal(ConversationPayload{ConversationID: "someone_else"})
	c.handleEvent(&Event{Type: EventTypeJoinConversation, Payload: payload})
	assert.False(t, c.InRoom("someone_else"))

	var p MessageErrorPayload
	evt := recv(t, c)
	require.Equal(t, EventTypeMessageError, evt.Type)
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "FORBIDDEN", p.Code)

	payload, _ = json.Marshal(ConversationPayload{OrderID: &orderID})
	c.handleEvent(&Event{Type: EventTypeLeaveConversation, Payload: payload})
	assert.False(t, c.InRoom(conversation.OrderKey(orderID)))
}

func TestLeave_KeepsPersonalRoom(t *testing.T) {
	c := NewClient(NewHub(zap.NewNop()), nil, &domain.User{ID: uuid.New()}, testOptions())
	c.Leave(UserRoom(c.userID))
	assert.True(t, c.InRoom(UserRoom(c.userID)))
}

func TestSendMessage_AcksAndFlags(t *testing.T) {
	hub := startHub(t)
	msgID := uuid.New()
	opts := testOptions()
	opts.Messages = &fakeSender{send: func(_ context.Context, _ uuid.UUID, path string, in service.SendMessageInput) (*service.SendResult, error) {
		assert.Equal(t, "ws", path)
		assert.Equal(t, "what is your number", in.Content)
		return &service.SendResult{
			Message: &domain.MessageView{Message: domain.Message{ID: msgID, IsFiltered: true}},
			Warning: guard.Warning,
		}, nil
	}}
	c := connect(t, hub, "Asha", opts)

	payload, _ := json.Marshal(SendMessagePayload{RecipientID: uuid.NewString(), Content: "what is your number"})
	c.handleEvent(&Event{Type: EventTypeSendMessage, Payload: payload})

	sent := recv(t, c)
	require.Equal(t, EventTypeMessageSent, sent.Type)
	var ack MessageSentPayload
	require.NoError(t, json.Unmarshal(sent.Payload, &ack))
	assert.Equal(t, msgID, ack.MessageID)

	filtered := recv(t, c)
	require.Equal(t, EventTypeMessageFiltered, filtered.Type)
	var flag MessageFilteredPayload
	require.NoError(t, json.Unmarshal(filtered.Payload, &flag))
	assert.Equal(t, guard.Warning, flag.Warning)
}

func TestSendMessage_ErrorGoesToSender(t *testing.T) {
	hub := startHub(t)
	opts := testOptions()
	opts.Messages = &fakeSender{send: func(context.Context, uuid.UUID, string, service.SendMessageInput) (*service.SendResult, error) {
		return nil, &store.PolicyError{Reason: guard.ReasonPhone}
	}}
	c := connect(t, hub, "Asha", opts)

	payload, _ := json.Marshal(SendMessagePayload{RecipientID: uuid.NewString(), Content: "call 9876543210"})
	c.handleEvent(&Event{Type: EventTypeSendMessage, Payload: payload})

	evt := recv(t, c)
	require.Equal(t, EventTypeMessageError, evt.Type)
	var p MessageErrorPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "POLICY_VIOLATION", p.Code)
}

func TestSendMessage_RateLimited(t *testing.T) {
	hub := startHub(t)
	release := make(chan struct{})
	opts := testOptions()
	opts.SendRate = 0.001
	opts.SendBurst = 1
	opts.Messages = &fakeSender{send: func(context.Context, uuid.UUID, string, service.SendMessageInput) (*service.SendResult, error) {
		<-release
		return nil, domain.ErrValidation
	}}
	c := connect(t, hub, "Asha", opts)
	defer close(release)

	payload, _ := json.Marshal(SendMessagePayload{RecipientID: uuid.NewString(), Content: "hi"})
	c.handleEvent(&Event{Type: EventTypeSendMessage, Payload: payload})
	c.handleEvent(&Event{Type: EventTypeSendMessage, Payload: payload})

	evt := recv(t, c)
	var p MessageErrorPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "RATE_LIMITED", p.Code)
}

func TestUnknownEvent(t *testing.T) {
	c := NewClient(NewHub(zap.NewNop()), nil, &domain.User{ID: uuid.New()}, testOptions())
	c.handleEvent(&Event{Type: "bogus"})
	assert.Equal(t, EventTypeMessageError, recv(t, c).Type)

	c.handleEvent(&Event{Type: EventTypePing})
	assert.Equal(t, EventTypePong, recv(t, c).Type)
}

func TestMessageRooms(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	orderID := uuid.New()

	order := &domain.Message{
		SenderID:       client,
		RecipientID:    freelancer,
		OrderID:        &orderID,
		ConversationID: conversation.OrderKey(orderID),
	}
	assert.ElementsMatch(t, []string{UserRoom(client), UserRoom(freelancer), conversation.OrderKey(orderID)}, messageRooms(order))

	direct := &domain.Message{
		SenderID:       client,
		RecipientID:    freelancer,
		ConversationID: conversation.PairKey(client, freelancer),
	}
	assert.Len(t, messageRooms(direct), 3)
}

func TestServeWS_RejectsWithoutValidToken(t *testing.T) {
	opts := testOptions()
	opts.Auth = fakeAuth{}
	handler := ServeWS(NewHub(zap.NewNop()), opts)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
