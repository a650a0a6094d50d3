package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/guard"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendOrderScopedMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID: conversation.UnknownRecipient,
		Content:     "Let's discuss the logo colors",
		OrderID:     f.orderID(),
	})
	require.NoError(t, err)

	msg := res.Message
	assert.Equal(t, conversation.OrderKey(f.order.ID), msg.ConversationID)
	assert.Equal(t, f.freelancer.ID, msg.RecipientID)
	assert.False(t, msg.IsFiltered)
	assert.Empty(t, res.Warning)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Asha", msg.Sender.Name)
	require.NotNil(t, msg.Order)
	assert.Equal(t, f.order.Number, msg.Order.Number)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, msg.ID, sent[0].ID)

	order, err := f.db.Orders().GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	require.NotNil(t, order.LastActivityAt)
	assert.True(t, order.LastActivityAt.Equal(msg.CreatedAt))
}

func TestSendHardRejectedMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID: conversation.UnknownRecipient,
		Content:     "call me on 9876543210",
		OrderID:     f.orderID(),
	})
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)

	n, err := f.messages.UnreadCount(ctx, f.freelancer.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.notifier.sent())
}

func TestSendSoftFlaggedMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.messages.Send(ctx, f.client.ID, metrics.PathWebsocket, SendMessageInput{
		RecipientID: conversation.UnknownRecipient,
		Content:     "what's your whatsapp",
		OrderID:     f.orderID(),
	})
	require.NoError(t, err)
	assert.True(t, res.Message.IsFiltered)
	assert.Equal(t, guard.Warning, res.Warning)
	assert.Equal(t, "what's your whatsapp", res.Message.Content)
	assert.Len(t, f.notifier.sent(), 1)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.messages.Send(context.Background(), f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID: f.freelancer.ID.String(),
		Content:     "   ",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "content")
	assert.Empty(t, f.notifier.sent())
}

func TestSendRejectsStrangerOnOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.messages.Send(context.Background(), f.stranger.ID, metrics.PathREST, SendMessageInput{
		RecipientID: conversation.UnknownRecipient,
		Content:     "hello",
		OrderID:     f.orderID(),
	})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	missing := uuid.New()
	_, err = f.messages.Send(context.Background(), f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID: conversation.UnknownRecipient,
		Content:     "hello",
		OrderID:     &missing,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendWithIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := SendMessageInput{
		RecipientID:    f.freelancer.ID.String(),
		Content:        "first draft is ready",
		IdempotencyKey: "c1b7d3a0",
	}

	first, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, input)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Message.ID, second.Message.ID)

	assert.Len(t, f.notifier.sent(), 1)
	n, err := f.messages.UnreadCount(ctx, f.freelancer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The same key from another sender is a different request.
	other, err := f.messages.Send(ctx, f.freelancer.ID, metrics.PathREST, SendMessageInput{
		RecipientID:    f.client.ID.String(),
		Content:        "thanks",
		IdempotencyKey: "c1b7d3a0",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.Message.ID, other.Message.ID)
}

func TestFailedSendReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID:    f.freelancer.ID.String(),
		Content:        "see https://example.com",
		IdempotencyKey: "k-1",
	})
	require.ErrorIs(t, err, domain.ErrPolicyViolation)

	res, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID:    f.freelancer.ID.String(),
		Content:        "see the attached portfolio",
		IdempotencyKey: "k-1",
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestGetConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, content := range []string{"one", "two", "three"} {
		from, to := f.client.ID, f.freelancer.ID
		if i == 1 {
			from, to = to, from
		}
		_, err := f.messages.Send(ctx, from, metrics.PathREST, SendMessageInput{RecipientID: to.String(), Content: content})
		require.NoError(t, err)
	}
	_, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID: conversation.UnknownRecipient, Content: "order chat", OrderID: f.orderID(),
	})
	require.NoError(t, err)

	page, err := f.messages.GetConversation(ctx, f.freelancer.ID, f.client.ID.String(), nil, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, conversation.PairKey(f.client.ID, f.freelancer.ID), page.ConversationID)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "one", page.Messages[0].Content)
	assert.Equal(t, "three", page.Messages[2].Content)
	assert.Equal(t, int64(3), page.Pagination.Total)
	require.NotNil(t, page.Messages[1].Sender)
	assert.Equal(t, "Ravi", page.Messages[1].Sender.Name)

	orderPage, err := f.messages.GetConversation(ctx, f.freelancer.ID, conversation.UnknownRecipient, f.orderID(), 1, 10)
	require.NoError(t, err)
	require.Len(t, orderPage.Messages, 1)
	assert.Equal(t, "order chat", orderPage.Messages[0].Content)

	_, err = f.messages.GetConversation(ctx, f.stranger.ID, conversation.UnknownRecipient, f.orderID(), 1, 10)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestListConversationsAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{RecipientID: f.freelancer.ID.String(), Content: "hi"})
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{
		RecipientID: conversation.UnknownRecipient, Content: "about the order", OrderID: f.orderID(),
	})
	require.NoError(t, err)

	list, err := f.messages.ListConversations(ctx, f.freelancer.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsOrderScoped)
	require.NotNil(t, list[0].Order)
	assert.Equal(t, f.order.Number, list[0].Order.Number)
	require.NotNil(t, list[0].OtherUser)
	assert.Equal(t, f.client.ID, list[0].OtherUser.ID)
	assert.Equal(t, int64(1), list[1].UnreadCount)

	key := conversation.PairKey(f.client.ID, f.freelancer.ID)
	_, err = f.messages.MarkRead(ctx, f.stranger.ID, key)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	n, err := f.messages.MarkRead(ctx, f.freelancer.ID, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.messages.MarkRead(ctx, f.freelancer.ID, key)
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err := f.messages.UnreadCount(ctx, f.freelancer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	_, err = f.messages.MarkRead(ctx, f.freelancer.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetMessageHidesOtherConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.messages.Send(ctx, f.client.ID, metrics.PathREST, SendMessageInput{RecipientID: f.freelancer.ID.String(), Content: "hi"})
	require.NoError(t, err)

	got, err := f.messages.GetMessage(ctx, f.freelancer.ID, res.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Message.ID, got.ID)

	_, err = f.messages.GetMessage(ctx, f.stranger.ID, res.Message.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
