package ws

import (
	"context"
	"slices"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"go.uber.org/zap"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
	log *zap.Logger
}

func NewHubNotifier(hub *Hub, log *zap.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, log: log}
}

// NotifyNewMessage fans msg out to both personal rooms, the conversation
// room and, for order messages, the order room.
func (n *HubNotifier) NotifyNewMessage(msg *domain.MessageView) {
	evt, err := NewEvent(EventTypeNewMessage, msg)
	if err != nil {
		n.log.Error("ws notifier: marshal error", zap.Error(err))
		return
	}
	n.hub.Publish(context.Background(), messageRooms(&msg.Message), evt, nil)
}

func messageRooms(msg *domain.Message) []string {
	rooms := []string{
		UserRoom(msg.SenderID),
		UserRoom(msg.RecipientID),
		msg.ConversationID,
	}
	if msg.OrderID != nil {
		rooms = append(rooms, conversation.OrderKey(*msg.OrderID))
	}
	slices.Sort(rooms)
	return slices.Compact(rooms)
}
