package service

import "github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"

// Notifier broadcasts real-time events to connected clients.
type Notifier interface {
	NotifyNewMessage(msg *domain.MessageView)
}
