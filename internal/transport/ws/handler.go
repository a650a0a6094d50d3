package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type MessageSender interface {
	Send(ctx context.Context, senderID uuid.UUID, path string, input service.SendMessageInput) (*service.SendResult, error)
}

type RoomAuthorizer interface {
	CanJoin(ctx context.Context, userID uuid.UUID, key string) error
}

// Options configures accepted connections.
type Options struct {
	Auth     Authenticator
	Messages MessageSender
	Rooms    RoomAuthorizer

	// OriginPatterns lists the allowed Origin hosts; "*" allows any.
	OriginPatterns []string
	SendRate       float64
	SendBurst      int
	MaxInFlight    int64

	Log *zap.Logger
}

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Browsers can't set headers on the upgrade, so ?token=xxx is accepted
// alongside the Authorization header.
func ServeWS(hub *Hub, opts *Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			tokenStr = strings.TrimSpace(r.Header.Get("Authorization"))
		}
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		user, err := opts.Auth.Authenticate(r.Context(), tokenStr)
		if err != nil {
			opts.Log.Debug("ws handshake rejected", zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			opts.Log.Warn("ws accept error", zap.Error(err))
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := NewClient(hub, conn, user, opts)
		if !hub.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		// Start read/write pumps in goroutines
		go client.WritePump()
		go client.ReadPump()
	}
}
