// Package idempotency remembers client-supplied request keys for a bounded
// time so a retried send returns the message created by the first attempt.
package idempotency

import (
	"context"
	"fmt"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/google/uuid"
)

// ErrInFlight is returned by Reserve while another request holds the key.
var ErrInFlight = fmt.Errorf("%w: a request with this idempotency key is still in progress", domain.ErrConflict)

// Result of a Reserve call. Reserved is true when the caller now owns the
// key; otherwise MessageID is the message stored by the earlier request.
type Result struct {
	Reserved  bool
	MessageID uuid.UUID
}

type Store interface {
	Reserve(ctx context.Context, key string) (Result, error)
	Complete(ctx context.Context, key string, messageID uuid.UUID) error
	Release(ctx context.Context, key string) error
}

// SendKey scopes a client key to its sender so users cannot collide.
func SendKey(senderID uuid.UUID, clientKey string) string {
	return "idem:send:" + senderID.String() + ":" + clientKey
}
