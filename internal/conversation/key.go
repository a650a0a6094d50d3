// Package conversation derives canonical conversation keys and resolves who
// a user is talking to.
package conversation

import (
	"strings"

	"github.com/google/uuid"
)

const (
	orderPrefix = "order_"
	separator   = "_"
)

// OrderKey is the only valid key for an order-scoped conversation.
func OrderKey(orderID uuid.UUID) string {
	return orderPrefix + orderID.String()
}

// PairKey returns the general conversation key for two users. The result does
// not depend on argument order.
func PairKey(a, b uuid.UUID) string {
	p := Pair(a, b)
	return p[0].String() + separator + p[1].String()
}

// Pair returns the two users in the order PairKey joins them.
func Pair(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() > b.String() {
		return [2]uuid.UUID{b, a}
	}
	return [2]uuid.UUID{a, b}
}

// Key picks the order key when orderID is set and the pair key otherwise.
func Key(a, b uuid.UUID, orderID *uuid.UUID) string {
	if orderID != nil {
		return OrderKey(*orderID)
	}
	return PairKey(a, b)
}

// OrderIDFromKey extracts the order reference from an order-scoped key.
func OrderIDFromKey(key string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(key, orderPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PairFromKey splits a general conversation key into its two users.
func PairFromKey(key string) (uuid.UUID, uuid.UUID, bool) {
	left, right, ok := strings.Cut(key, separator)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	a, err := uuid.Parse(left)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	b, err := uuid.Parse(right)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	// Reject keys that were not produced by PairKey.
	if PairKey(a, b) != key {
		return uuid.Nil, uuid.Nil, false
	}
	return a, b, true
}
