// Package events consumes order lifecycle events published by the order
// service.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrMalformedEvent = errors.New("malformed order event")

// StatusChangeHandler is implemented by service.OrderEventBridge.
type StatusChangeHandler interface {
	HandleStatusChange(ctx context.Context, evt domain.OrderStatusChanged)
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type OrderConsumer struct {
	reader  messageReader
	handler StatusChangeHandler
	log     *zap.Logger
}

func NewOrderConsumer(brokers []string, topic, groupID string, handler StatusChangeHandler, log *zap.Logger) *OrderConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &OrderConsumer{reader: r, handler: handler, log: log}
}

// Run reads events until ctx is done. Messages are handled one at a time so
// the transitions of one order reach the handler in partition order.
func (c *OrderConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		evt, err := DecodeStatusChange(m.Value)
		if err != nil {
			c.log.Warn("skipping order event",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
			continue
		}
		c.handler.HandleStatusChange(ctx, *evt)
	}
}

func (c *OrderConsumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// DecodeStatusChange parses an order status-change event.
func DecodeStatusChange(data []byte) (*domain.OrderStatusChanged, error) {
	var evt domain.OrderStatusChanged
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if evt.OrderID == uuid.Nil {
		return nil, fmt.Errorf("%w: order_id is required", ErrMalformedEvent)
	}
	if evt.Status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrMalformedEvent)
	}
	return &evt, nil
}
