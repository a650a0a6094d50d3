package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.recipient_id, m.content, m.message_type,
	m.attachments, m.order_id, m.is_read, m.read_at, m.is_filtered, m.created_at`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encoding attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, content, message_type,
			attachments, order_id, is_read, read_at, is_filtered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Content, msg.Type,
		attachments, msg.OrderID, msg.IsRead, msg.ReadAt, msg.IsFiltered, msg.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = $1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) ListConversation(ctx context.Context, conversationID string, pair [2]uuid.UUID, offset, limit int) ([]domain.Message, int64, error) {
	const pairFilter = `m.conversation_id = $1
		AND ((m.sender_id = $2 AND m.recipient_id = $3) OR (m.sender_id = $3 AND m.recipient_id = $2))`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages m WHERE `+pairFilter,
		conversationID, pair[0], pair[1],
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM messages m
		WHERE %s
		ORDER BY m.created_at DESC, m.id DESC
		OFFSET %d LIMIT %d`, messageColumns, pairFilter, offset, limit)

	rows, err := r.pool.Query(ctx, query, conversationID, pair[0], pair[1])
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *msg)
	}
	return messages, total, rows.Err()
}

func (r *MessageRepo) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	query := `
		WITH mine AS (
			SELECT * FROM messages WHERE sender_id = $1 OR recipient_id = $1
		), latest AS (
			SELECT DISTINCT ON (conversation_id) *
			FROM mine
			ORDER BY conversation_id, created_at DESC, id DESC
		), unread AS (
			SELECT conversation_id,
				COUNT(*) FILTER (WHERE recipient_id = $1 AND NOT is_read) AS unread_count
			FROM mine
			GROUP BY conversation_id
		)
		SELECT ` + messageColumns + `, u.unread_count
		FROM latest m
		JOIN unread u ON u.conversation_id = m.conversation_id
		ORDER BY m.created_at DESC, m.id DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConversationSummary
	for rows.Next() {
		var sum domain.ConversationSummary
		msg, err := scanMessage(rows, &sum.UnreadCount)
		if err != nil {
			return nil, err
		}
		sum.ConversationID = msg.ConversationID
		sum.LastMessage = *msg
		if orderID, ok := conversation.OrderIDFromKey(msg.ConversationID); ok {
			sum.IsOrderScoped = true
			sum.OrderID = &orderID
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID string, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE messages SET is_read = TRUE, read_at = $3
		WHERE conversation_id = $1 AND recipient_id = $2 AND is_read = FALSE`
	tag, err := r.pool.Exec(ctx, query, conversationID, userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND is_read = FALSE`, userID,
	).Scan(&n)
	return n, err
}

func (r *MessageRepo) HasSystemMessage(ctx context.Context, conversationID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE conversation_id = $1 AND message_type = $2)`,
		conversationID, domain.MessageTypeSystem,
	).Scan(&exists)
	return exists, err
}

// scanMessage reads messageColumns followed by any extra destinations.
func scanMessage(row pgx.Row, extra ...any) (*domain.Message, error) {
	var msg domain.Message
	var attachments []byte
	dest := []any{
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.RecipientID, &msg.Content, &msg.Type,
		&attachments, &msg.OrderID, &msg.IsRead, &msg.ReadAt, &msg.IsFiltered, &msg.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	msg.Participants = conversation.Pair(msg.SenderID, msg.RecipientID)
	msg.Attachments = []domain.Attachment{}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("decoding attachments: %w", err)
		}
	}
	return &msg, nil
}
