package mongodb

import (
	"fmt"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/google/uuid"
)

// Documents keep ids as canonical uuid strings so they stay readable in the
// shell and sort the same way as uuid.UUID.String.

type attachmentDoc struct {
	Name     string `bson:"name"`
	URL      string `bson:"url"`
	Size     int64  `bson:"size"`
	MimeType string `bson:"mime_type"`
}

type messageDoc struct {
	ID             string          `bson:"_id"`
	ConversationID string          `bson:"conversation_id"`
	Participants   []string        `bson:"participants"`
	Sender         string          `bson:"sender"`
	Recipient      string          `bson:"recipient"`
	Content        string          `bson:"content"`
	MessageType    string          `bson:"message_type"`
	Attachments    []attachmentDoc `bson:"attachments"`
	OrderID        *string         `bson:"order_id,omitempty"`
	IsRead         bool            `bson:"is_read"`
	ReadAt         *time.Time      `bson:"read_at,omitempty"`
	IsFiltered     bool            `bson:"is_filtered"`
	CreatedAt      time.Time       `bson:"created_at"`
}

func toMessageDoc(m *domain.Message) messageDoc {
	doc := messageDoc{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID,
		Participants:   []string{m.Participants[0].String(), m.Participants[1].String()},
		Sender:         m.SenderID.String(),
		Recipient:      m.RecipientID.String(),
		Content:        m.Content,
		MessageType:    m.Type,
		Attachments:    make([]attachmentDoc, 0, len(m.Attachments)),
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		IsFiltered:     m.IsFiltered,
		CreatedAt:      m.CreatedAt,
	}
	for _, a := range m.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDoc(a))
	}
	if m.OrderID != nil {
		s := m.OrderID.String()
		doc.OrderID = &s
	}
	return doc
}

func (d *messageDoc) toDomain() (*domain.Message, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding message id: %w", err)
	}
	sender, err := uuid.Parse(d.Sender)
	if err != nil {
		return nil, fmt.Errorf("decoding sender: %w", err)
	}
	recipient, err := uuid.Parse(d.Recipient)
	if err != nil {
		return nil, fmt.Errorf("decoding recipient: %w", err)
	}

	m := &domain.Message{
		ID:             id,
		ConversationID: d.ConversationID,
		Participants:   conversation.Pair(sender, recipient),
		SenderID:       sender,
		RecipientID:    recipient,
		Content:        d.Content,
		Type:           d.MessageType,
		Attachments:    make([]domain.Attachment, 0, len(d.Attachments)),
		IsRead:         d.IsRead,
		ReadAt:         d.ReadAt,
		IsFiltered:     d.IsFiltered,
		CreatedAt:      d.CreatedAt,
	}
	for _, a := range d.Attachments {
		m.Attachments = append(m.Attachments, domain.Attachment(a))
	}
	if d.OrderID != nil {
		orderID, err := uuid.Parse(*d.OrderID)
		if err != nil {
			return nil, fmt.Errorf("decoding order id: %w", err)
		}
		m.OrderID = &orderID
	}
	return m, nil
}

type userDoc struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	Name          string    `bson:"name"`
	Role          string    `bson:"role"`
	AvatarURL     *string   `bson:"avatar_url,omitempty"`
	IsActive      bool      `bson:"is_active"`
	IsDeactivated bool      `bson:"is_deactivated"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (d *userDoc) toDomain() (*domain.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding user id: %w", err)
	}
	return &domain.User{
		ID:            id,
		Email:         d.Email,
		Name:          d.Name,
		Role:          d.Role,
		AvatarURL:     d.AvatarURL,
		IsActive:      d.IsActive,
		IsDeactivated: d.IsDeactivated,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

type orderDoc struct {
	ID             string     `bson:"_id"`
	OrderNumber    string     `bson:"order_number"`
	Client         string     `bson:"client"`
	Freelancer     *string    `bson:"freelancer,omitempty"`
	Status         string     `bson:"status"`
	LastActivityAt *time.Time `bson:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
}

func (d *orderDoc) toDomain() (*domain.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding order id: %w", err)
	}
	client, err := uuid.Parse(d.Client)
	if err != nil {
		return nil, fmt.Errorf("decoding client: %w", err)
	}
	o := &domain.Order{
		ID:             id,
		Number:         d.OrderNumber,
		ClientID:       client,
		Status:         d.Status,
		LastActivityAt: d.LastActivityAt,
		CreatedAt:      d.CreatedAt,
	}
	if d.Freelancer != nil {
		f, err := uuid.Parse(*d.Freelancer)
		if err != nil {
			return nil, fmt.Errorf("decoding freelancer: %w", err)
		}
		o.FreelancerID = &f
	}
	return o, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
