package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 5 * time.Second
)

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection("messages")}
}

// EnsureIndexes creates the indexes the queries below rely on, including the
// one-system-message-per-conversation constraint.
func (r *MessageRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("conversation_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "is_read", Value: 1}},
			Options: options.Index().SetName("recipient_unread_idx"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("participants_created_idx"),
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}},
			Options: options.Index().
				SetName("one_system_message_idx").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"message_type": domain.MessageTypeSystem}),
		},
	})
	return err
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.coll.InsertOne(ctx, toMessageDoc(msg))
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var doc messageDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain()
}

func (r *MessageRepo) ListConversation(ctx context.Context, conversationID string, pair [2]uuid.UUID, offset, limit int) ([]domain.Message, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	filter := bson.M{
		"conversation_id": conversationID,
		"participants":    bson.M{"$all": bson.A{pair[0].String(), pair[1].String()}},
	}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(newestFirst).SetSkip(int64(offset)).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	messages := []domain.Message{}
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		msg, err := doc.toDomain()
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *msg)
	}
	return messages, total, cur.Err()
}

type conversationGroup struct {
	ConversationID string     `bson:"_id"`
	Last           messageDoc `bson:"last"`
	Unread         int64      `bson:"unread"`
}

func (r *MessageRepo) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	uid := userID.String()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"participants": uid}}},
		{{Key: "$sort", Value: newestFirst}},
		{{Key: "$group", Value: bson.M{
			"_id":  "$conversation_id",
			"last": bson.M{"$first": "$$ROOT"},
			"unread": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$recipient", uid}},
					bson.M{"$eq": bson.A{"$is_read", false}},
				}},
				1, 0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last.created_at", Value: -1}, {Key: "last._id", Value: -1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.ConversationSummary
	for cur.Next(ctx) {
		var g conversationGroup
		if err := cur.Decode(&g); err != nil {
			return nil, err
		}
		last, err := g.Last.toDomain()
		if err != nil {
			return nil, err
		}
		sum := domain.ConversationSummary{
			ConversationID: g.ConversationID,
			LastMessage:    *last,
			UnreadCount:    g.Unread,
		}
		if orderID, ok := conversation.OrderIDFromKey(g.ConversationID); ok {
			sum.IsOrderScoped = true
			sum.OrderID = &orderID
		}
		out = append(out, sum)
	}
	return out, cur.Err()
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID string, userID uuid.UUID, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	filter := bson.M{"conversation_id": conversationID, "recipient": userID.String(), "is_read": false}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_read": true, "read_at": at}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	return r.coll.CountDocuments(ctx, bson.M{"recipient": userID.String(), "is_read": false})
}

func (r *MessageRepo) HasSystemMessage(ctx context.Context, conversationID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	filter := bson.M{"conversation_id": conversationID, "message_type": domain.MessageTypeSystem}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	return n > 0, err
}
