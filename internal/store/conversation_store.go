package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"streamchat/internal/model"
)

var ErrConversationNotFound = errors.New("conversation not found")

const (
	conversationCollection = "conversations"
	usageCollection        = "usage"
)

// conversationKey is the compound document _id. Namespacing the id
// under the user means identical conversation ids from different
// users are distinct documents: one user appending with another
// user's id upserts their own document instead of colliding on _id.
type conversationKey struct {
	UserID         string `bson:"user_id"`
	ConversationID string `bson:"conversation_id"`
}

type conversationDoc struct {
	Key       conversationKey `bson:"_id"`
	Messages  []model.Message `bson:"messages"`
	CreatedAt int64           `bson:"created_at"`
	UpdatedAt int64           `bson:"updated_at"`
}

func (d *conversationDoc) toModel() model.Conversation {
	messages := d.Messages
	if messages == nil {
		messages = []model.Message{}
	}
	return model.Conversation{
		ID:        d.Key.ConversationID,
		UserID:    d.Key.UserID,
		Messages:  messages,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoStore keeps one document per (user, conversation) with an
// embedded append-only messages array.
type MongoStore struct {
	conversations *mongo.Collection
	usage         *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		conversations: db.Collection(conversationCollection),
		usage:         db.Collection(usageCollection),
	}
}

func (s *MongoStore) Create(ctx context.Context, userID string) (*model.Conversation, error) {
	now := time.Now().UnixMilli()
	doc := conversationDoc{
		Key: conversationKey{
			UserID:         userID,
			ConversationID: bson.NewObjectID().Hex(),
		},
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert conversation failed: %w", err)
	}
	conversation := doc.toModel()
	return &conversation, nil
}

func (s *MongoStore) ListByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.conversations.Find(ctx, bson.M{"_id.user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	defer cursor.Close(ctx)

	docs := []conversationDoc{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations failed: %w", err)
	}

	conversations := make([]model.Conversation, 0, len(docs))
	for i := range docs {
		conversations = append(conversations, docs[i].toModel())
	}
	return conversations, nil
}

func (s *MongoStore) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	filter := bson.M{"_id": conversationKey{UserID: userID, ConversationID: conversationID}}

	var doc conversationDoc
	err := s.conversations.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	conversation := doc.toModel()
	return &conversation, nil
}

// AppendMessage pushes msg onto the conversation's message array and
// bumps updated_at. The update is an upsert: appending to an unknown
// conversation id creates the user's own document with msg as its
// first element, matching the implicit create-on-first-message
// behavior of the API.
func (s *MongoStore) AppendMessage(ctx context.Context, userID, conversationID string, msg model.Message) error {
	now := time.Now().UnixMilli()
	filter := bson.M{"_id": conversationKey{UserID: userID, ConversationID: conversationID}}
	update := bson.M{
		"$push":        bson.M{"messages": msg},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := s.conversations.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("append message failed: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertUsage(ctx context.Context, usage *model.TurnUsage) error {
	if _, err := s.usage.InsertOne(ctx, usage); err != nil {
		return fmt.Errorf("insert usage failed: %w", err)
	}
	return nil
}
