package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"streamchat/internal/model"
)

func TestConversationKey_NamespacesPerUser(t *testing.T) {
	mine, err := bson.Marshal(conversationKey{UserID: "user-a", ConversationID: "shared"})
	require.NoError(t, err)
	theirs, err := bson.Marshal(conversationKey{UserID: "user-b", ConversationID: "shared"})
	require.NoError(t, err)

	// The same conversation id under two users is two distinct _id
	// values, so an append with a foreign id can never collide with
	// the other user's document.
	require.NotEqual(t, mine, theirs)
}

func TestConversationKey_MarshalIsDeterministic(t *testing.T) {
	key := conversationKey{UserID: "user-a", ConversationID: "conv-1"}

	first, err := bson.Marshal(key)
	require.NoError(t, err)
	second, err := bson.Marshal(key)
	require.NoError(t, err)

	// Compound _id lookups match byte-for-byte, so the filter must
	// marshal exactly as the inserted key does.
	require.Equal(t, first, second)
}

func TestConversationDoc_ToModel(t *testing.T) {
	doc := conversationDoc{
		Key:       conversationKey{UserID: "user-a", ConversationID: "conv-1"},
		Messages:  []model.Message{{Role: model.RoleUser, Content: "hi", Timestamp: 1}},
		CreatedAt: 1,
		UpdatedAt: 2,
	}

	conversation := doc.toModel()
	require.Equal(t, "conv-1", conversation.ID)
	require.Equal(t, "user-a", conversation.UserID)
	require.Equal(t, doc.Messages, conversation.Messages)
	require.Equal(t, int64(1), conversation.CreatedAt)
	require.Equal(t, int64(2), conversation.UpdatedAt)
}

func TestConversationDoc_ToModelNeverReturnsNilMessages(t *testing.T) {
	doc := conversationDoc{Key: conversationKey{UserID: "user-a", ConversationID: "conv-1"}}

	conversation := doc.toModel()
	require.NotNil(t, conversation.Messages)
	require.Empty(t, conversation.Messages)
}
