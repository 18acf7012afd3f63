package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is immutable once appended. Timestamp is epoch
// milliseconds assigned by the producer, not by the store.
type Message struct {
	Role      string `bson:"role" json:"role"`
	Content   string `bson:"content" json:"content"`
	Timestamp int64  `bson:"timestamp" json:"timestamp"`
}
