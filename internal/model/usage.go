package model

// TurnUsage records one completed chat turn for accounting. It is
// published after the assistant message is persisted and written to
// the store asynchronously by the usage worker.
type TurnUsage struct {
	UserID         string `bson:"user_id" json:"user_id"`
	ConversationID string `bson:"conversation_id" json:"conversation_id"`
	PromptBytes    int    `bson:"prompt_bytes" json:"prompt_bytes"`
	ReplyBytes     int    `bson:"reply_bytes" json:"reply_bytes"`
	Chunks         int    `bson:"chunks" json:"chunks"`
	DurationMS     int64  `bson:"duration_ms" json:"duration_ms"`
	Timestamp      int64  `bson:"timestamp" json:"timestamp"`
}
