package model

// Conversation is one chat thread owned by a single user. Messages
// are append-only and kept in insertion order; the document is never
// deleted by this service.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// LastMessage returns the most recent message, or nil for an empty
// conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}
