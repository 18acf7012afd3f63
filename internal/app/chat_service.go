package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"streamchat/internal/model"
	"streamchat/internal/store"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrPromptEmpty          = errors.New("prompt is required")
	ErrConversationNotFound = errors.New("conversation not found")
)

// ConversationStore is the document store holding one record per
// conversation with append-only message semantics.
type ConversationStore interface {
	Create(ctx context.Context, userID string) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]model.Conversation, error)
	Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, userID, conversationID string, msg model.Message) error
}

// Generator yields a lazy, finite, non-restartable chunk sequence for
// a prompt and returns the concatenation of all chunks.
type Generator interface {
	StreamGenerate(ctx context.Context, prompt string, onChunk func(chunk string) error) (string, error)
}

// TurnPublisher receives a usage event after a completed turn.
type TurnPublisher interface {
	Publish(ctx context.Context, usage model.TurnUsage) error
}

type ChatService struct {
	store     ConversationStore
	generator Generator
	publisher TurnPublisher
}

func NewChatService(store ConversationStore, generator Generator, publisher TurnPublisher) *ChatService {
	return &ChatService{
		store:     store,
		generator: generator,
		publisher: publisher,
	}
}

func (s *ChatService) CreateConversation(ctx context.Context, userID string) (*model.Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.store.Create(ctx, userID)
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListByUser(ctx, userID)
}

// GetConversation fetches a single conversation the user owns.
// Ownership is part of the lookup: another user's conversation id
// reads as not found, never as forbidden.
func (s *ChatService) GetConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	if userID == "" || conversationID == "" {
		return nil, ErrInvalidInput
	}
	conversation, err := s.store.Get(ctx, userID, conversationID)
	if errors.Is(err, store.ErrConversationNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

// SendChatTurn runs one chat turn: the user message is persisted
// before any chunk is emitted, chunks are forwarded to onChunk in
// arrival order while being accumulated, and the assistant message is
// persisted only after the stream is exhausted. A generation failure
// leaves the user message as the turn's only append.
//
// An empty conversationID creates a fresh conversation; an unknown
// one is created implicitly by the append.
func (s *ChatService) SendChatTurn(ctx context.Context, userID, conversationID, prompt string, onChunk func(chunk string) error) (string, error) {
	if userID == "" {
		return "", ErrInvalidInput
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrPromptEmpty
	}

	if conversationID == "" {
		conversation, err := s.store.Create(ctx, userID)
		if err != nil {
			return "", err
		}
		conversationID = conversation.ID
	}

	userMessage := model.Message{
		Role:      model.RoleUser,
		Content:   prompt,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.store.AppendMessage(ctx, userID, conversationID, userMessage); err != nil {
		return "", err
	}

	started := time.Now()
	chunks := 0
	full, err := s.generator.StreamGenerate(ctx, prompt, func(chunk string) error {
		chunks++
		return onChunk(chunk)
	})
	if err != nil {
		return "", err
	}

	assistantMessage := model.Message{
		Role:      model.RoleAssistant,
		Content:   full,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.store.AppendMessage(ctx, userID, conversationID, assistantMessage); err != nil {
		return "", err
	}

	s.publishUsage(ctx, model.TurnUsage{
		UserID:         userID,
		ConversationID: conversationID,
		PromptBytes:    len(prompt),
		ReplyBytes:     len(full),
		Chunks:         chunks,
		DurationMS:     time.Since(started).Milliseconds(),
		Timestamp:      time.Now().UnixMilli(),
	})

	return full, nil
}

// publishUsage is best-effort: accounting never fails a turn.
func (s *ChatService) publishUsage(ctx context.Context, usage model.TurnUsage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, usage); err != nil {
		log.Printf("publish turn usage failed: %v", err)
	}
}
