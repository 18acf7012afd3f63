// Package client keeps the caller-side view of the chat API: the
// conversation list, the active conversation, and the live assistant
// reply as it streams in.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"streamchat/internal/model"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu            sync.Mutex
	conversations []model.Conversation
	currentID     string
	sending       bool
}

type apiError struct {
	Error string `json:"error"`
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// LoadConversations fetches the conversation list, most recently
// updated first. On the first load with nothing selected, the most
// recent conversation becomes the active one.
func (c *Client) LoadConversations(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chats", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch chats failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var conversations []model.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conversations); err != nil {
		return fmt.Errorf("decode chats failed: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = conversations
	if c.currentID == "" && len(conversations) > 0 {
		c.currentID = conversations[0].ID
	}
	return nil
}

// NewConversation asks the server for a fresh conversation, prepends
// it locally and selects it.
func (c *Client) NewConversation(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chats/new", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create chat failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode new chat failed: %w", err)
	}

	now := time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = append([]model.Conversation{{
		ID:        created.ID,
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}}, c.conversations...)
	c.currentID = created.ID
	return created.ID, nil
}

// SendMessage sends text on the active conversation and consumes the
// event stream. The first chunk appends an assistant message; each
// later chunk extends it in place, so the reply grows monotonically
// instead of arriving as separate fragments. onDelta fires per chunk.
//
// A no-op when nothing is selected or a send is already in flight.
// A stream failure is returned to the caller; whatever partial text
// already arrived stays in the conversation.
func (c *Client) SendMessage(ctx context.Context, text string, onDelta func(delta string)) error {
	c.mu.Lock()
	if c.sending || c.currentID == "" {
		c.mu.Unlock()
		return nil
	}
	c.sending = true
	chatID := c.currentID
	c.appendMessageLocked(chatID, model.Message{
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: time.Now().UnixMilli(),
	})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	if err := c.streamChat(ctx, chatID, text, onDelta); err != nil {
		return err
	}

	// Refetch to pick up the server-assigned timestamps and ordering.
	return c.LoadConversations(ctx)
}

func (c *Client) streamChat(ctx context.Context, chatID, text string, onDelta func(delta string)) error {
	body, err := json.Marshal(map[string]string{
		"prompt": text,
		"chatId": chatID,
	})
	if err != nil {
		return fmt.Errorf("marshal chat request failed: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var event struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return fmt.Errorf("parse stream event failed: %w", err)
		}
		if event.Text == "" {
			continue
		}

		c.mu.Lock()
		if first {
			c.appendMessageLocked(chatID, model.Message{
				Role:      model.RoleAssistant,
				Content:   event.Text,
				Timestamp: time.Now().UnixMilli(),
			})
			first = false
		} else {
			c.extendLastMessageLocked(chatID, event.Text)
		}
		c.mu.Unlock()

		if onDelta != nil {
			onDelta(event.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream failed: %w", err)
	}
	return errors.New("stream ended without done sentinel")
}

// Conversations returns a snapshot of the cached conversation list.
func (c *Client) Conversations() []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Current returns a snapshot of the active conversation.
func (c *Client) Current() (model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOfLocked(c.currentID)
	if idx < 0 {
		return model.Conversation{}, false
	}
	return c.conversations[idx], true
}

// OpenConversation selects the conversation with the given id,
// fetching it from the server when it is missing from the local list.
func (c *Client) OpenConversation(ctx context.Context, id string) error {
	if c.Select(id) {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/chats/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch chat failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var conversation model.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conversation); err != nil {
		return fmt.Errorf("decode chat failed: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOfLocked(conversation.ID) < 0 {
		c.conversations = append(c.conversations, conversation)
	}
	c.currentID = conversation.ID
	return nil
}

// Select makes the conversation with the given id active.
func (c *Client) Select(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOfLocked(id) < 0 {
		return false
	}
	c.currentID = id
	return true
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) indexOfLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.conversations {
		if c.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Client) appendMessageLocked(id string, msg model.Message) {
	idx := c.indexOfLocked(id)
	if idx < 0 {
		return
	}
	c.conversations[idx].Messages = append(c.conversations[idx].Messages, msg)
}

func (c *Client) extendLastMessageLocked(id, delta string) {
	idx := c.indexOfLocked(id)
	if idx < 0 {
		return
	}
	messages := c.conversations[idx].Messages
	if len(messages) == 0 {
		return
	}
	messages[len(messages)-1].Content += delta
}

func decodeAPIError(resp *http.Response) error {
	var body apiError
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server error (%d)", resp.StatusCode)
}
