package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamchat/internal/model"
)

// fakeServer speaks just enough of the chat API for the client.
type fakeServer struct {
	mu            sync.Mutex
	seq           int
	conversations []model.Conversation
	chunks        []string
	sendDelay     time.Duration
	dropStream    bool
	chatCalls     int
	listCalls     int
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listCalls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.conversations)
	})
	mux.HandleFunc("POST /api/chats/new", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.seq++
		id := fmt.Sprintf("conv-%d", f.seq)
		now := time.Now().UnixMilli()
		f.conversations = append([]model.Conversation{{
			ID: id, Messages: []model.Message{}, CreatedAt: now, UpdatedAt: now,
		}}, f.conversations...)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	})
	mux.HandleFunc("GET /api/chats/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, conversation := range f.conversations {
			if conversation.ID == r.PathValue("id") {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(conversation)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"chat not found"}`))
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.chatCalls++
		chunks := f.chunks
		delay := f.sendDelay
		drop := f.dropStream
		f.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			payload, _ := json.Marshal(map[string]string{"text": chunk})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if delay > 0 {
				time.Sleep(delay)
			}
		}
		if drop {
			// Connection closes without the terminal sentinel.
			return
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})
	return mux
}

func newTestClient(t *testing.T, server *fakeServer) *Client {
	t.Helper()
	ts := httptest.NewServer(server.handler())
	t.Cleanup(ts.Close)
	return New(ts.URL, "token")
}

func TestLoadConversations_SelectsMostRecent(t *testing.T) {
	server := &fakeServer{conversations: []model.Conversation{
		{ID: "conv-b", UpdatedAt: 2000},
		{ID: "conv-a", UpdatedAt: 1000},
	}}
	c := newTestClient(t, server)

	require.NoError(t, c.LoadConversations(context.Background()))

	current, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, "conv-b", current.ID)
	require.Len(t, c.Conversations(), 2)
}

func TestLoadConversations_KeepsExistingSelection(t *testing.T) {
	server := &fakeServer{conversations: []model.Conversation{
		{ID: "conv-b", UpdatedAt: 2000},
		{ID: "conv-a", UpdatedAt: 1000},
	}}
	c := newTestClient(t, server)

	require.NoError(t, c.LoadConversations(context.Background()))
	require.True(t, c.Select("conv-a"))
	require.NoError(t, c.LoadConversations(context.Background()))

	current, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, "conv-a", current.ID)
}

func TestNewConversation_PrependsAndSelects(t *testing.T) {
	server := &fakeServer{}
	c := newTestClient(t, server)

	id, err := c.NewConversation(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	current, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, id, current.ID)
	require.Equal(t, id, c.Conversations()[0].ID)
}

func TestOpenConversation_FetchesUnknownID(t *testing.T) {
	server := &fakeServer{conversations: []model.Conversation{
		{ID: "conv-remote", Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}},
	}}
	c := newTestClient(t, server)

	require.NoError(t, c.OpenConversation(context.Background(), "conv-remote"))

	current, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, "conv-remote", current.ID)
	require.Len(t, current.Messages, 1)
}

func TestOpenConversation_UnknownIDFails(t *testing.T) {
	server := &fakeServer{}
	c := newTestClient(t, server)

	err := c.OpenConversation(context.Background(), "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat not found")

	_, ok := c.Current()
	require.False(t, ok)
}

func TestSendMessage_ExtendsAssistantMessageInPlace(t *testing.T) {
	server := &fakeServer{chunks: []string{"Hel", "lo"}}
	c := newTestClient(t, server)

	id, err := c.NewConversation(context.Background())
	require.NoError(t, err)

	// The refetched list must carry the sent turn so local state
	// survives the reload.
	server.mu.Lock()
	server.conversations = []model.Conversation{{
		ID: id,
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hi"},
			{Role: model.RoleAssistant, Content: "Hello"},
		},
		UpdatedAt: time.Now().UnixMilli(),
	}}
	server.mu.Unlock()

	var deltas []string
	err = c.SendMessage(context.Background(), "hi", func(delta string) {
		deltas = append(deltas, delta)

		current, ok := c.Current()
		require.True(t, ok)
		last := current.LastMessage()
		require.NotNil(t, last)
		require.Equal(t, model.RoleAssistant, last.Role)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, deltas)

	current, ok := c.Current()
	require.True(t, ok)
	require.Len(t, current.Messages, 2)
	require.Equal(t, "hi", current.Messages[0].Content)
	require.Equal(t, "Hello", current.Messages[1].Content)
}

func TestSendMessage_StreamDroppedKeepsPartialText(t *testing.T) {
	server := &fakeServer{chunks: []string{"par"}, dropStream: true}
	c := newTestClient(t, server)

	id, err := c.NewConversation(context.Background())
	require.NoError(t, err)

	err = c.SendMessage(context.Background(), "hi", nil)
	require.Error(t, err)

	// The partially streamed assistant text stays rendered and the
	// conversation list is not refetched after the failed turn.
	current, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, id, current.ID)
	require.Len(t, current.Messages, 2)
	require.Equal(t, model.RoleUser, current.Messages[0].Role)
	require.Equal(t, "hi", current.Messages[0].Content)
	require.Equal(t, model.RoleAssistant, current.Messages[1].Role)
	require.Equal(t, "par", current.Messages[1].Content)

	server.mu.Lock()
	listCalls := server.listCalls
	server.mu.Unlock()
	require.Equal(t, 0, listCalls)

	// The failed send releases the in-flight guard.
	server.mu.Lock()
	server.dropStream = false
	server.chunks = []string{"ok"}
	server.mu.Unlock()
	require.NoError(t, c.SendMessage(context.Background(), "again", nil))
}

func TestSendMessage_NoopWithoutSelection(t *testing.T) {
	server := &fakeServer{chunks: []string{"never"}}
	c := newTestClient(t, server)

	err := c.SendMessage(context.Background(), "hi", func(string) {
		t.Fatal("no delta expected without a selected conversation")
	})
	require.NoError(t, err)
	require.Equal(t, 0, server.chatCalls)
}

func TestSendMessage_NoopWhileSendInFlight(t *testing.T) {
	server := &fakeServer{chunks: []string{"a", "b", "c"}, sendDelay: 20 * time.Millisecond}
	c := newTestClient(t, server)

	_, err := c.NewConversation(context.Background())
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.SendMessage(context.Background(), "first", func(string) {
			select {
			case <-started:
			default:
				close(started)
			}
		})
	}()

	<-started
	require.NoError(t, c.SendMessage(context.Background(), "second", nil))
	require.NoError(t, <-done)

	server.mu.Lock()
	calls := server.chatCalls
	server.mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestSendMessage_AppendsUserMessageLocally(t *testing.T) {
	server := &fakeServer{chunks: []string{"ok"}}
	c := newTestClient(t, server)

	id, err := c.NewConversation(context.Background())
	require.NoError(t, err)

	// Freeze the server list so the refetch reflects server truth and
	// the test can observe the pre-refetch local append via deltas.
	server.mu.Lock()
	server.conversations = []model.Conversation{{
		ID: id,
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hi"},
			{Role: model.RoleAssistant, Content: "ok"},
		},
	}}
	server.mu.Unlock()

	sawUserMessage := false
	err = c.SendMessage(context.Background(), "hi", func(string) {
		current, _ := c.Current()
		for _, msg := range current.Messages {
			if msg.Role == model.RoleUser && msg.Content == "hi" {
				sawUserMessage = true
			}
		}
	})
	require.NoError(t, err)
	require.True(t, sawUserMessage)
}
