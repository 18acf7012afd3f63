package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"streamchat/internal/app"
	"streamchat/internal/transport/http/middleware"
	"streamchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type SendChatRequest struct {
	Prompt string `json:"prompt"`
	ChatID string `json:"chatId"`
}

type chunkEvent struct {
	Text string `json:"text"`
}

type newChatResponse struct {
	ID string `json:"id"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendChat streams one chat turn as server-sent events. SSE headers
// are written lazily on the first chunk so that every failure before
// streaming starts still gets a plain JSON error body.
func (h *ChatHandler) SendChat(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	var req SendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, "stream not supported")
		return
	}

	streaming := false
	_, err := h.chatService.SendChatTurn(c.Request.Context(), userID, req.ChatID, req.Prompt, func(chunk string) error {
		if !streaming {
			writeSSEHeaders(c)
			streaming = true
		}
		payload, err := json.Marshal(chunkEvent{Text: chunk})
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if streaming {
			// Mid-stream failure: the connection is dropped without a
			// [DONE] sentinel and no assistant message was persisted.
			c.Abort()
			return
		}
		switch {
		case errors.Is(err, app.ErrPromptEmpty), errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "failed to process chat request")
		}
		return
	}

	// A zero-chunk completion still terminates the stream properly.
	if !streaming {
		writeSSEHeaders(c)
	}
	if _, err := c.Writer.Write([]byte("data: [DONE]\n\n")); err == nil {
		flusher.Flush()
	}
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	conversations, err := h.chatService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to fetch chats")
		return
	}

	response.OK(c, conversations)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	conversation, err := h.chatService.GetConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrConversationNotFound):
			response.Error(c, http.StatusNotFound, "chat not found")
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "invalid chat id")
		default:
			response.Error(c, http.StatusInternalServerError, "failed to fetch chat")
		}
		return
	}

	response.OK(c, conversation)
}

func (h *ChatHandler) NewChat(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	conversation, err := h.chatService.CreateConversation(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to create new chat")
		return
	}

	response.OK(c, newChatResponse{ID: conversation.ID})
}

func writeSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
}
