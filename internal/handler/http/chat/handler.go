package chat

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"consultline/internal/devstore"
	"consultline/internal/domain"
	"consultline/internal/middleware"
	"consultline/pkg/metrics"
	"consultline/pkg/pagination"
	"consultline/pkg/response"
	"consultline/pkg/sanitize"
)

// Handler serves chat history, polling and sending
type Handler struct {
	messages *devstore.MessageStore
	metrics  *metrics.Metrics
}

// NewHandler creates a new chat handler
func NewHandler(messages *devstore.MessageStore, m *metrics.Metrics) *Handler {
	return &Handler{
		messages: messages,
		metrics:  m,
	}
}

// ListConversations lists the caller's conversations
// GET /chat/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	convs := h.messages.Conversations(middleware.UserID(c))
	if convs == nil {
		convs = []domain.Conversation{}
	}
	response.Success(c, http.StatusOK, convs)
}

// GetMessages returns one page of history, newest first
// GET /chat/conversations/:id/messages?page=1&pageSize=20
func (h *Handler) GetMessages(c *gin.Context) {
	params, err := pagination.Parse(c.Query("page"), c.Query("pageSize"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if !h.admit(c) {
		return
	}
	response.Success(c, http.StatusOK, h.messages.Page(c.Param("id"), params.Page, params.PageSize))
}

// PollMessages returns messages strictly newer than since and the server clock
// GET /chat/conversations/:id/messages/poll?since=RFC3339Nano
func (h *Handler) PollMessages(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.ValidationError(c, "Invalid since timestamp")
			return
		}
		since = t
	}
	if !h.admit(c) {
		return
	}

	response.Success(c, http.StatusOK, h.messages.Since(c.Param("id"), since))
}

// SendMessage stores a message from the caller
// POST /chat/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	content := sanitize.MessageContent(req.Content)
	if content == "" {
		response.ValidationError(c, "content is empty")
		return
	}
	if !h.admit(c) {
		return
	}

	sender := domain.Sender{ID: middleware.UserID(c), Name: c.GetString(middleware.ContextName)}
	msg := h.messages.Append(c.Param("id"), sender, content, req.MessageType)
	h.metrics.RecordMessageSent(string(msg.MessageType))

	response.Success(c, http.StatusCreated, msg)
}

// MarkRead marks the conversation read for the caller
// POST /chat/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	if !h.admit(c) {
		return
	}
	h.messages.MarkRead(c.Param("id"), middleware.UserID(c))
	response.Success(c, http.StatusOK, gin.H{"conversationId": c.Param("id")})
}

// UnreadCount returns the caller's unread total
// GET /chat/unread-count
func (h *Handler) UnreadCount(c *gin.Context) {
	response.Success(c, http.StatusOK, domain.UnreadCount{Count: h.messages.Unread(middleware.UserID(c))})
}

// admit writes 403 and returns false unless the caller may use the
// conversation in the path
func (h *Handler) admit(c *gin.Context) bool {
	if h.messages.Admit(c.Param("id"), middleware.UserID(c)) {
		return true
	}
	response.Forbidden(c, "You are not a participant in this conversation")
	return false
}

// RegisterRoutes mounts the chat endpoints on g
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/:id/messages", h.GetMessages)
	g.GET("/conversations/:id/messages/poll", h.PollMessages)
	g.POST("/conversations/:id/messages", h.SendMessage)
	g.POST("/conversations/:id/read", h.MarkRead)
	g.GET("/unread-count", h.UnreadCount)
}
