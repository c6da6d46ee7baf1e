package api

import (
	"context"
	"strconv"
	"time"

	"consultline/internal/domain"
)

// ChatRepository reads and writes conversation messages on the backend
type ChatRepository struct {
	client *Client
}

// NewChatRepository creates a new ChatRepository
func NewChatRepository(client *Client) *ChatRepository {
	return &ChatRepository{client: client}
}

// FetchPage loads one page of history, newest first, in backend order
func (r *ChatRepository) FetchPage(ctx context.Context, authToken, conversationID string, page, pageSize int) (*domain.MessagePage, error) {
	var out envelope[domain.MessagePage]
	resp, err := r.client.request(ctx, authToken).
		SetPathParam("id", conversationID).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("pageSize", strconv.Itoa(pageSize)).
		SetResult(&out).
		Get("/chat/conversations/{id}/messages")
	if err := checkEnvelope(resp, err, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Poll returns messages strictly newer than since, plus the server clock.
// A zero since asks for the full window.
func (r *ChatRepository) Poll(ctx context.Context, authToken, conversationID string, since time.Time) (*domain.PollResult, error) {
	var out envelope[domain.PollResult]
	req := r.client.request(ctx, authToken).
		SetPathParam("id", conversationID).
		SetResult(&out)
	if !since.IsZero() {
		req.SetQueryParam("since", since.UTC().Format(time.RFC3339Nano))
	}
	resp, err := req.Get("/chat/conversations/{id}/messages/poll")
	if err := checkEnvelope(resp, err, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Send posts a message and returns the stored copy
func (r *ChatRepository) Send(ctx context.Context, authToken, conversationID string, body domain.SendMessageRequest) (*domain.Message, error) {
	var out envelope[domain.Message]
	resp, err := r.client.request(ctx, authToken).
		SetPathParam("id", conversationID).
		SetBody(body).
		SetResult(&out).
		Post("/chat/conversations/{id}/messages")
	if err := checkEnvelope(resp, err, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// MarkRead marks every message in the conversation as read by the caller
func (r *ChatRepository) MarkRead(ctx context.Context, authToken, conversationID string) error {
	var out envelope[struct{}]
	resp, err := r.client.request(ctx, authToken).
		SetPathParam("id", conversationID).
		SetResult(&out).
		Post("/chat/conversations/{id}/read")
	return checkEnvelope(resp, err, &out)
}

// UnreadCount returns the caller's unread total across conversations
func (r *ChatRepository) UnreadCount(ctx context.Context, authToken string) (int, error) {
	var out envelope[domain.UnreadCount]
	resp, err := r.client.request(ctx, authToken).
		SetResult(&out).
		Get("/chat/unread-count")
	if err := checkEnvelope(resp, err, &out); err != nil {
		return 0, err
	}
	return out.Data.Count, nil
}
