// Package chat keeps conversation messages in sync with the backend. The
// backend offers no push channel, so Poller polls on a fixed interval and
// Service manages the poller of the conversation on screen.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/pkg/constants"
	"consultline/pkg/errors"
	"consultline/pkg/logger"
)

// Config holds conversation service settings
type Config struct {
	AuthToken    string
	UserID       string
	PollInterval time.Duration
	PageSize     int
	SeenCapacity int
}

// Service runs the chat view: one open conversation at a time
type Service struct {
	repo     Repository
	cfg      Config
	validate *validator.Validate

	mu      sync.Mutex
	poller  *Poller
	page    int
	hasMore bool
}

// NewService creates a chat service
func NewService(repo Repository, cfg Config) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = constants.DefaultPageSize
	}
	v := validator.New()
	v.SetTagName("binding")
	return &Service{repo: repo, cfg: cfg, validate: v}
}

// Open loads the first page of conversationID and starts polling it. The
// previously open conversation stops polling first.
func (s *Service) Open(ctx context.Context, conversationID string) (*Poller, error) {
	if conversationID == "" {
		return nil, errors.MissingFieldError("conversationId")
	}

	s.Close()

	p, err := NewPoller(s.repo, PollerConfig{
		ConversationID: conversationID,
		AuthToken:      s.cfg.AuthToken,
		UserID:         s.cfg.UserID,
		Interval:       s.cfg.PollInterval,
		SeenCapacity:   s.cfg.SeenCapacity,
		Active:         true,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to create poller", err)
	}

	page, err := p.Load(ctx, s.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkRead(ctx, s.cfg.AuthToken, conversationID); err != nil {
		logger.FromContext(ctx).Warn("Failed to mark conversation read",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	p.Start(ctx)

	s.mu.Lock()
	s.poller = p
	s.page = 1
	s.hasMore = page.HasMore
	s.mu.Unlock()

	logger.FromContext(ctx).Info("Conversation opened",
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(page.Messages)))
	return p, nil
}

// Close stops polling the open conversation, if any
func (s *Service) Close() {
	s.mu.Lock()
	p := s.poller
	s.poller = nil
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// Current returns the open conversation's poller, or nil
func (s *Service) Current() *Poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poller
}

// Send posts a message to the open conversation and shows it right away.
// The next poll delivering the same message is dropped by the seen-set.
func (s *Service) Send(ctx context.Context, content string, msgType domain.MessageType) (*domain.Message, error) {
	p := s.Current()
	if p == nil {
		return nil, errors.ValidationError("no conversation is open")
	}
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	req := domain.SendMessageRequest{Content: content, MessageType: msgType}
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	msg, err := s.repo.Send(ctx, s.cfg.AuthToken, p.ConversationID(), req)
	if err != nil {
		return nil, err
	}
	p.Apply([]domain.Message{*msg}, time.Time{})
	return msg, nil
}

// LoadOlder fetches the next history page and prepends it. It returns how
// many messages were added and whether more history remains.
func (s *Service) LoadOlder(ctx context.Context) (int, bool, error) {
	s.mu.Lock()
	p, next, hasMore := s.poller, s.page+1, s.hasMore
	s.mu.Unlock()

	if p == nil {
		return 0, false, errors.ValidationError("no conversation is open")
	}
	if !hasMore {
		return 0, false, nil
	}

	page, err := p.FetchPage(ctx, next, s.cfg.PageSize)
	if err != nil {
		return 0, hasMore, err
	}
	added := p.Prepend(page.Messages)

	s.mu.Lock()
	if s.poller == p {
		s.page = next
		s.hasMore = page.HasMore && !p.Full()
	}
	s.mu.Unlock()

	more := page.HasMore && !p.Full()
	return added, more, nil
}

// MarkRead marks the open conversation read on the backend
func (s *Service) MarkRead(ctx context.Context) error {
	p := s.Current()
	if p == nil {
		return nil
	}
	if err := s.repo.MarkRead(ctx, s.cfg.AuthToken, p.ConversationID()); err != nil {
		return err
	}
	p.SetActive(true)
	return nil
}

// UnreadCount returns the backend's unread total across conversations
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	return s.repo.UnreadCount(ctx, s.cfg.AuthToken)
}
