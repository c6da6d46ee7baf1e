package chat

import (
	"context"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/pkg/constants"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

// Repository is the backend chat API
type Repository interface {
	FetchPage(ctx context.Context, authToken, conversationID string, page, pageSize int) (*domain.MessagePage, error)
	Poll(ctx context.Context, authToken, conversationID string, since time.Time) (*domain.PollResult, error)
	Send(ctx context.Context, authToken, conversationID string, body domain.SendMessageRequest) (*domain.Message, error)
	MarkRead(ctx context.Context, authToken, conversationID string) error
	UnreadCount(ctx context.Context, authToken string) (int, error)
}

// PollerConfig configures one conversation's polling loop
type PollerConfig struct {
	ConversationID string
	AuthToken      string
	UserID         string
	Interval       time.Duration
	SeenCapacity   int
	// Since seeds the watermark; zero asks the backend for everything
	Since time.Time
	// Active marks the conversation as the one on screen, so new messages
	// are marked read instead of counted
	Active bool
}

// Poller keeps the local message list of one conversation in sync by
// polling on a fixed interval. Duplicate deliveries are dropped by id.
type Poller struct {
	repo Repository
	cfg  PollerConfig

	mu        sync.Mutex
	seen      *lru.Cache[string, struct{}]
	messages  []domain.Message
	watermark time.Time
	unread    int
	active    bool

	updates chan struct{}

	runMu    sync.Mutex
	cancel   context.CancelFunc
	loop     sync.WaitGroup
	inFlight sync.WaitGroup
}

// NewPoller creates a poller. Call Start to begin polling.
func NewPoller(repo Repository, cfg PollerConfig) (*Poller, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.ChatPollInterval
	}
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = constants.SeenMessageCapacity
	}
	seen, err := lru.New[string, struct{}](cfg.SeenCapacity)
	if err != nil {
		return nil, err
	}
	return &Poller{
		repo:      repo,
		cfg:       cfg,
		seen:      seen,
		watermark: cfg.Since,
		active:    cfg.Active,
		updates:   make(chan struct{}, 1),
	}, nil
}

// ConversationID returns the polled conversation
func (p *Poller) ConversationID() string {
	return p.cfg.ConversationID
}

// FetchPage loads one history page in backend order (newest first)
func (p *Poller) FetchPage(ctx context.Context, page, pageSize int) (*domain.MessagePage, error) {
	return p.repo.FetchPage(ctx, p.cfg.AuthToken, p.cfg.ConversationID, page, pageSize)
}

// Load fetches the first history page, shows it oldest first and seeds the
// watermark from the newest message when none was given
func (p *Poller) Load(ctx context.Context, pageSize int) (*domain.MessagePage, error) {
	page, err := p.FetchPage(ctx, 1, pageSize)
	if err != nil {
		return nil, err
	}
	p.Prepend(page.Messages)

	p.mu.Lock()
	if p.watermark.IsZero() {
		for _, m := range page.Messages {
			if m.CreatedAt.After(p.watermark) {
				p.watermark = m.CreatedAt
			}
		}
	}
	p.mu.Unlock()
	return page, nil
}

// Poll runs one incremental fetch and applies the result. The watermark
// moves to the server's clock, never to a message timestamp.
func (p *Poller) Poll(ctx context.Context) ([]domain.Message, error) {
	since := p.Watermark()

	res, err := p.repo.Poll(ctx, p.cfg.AuthToken, p.cfg.ConversationID, since)
	if err != nil {
		metrics.ChatPollsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ChatPollsTotal.WithLabelValues("success").Inc()

	added := p.Apply(res.Messages, res.ServerTime)
	if len(added) > 0 {
		p.afterNew(ctx, added)
	}
	return added, nil
}

// Apply appends the messages not seen before, in the given order, and
// advances the watermark to serverTime if it is newer. Applying the same
// response twice changes nothing the second time.
func (p *Poller) Apply(msgs []domain.Message, serverTime time.Time) []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	var added []domain.Message
	for _, m := range msgs {
		if !p.markSeen(m.ID) {
			metrics.ChatMessagesDuplicateTotal.Inc()
			continue
		}
		p.messages = append(p.messages, m)
		added = append(added, m)
	}
	p.trimOldest()
	if serverTime.After(p.watermark) {
		p.watermark = serverTime
	}

	if len(added) > 0 {
		metrics.ChatMessagesAppliedTotal.Add(float64(len(added)))
		p.notify()
	}
	return added
}

// Prepend inserts an older history page (newest first, as served) before
// the current list in chronological order. The list never grows past
// SeenCapacity, so a full list admits nothing more.
func (p *Poller) Prepend(page []domain.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	room := p.cfg.SeenCapacity - len(p.messages)
	older := make([]domain.Message, 0, min(len(page), max(room, 0)))
	for _, m := range page {
		if len(older) >= room {
			break
		}
		if p.markSeen(m.ID) {
			older = append(older, m)
		}
	}
	if len(older) > 0 {
		slices.Reverse(older)
		p.messages = append(older, p.messages...)
		p.notify()
	}
	return len(older)
}

// Full reports whether the local list holds SeenCapacity messages
func (p *Poller) Full() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages) >= p.cfg.SeenCapacity
}

// trimOldest drops the oldest messages beyond SeenCapacity and forgets
// their ids, keeping the seen set and the list in step. Called with p.mu held.
func (p *Poller) trimOldest() {
	over := len(p.messages) - p.cfg.SeenCapacity
	if over <= 0 {
		return
	}
	for _, m := range p.messages[:over] {
		if m.ID != "" {
			p.seen.Remove(m.ID)
		}
	}
	p.messages = slices.Clone(p.messages[over:])
}

// Start begins polling every interval. A tick does not wait for or cancel
// a poll that is still in flight. Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	log := logger.FromContext(ctx).With(zap.String("conversation_id", p.cfg.ConversationID))
	p.loop.Add(1)
	go func() {
		defer p.loop.Done()
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.inFlight.Add(1)
				go func() {
					defer p.inFlight.Done()
					if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
						log.Warn("Chat poll failed", zap.Error(err))
					}
				}()
			}
		}
	}()
	log.Debug("Chat polling started", zap.Duration("interval", p.cfg.Interval))
}

// Stop cancels the timer and any poll in flight, then waits for them
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.loop.Wait()
	p.inFlight.Wait()
	logger.Debug("Chat polling stopped", zap.String("conversation_id", p.cfg.ConversationID))
}

// Running reports whether the timer is active
func (p *Poller) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.cancel != nil
}

// Messages returns a copy of the local list in display order
func (p *Poller) Messages() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.messages)
}

// Unread returns the messages received from others while inactive
func (p *Poller) Unread() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unread
}

// Watermark returns the timestamp the next poll asks from
func (p *Poller) Watermark() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// SetActive marks whether the conversation is on screen. Activating clears
// the local unread counter.
func (p *Poller) SetActive(active bool) {
	p.mu.Lock()
	p.active = active
	if active {
		p.unread = 0
	}
	p.mu.Unlock()
}

// Updates signals after the message list changed. Signals coalesce.
func (p *Poller) Updates() <-chan struct{} {
	return p.updates
}

func (p *Poller) afterNew(ctx context.Context, added []domain.Message) {
	incoming := 0
	for _, m := range added {
		if !m.IsMine(p.cfg.UserID) {
			incoming++
		}
	}
	if incoming == 0 {
		return
	}

	p.mu.Lock()
	active := p.active
	if !active {
		p.unread += incoming
	}
	p.mu.Unlock()

	if active {
		if err := p.repo.MarkRead(ctx, p.cfg.AuthToken, p.cfg.ConversationID); err != nil {
			logger.FromContext(ctx).Warn("Failed to mark conversation read",
				zap.String("conversation_id", p.cfg.ConversationID), zap.Error(err))
		}
	}
}

// markSeen records id and reports whether it was new. Called with p.mu held.
func (p *Poller) markSeen(id string) bool {
	if id == "" {
		return true
	}
	if p.seen.Contains(id) {
		return false
	}
	p.seen.Add(id, struct{}{})
	return true
}

func (p *Poller) notify() {
	select {
	case p.updates <- struct{}{}:
	default:
	}
}
