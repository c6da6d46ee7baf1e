package devstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"consultline/internal/domain"
	"consultline/pkg/pagination"
)

type conversation struct {
	domain.Conversation
	messages []domain.Message
	lastRead map[string]time.Time
}

// MessageStore keeps chat history in memory
type MessageStore struct {
	mu    sync.Mutex
	convs map[string]*conversation
	now   func() time.Time
	// issued is the latest serverTime handed to a poller. New messages are
	// stamped after it so a poll from that watermark cannot miss them.
	issued time.Time
	latest time.Time
}

// NewMessageStore creates an empty store
func NewMessageStore() *MessageStore {
	return &MessageStore{convs: make(map[string]*conversation), now: time.Now}
}

func (s *MessageStore) conv(id, userID string) *conversation {
	c, ok := s.convs[id]
	if !ok {
		c = &conversation{
			Conversation: domain.Conversation{ID: id, CreatedAt: s.now().UTC()},
			lastRead:     make(map[string]time.Time),
		}
		s.convs[id] = c
	}
	if userID != "" && !c.HasParticipant(userID) {
		c.ParticipantIDs = append(c.ParticipantIDs, userID)
	}
	return c
}

// Append stores a message from sender and returns it
func (s *MessageStore) Append(conversationID string, sender domain.Sender, content string, msgType domain.MessageType) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(conversationID, sender.ID)
	at := s.now().UTC()
	if !at.After(s.issued) {
		at = s.issued.Add(time.Microsecond)
	}
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	m := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		MessageType:    msgType,
		CreatedAt:      at,
	}
	c.messages = append(c.messages, m)
	if at.After(s.latest) {
		s.latest = at
	}
	// The sender has read everything up to their own message
	c.lastRead[sender.ID] = at
	return m
}

// Admit reports whether userID may use the conversation, recording them as
// a participant when they may. Members are always admitted. A direct
// conversation admits the two users its id names. A conversation nobody has
// used yet is opened by its first user.
func (s *MessageStore) Admit(conversationID, userID string) bool {
	if userID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	switch {
	case ok && c.HasParticipant(userID):
		return true
	case domain.NamedInDirect(conversationID, userID):
	case ok && len(c.ParticipantIDs) > 0:
		return false
	case strings.HasPrefix(conversationID, "direct:"):
		return false
	}
	s.conv(conversationID, userID)
	return true
}

// Page returns one page of history, newest first
func (s *MessageStore) Page(conversationID string, page, pageSize int) domain.MessagePage {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return domain.MessagePage{Messages: []domain.Message{}}
	}

	total := len(c.messages)
	offset := pagination.CalculateOffset(page, pageSize)
	out := make([]domain.Message, 0, pageSize)
	for i := total - 1 - offset; i >= 0 && len(out) < pageSize; i-- {
		out = append(out, c.messages[i])
	}
	return domain.MessagePage{Messages: out, HasMore: pagination.HasMore(total, page, pageSize)}
}

// Since returns messages strictly newer than since, oldest first, and the
// server clock the caller should poll from next
func (s *MessageStore) Since(conversationID string, since time.Time) domain.PollResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	serverTime := s.now().UTC()
	if serverTime.Before(s.issued) {
		serverTime = s.issued
	}
	if serverTime.Before(s.latest) {
		serverTime = s.latest
	}
	s.issued = serverTime

	out := []domain.Message{}
	if c, ok := s.convs[conversationID]; ok {
		for _, m := range c.messages {
			if m.CreatedAt.After(since) {
				out = append(out, m)
			}
		}
	}
	return domain.PollResult{Messages: out, ServerTime: serverTime}
}

// MarkRead records that userID has read the whole conversation
func (s *MessageStore) MarkRead(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(conversationID, userID)
	c.lastRead[userID] = s.now().UTC()
	if n := len(c.messages); n > 0 && c.messages[n-1].CreatedAt.After(c.lastRead[userID]) {
		c.lastRead[userID] = c.messages[n-1].CreatedAt
	}
}

// Unread counts messages from others that userID has not read, across all
// of their conversations
func (s *MessageStore) Unread(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.convs {
		if !c.HasParticipant(userID) {
			continue
		}
		read := c.lastRead[userID]
		for _, m := range c.messages {
			if m.Sender.ID != userID && m.CreatedAt.After(read) {
				n++
			}
		}
	}
	return n
}

// Conversations lists the conversations userID takes part in, newest first
func (s *MessageStore) Conversations(userID string) []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(userID) {
			conv := c.Conversation
			conv.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
