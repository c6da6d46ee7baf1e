// Package devstore holds the state of the local development backend: call
// sessions, wallets, signaling uids and chat history. Call sessions, wallets
// and uids can live in Redis; chat history is kept in memory.
package devstore

import (
	"context"
	"sync"
	"time"

	"consultline/internal/domain"
	"consultline/pkg/errors"
)

// SessionRecord is the backend's view of an issued call session
type SessionRecord struct {
	ID            string          `json:"id"`
	CallerID      string          `json:"callerId"`
	RemotePartyID string          `json:"remotePartyId"`
	ChannelName   string          `json:"channelName"`
	CallType      domain.CallType `json:"type"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SessionStore persists issued sessions until they end or expire
type SessionStore interface {
	Save(ctx context.Context, rec *SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*SessionRecord, error)
	Delete(ctx context.Context, rec *SessionRecord) error
}

type memorySession struct {
	rec     SessionRecord
	expires time.Time
}

// MemorySessionStore keeps sessions in a map
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

// NewMemorySessionStore creates an empty in-memory store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memorySession), now: time.Now}
}

func (s *MemorySessionStore) Save(_ context.Context, rec *SessionRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = memorySession{rec: *rec, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.SessionNotFoundError()
	}
	if s.now().After(entry.expires) {
		delete(s.sessions, sessionID)
		return nil, errors.SessionNotFoundError()
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, rec.ID)
	return nil
}
