package call

import (
	"sync"

	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

const subscriberBuffer = 8

// Store holds the single CallState of the process. All mutation goes
// through Dispatch.
type Store struct {
	mu     sync.Mutex
	state  domain.CallState
	subs   map[int]chan domain.CallState
	nextID int
}

// NewStore creates a store in the idle stage
func NewStore() *Store {
	return &Store{
		state: domain.CallState{Stage: domain.StageIdle},
		subs:  make(map[int]chan domain.CallState),
	}
}

// State returns a snapshot of the current state
func (s *Store) State() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies ev and notifies subscribers when the state changed
func (s *Store) Dispatch(ev Event) (domain.CallState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	next, err := Reduce(prev, ev)
	if err != nil {
		logger.Debug("Call event rejected",
			zap.String("stage", string(prev.Stage)),
			zap.String("event", string(ev.Type)),
			zap.Error(err))
		return prev, err
	}

	s.state = next
	if prev.Stage != next.Stage {
		metrics.CallStageTransitionsTotal.WithLabelValues(string(prev.Stage), string(next.Stage)).Inc()
		logger.Info("Call stage changed",
			zap.String("call_id", next.AttemptID),
			zap.String("from", string(prev.Stage)),
			zap.String("to", string(next.Stage)),
			zap.String("error", next.Error))
	}
	for _, ch := range s.subs {
		publish(ch, next)
	}
	return next, nil
}

// Subscribe returns a channel of state snapshots, starting with the current
// one. A slow reader loses intermediate snapshots, never the latest one.
func (s *Store) Subscribe() (<-chan domain.CallState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan domain.CallState, subscriberBuffer)
	ch <- s.state
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publish is called with s.mu held, so only one sender touches ch at a time
func publish(ch chan domain.CallState, st domain.CallState) {
	for {
		select {
		case ch <- st:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
