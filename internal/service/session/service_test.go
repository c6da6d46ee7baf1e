package session

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consultline/internal/domain"
	"consultline/pkg/errors"
)

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Start(ctx context.Context, authToken, remotePartyID string, callType domain.CallType) (*domain.CallSession, error) {
	args := m.Called(ctx, authToken, remotePartyID, callType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallSession), args.Error(1)
}

func (m *MockSessionRepository) Join(ctx context.Context, authToken, sessionID string) (*domain.CallSession, error) {
	args := m.Called(ctx, authToken, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallSession), args.Error(1)
}

func (m *MockSessionRepository) End(ctx context.Context, authToken, sessionID string) error {
	args := m.Called(ctx, authToken, sessionID)
	return args.Error(0)
}

func TestStartSession_Success(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := NewService(repo)
	ctx := context.Background()

	want := &domain.CallSession{SessionID: "s1", ChannelName: "room-42", RTCToken: "tok-xyz", CallType: domain.CallTypeVoice}
	repo.On("Start", ctx, "auth", "c1", domain.CallTypeVoice).Return(want, nil)

	got, err := svc.StartSession(ctx, "c1", domain.CallTypeVoice, "auth")

	require.NoError(t, err)
	assert.Equal(t, want, got)
	repo.AssertExpectations(t)
}

func TestStartSession_RejectedKeepsCode(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := NewService(repo)
	ctx := context.Background()

	repo.On("Start", ctx, "auth", "c1", domain.CallTypeVideo).
		Return(nil, errors.SessionError("INSUFFICIENT_BALANCE", "Balance too low", 402)).Once()

	_, err := svc.StartSession(ctx, "c1", domain.CallTypeVideo, "auth")

	require.Error(t, err)
	assert.True(t, errors.IsInsufficientBalance(err))
	repo.AssertNumberOfCalls(t, "Start", 1)
}

func TestStartSession_Validation(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := NewService(repo)

	_, err := svc.StartSession(context.Background(), "", domain.CallTypeVoice, "auth")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingField))

	_, err = svc.StartSession(context.Background(), "c1", domain.CallType("fax"), "auth")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	repo.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEndSession_SwallowsErrors(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := NewService(repo)
	ctx := context.Background()

	repo.On("End", ctx, "auth", "s1").Return(stderrors.New("connection reset"))

	assert.NotPanics(t, func() { svc.EndSession(ctx, "s1", "auth") })
	repo.AssertExpectations(t)
}

func TestEndSession_EmptyIDIsNoop(t *testing.T) {
	repo := new(MockSessionRepository)
	NewService(repo).EndSession(context.Background(), "", "auth")
	repo.AssertNotCalled(t, "End", mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinSession(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := NewService(repo)
	ctx := context.Background()

	want := &domain.CallSession{SessionID: "s1", ChannelName: "call-s1", RTCToken: "tok-c", CallType: domain.CallTypeVideo, CallerID: "u1"}
	repo.On("Join", ctx, "auth", "s1").Return(want, nil).Once()
	repo.On("Join", ctx, "auth", "s2").Return(nil, errors.NewWithStatus(errors.ErrCodeForbidden, "Not the called party", 403)).Once()

	got, err := svc.JoinSession(ctx, "s1", "auth")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.JoinSession(ctx, "s2", "auth")
	assert.True(t, errors.IsCode(err, errors.ErrCodeForbidden))

	_, err = svc.JoinSession(ctx, "", "auth")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingField))
	repo.AssertExpectations(t)
}
