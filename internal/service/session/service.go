package session

import (
	"context"

	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/pkg/errors"
	"consultline/pkg/logger"
)

// SessionRepository is the backend transport for session requests
type SessionRepository interface {
	Start(ctx context.Context, authToken, remotePartyID string, callType domain.CallType) (*domain.CallSession, error)
	Join(ctx context.Context, authToken, sessionID string) (*domain.CallSession, error)
	End(ctx context.Context, authToken, sessionID string) error
}

// Service negotiates call sessions with the backend. It makes a single
// attempt per request and keeps no state.
type Service struct {
	repo SessionRepository
}

// NewService creates a new session negotiation service
func NewService(repo SessionRepository) *Service {
	return &Service{repo: repo}
}

// StartSession requests a session for a call to remotePartyID. Rejections
// carry the server's errorCode; mapping codes to UI flows is up to the caller.
func (s *Service) StartSession(ctx context.Context, remotePartyID string, callType domain.CallType, authToken string) (*domain.CallSession, error) {
	if remotePartyID == "" {
		return nil, errors.MissingFieldError("remotePartyId")
	}
	if _, err := domain.ParseCallType(string(callType)); err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	session, err := s.repo.Start(ctx, authToken, remotePartyID, callType)
	if err != nil {
		logger.FromContext(ctx).Warn("Session negotiation failed",
			zap.String("remote_party_id", remotePartyID),
			zap.String("call_type", string(callType)),
			zap.String("error_code", string(errors.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	logger.FromContext(ctx).Info("Session started",
		zap.String("session_id", session.SessionID),
		zap.String("channel", session.ChannelName))

	return session, nil
}

// JoinSession fetches a room credential for a session another party
// started. Only the called party is admitted.
func (s *Service) JoinSession(ctx context.Context, sessionID, authToken string) (*domain.CallSession, error) {
	if sessionID == "" {
		return nil, errors.MissingFieldError("sessionId")
	}

	session, err := s.repo.Join(ctx, authToken, sessionID)
	if err != nil {
		logger.FromContext(ctx).Warn("Session join failed",
			zap.String("session_id", sessionID),
			zap.String("error_code", string(errors.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	logger.FromContext(ctx).Info("Session joined",
		zap.String("session_id", session.SessionID),
		zap.String("caller_id", session.CallerID))

	return session, nil
}

// EndSession tells the backend the session is over. It never fails: errors
// are logged and swallowed so local cleanup is never blocked.
func (s *Service) EndSession(ctx context.Context, sessionID, authToken string) {
	if sessionID == "" {
		return
	}
	if err := s.repo.End(ctx, authToken, sessionID); err != nil {
		logger.FromContext(ctx).Warn("Failed to end session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	logger.FromContext(ctx).Debug("Session ended", zap.String("session_id", sessionID))
}
