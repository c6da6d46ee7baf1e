package api

import (
	"context"

	"github.com/go-resty/resty/v2"

	"consultline/internal/domain"
	"consultline/pkg/errors"
)

// SessionRepository issues and ends call sessions on the backend
type SessionRepository struct {
	client *Client
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

type sessionResponse struct {
	OK        bool                `json:"ok"`
	Session   *domain.CallSession `json:"session"`
	Error     string              `json:"error"`
	ErrorCode string              `json:"errorCode"`
}

// Start requests a session for a call to remotePartyID. Any rejection is
// returned as a session error carrying the server's errorCode.
func (r *SessionRepository) Start(ctx context.Context, authToken, remotePartyID string, callType domain.CallType) (*domain.CallSession, error) {
	var out sessionResponse
	resp, err := r.client.request(ctx, authToken).
		SetBody(domain.StartSessionRequest{RemotePartyID: remotePartyID, Type: callType}).
		SetResult(&out).
		Post("/communication/session/start")

	return decodeSession(resp, err, &out, callType)
}

// Join fetches a room credential for a session started by the other party
func (r *SessionRepository) Join(ctx context.Context, authToken, sessionID string) (*domain.CallSession, error) {
	var out sessionResponse
	resp, err := r.client.request(ctx, authToken).
		SetBody(domain.JoinSessionRequest{SessionID: sessionID}).
		SetResult(&out).
		Post("/communication/session/join")

	return decodeSession(resp, err, &out, domain.CallTypeVoice)
}

func decodeSession(resp *resty.Response, err error, out *sessionResponse, fallback domain.CallType) (*domain.CallSession, error) {
	if err := check(resp, err); err != nil {
		if errors.IsCode(err, errors.ErrCodeNetwork) {
			return nil, err
		}
		appErr := errors.GetAppError(err)
		return nil, errors.SessionError(string(appErr.Code), appErr.Message, appErr.StatusCode)
	}

	if !out.OK || out.Session == nil {
		return nil, errors.SessionError(out.ErrorCode, out.Error, resp.StatusCode())
	}
	if out.Session.CallType == "" {
		out.Session.CallType = fallback
	}
	if !out.Session.Ready() {
		return nil, errors.SessionError("", "Backend returned an incomplete session", resp.StatusCode())
	}

	return out.Session, nil
}

// End releases the session on the backend
func (r *SessionRepository) End(ctx context.Context, authToken, sessionID string) error {
	resp, err := r.client.request(ctx, authToken).
		SetBody(domain.EndSessionRequest{SessionID: sessionID}).
		Post("/communication/session/end")
	return check(resp, err)
}
