package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultline/internal/domain"
	"consultline/pkg/errors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestSessionRepository_Start_Success(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/communication/session/start", r.URL.Path)
		assert.Equal(t, "Bearer tok-user", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body["remotePartyId"])
		assert.Equal(t, "voice", body["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"session":{"id":"s1","channelName":"room-42","rtcToken":"tok-xyz","type":"voice"}}`))
	})

	repo := NewSessionRepository(client)
	session, err := repo.Start(context.Background(), "tok-user", "c1", domain.CallTypeVoice)

	require.NoError(t, err)
	assert.Equal(t, &domain.CallSession{
		SessionID:   "s1",
		ChannelName: "room-42",
		RTCToken:    "tok-xyz",
		CallType:    domain.CallTypeVoice,
	}, session)
}

func TestSessionRepository_Start_InsufficientBalance(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"ok":false,"error":"Balance too low","errorCode":"INSUFFICIENT_BALANCE"}`))
	})

	repo := NewSessionRepository(client)
	session, err := repo.Start(context.Background(), "tok", "c1", domain.CallTypeVideo)

	assert.Nil(t, session)
	require.Error(t, err)
	assert.True(t, errors.IsInsufficientBalance(err))
	appErr := errors.GetAppError(err)
	assert.Equal(t, "Balance too low", appErr.Message)
	assert.Equal(t, http.StatusPaymentRequired, appErr.StatusCode)
}

func TestSessionRepository_Start_OKFalseOn200(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"Consultant offline","errorCode":"PARTY_UNAVAILABLE"}`))
	})

	_, err := NewSessionRepository(client).Start(context.Background(), "tok", "c1", domain.CallTypeVoice)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodePartyUnavailable))
}

func TestSessionRepository_Start_IncompleteSession(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"session":{"id":"s1","channelName":"room-42"}}`))
	})

	_, err := NewSessionRepository(client).Start(context.Background(), "tok", "c1", domain.CallTypeVoice)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSession))
}

func TestSessionRepository_Start_ErrorWithoutCode(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := NewSessionRepository(client).Start(context.Background(), "tok", "c1", domain.CallTypeVoice)

	require.Error(t, err)
	appErr := errors.GetAppError(err)
	assert.Equal(t, errors.ErrCodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
}

func TestSessionRepository_Start_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewSessionRepository(NewClient(srv.URL, time.Second)).Start(context.Background(), "tok", "c1", domain.CallTypeVoice)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNetwork))
}

func TestSessionRepository_End(t *testing.T) {
	var got string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/communication/session/end", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body["sessionId"]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := NewSessionRepository(client).End(context.Background(), "tok", "s1")

	require.NoError(t, err)
	assert.Equal(t, "s1", got)
}

func TestSessionRepository_Join(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/communication/session/join", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1", body["sessionId"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"session":{"id":"s1","channelName":"call-s1","rtcToken":"tok-c","type":"video","callerId":"u1"}}`))
	})

	session, err := NewSessionRepository(client).Join(context.Background(), "tok-consultant", "s1")

	require.NoError(t, err)
	assert.Equal(t, "u1", session.CallerID)
	assert.Equal(t, domain.CallTypeVideo, session.CallType)
	assert.Equal(t, "call-s1", session.ChannelName)
}

func TestSessionRepository_Join_Forbidden(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error":"Not the called party","errorCode":"FORBIDDEN"}`))
	})

	_, err := NewSessionRepository(client).Join(context.Background(), "tok", "s1")

	assert.True(t, errors.IsCode(err, errors.ErrCodeForbidden))
}
