package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultline/internal/devstore"
	"consultline/internal/domain"
	"consultline/pkg/jwt"
	"consultline/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	router   *gin.Engine
	tokens   *jwt.JWTManager
	sessions *devstore.MemorySessionStore
	wallet   *devstore.MemoryWallet
	messages *devstore.MessageStore
}

func newEnv(t *testing.T, balance int) *env {
	t.Helper()
	e := &env{
		tokens:   jwt.NewJWTManager("test-secret-test-secret-test-secret", time.Hour, time.Hour),
		sessions: devstore.NewMemorySessionStore(),
		wallet:   devstore.NewMemoryWallet(balance),
		messages: devstore.NewMessageStore(),
	}
	m := metrics.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	h := NewHandler(e.sessions, e.wallet, e.messages, e.tokens, m, 10)

	e.router = gin.New()
	auth := func(c *gin.Context) { c.Set("user_id", c.GetHeader("X-User")); c.Next() }
	e.router.POST("/communication/session/start", auth, h.Start)
	e.router.POST("/communication/session/join", auth, h.Join)
	e.router.POST("/communication/session/end", auth, h.End)
	return e
}

func (e *env) post(t *testing.T, path, user string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestStart_IssuesSession(t *testing.T) {
	e := newEnv(t, 100)
	w, out := e.post(t, "/communication/session/start", "u1", domain.StartSessionRequest{RemotePartyID: "c1", Type: domain.CallTypeVideo})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["ok"])

	session := out["session"].(map[string]any)
	assert.NotEmpty(t, session["id"])
	assert.Equal(t, "video", session["type"])
	channel := session["channelName"].(string)
	claims, err := e.tokens.ValidateRTCToken(session["rtcToken"].(string), channel)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	balance, _ := e.wallet.Balance(context.Background(), "u1")
	assert.Equal(t, 90, balance)
}

func TestStart_InsufficientBalance(t *testing.T) {
	e := newEnv(t, 5)
	w, out := e.post(t, "/communication/session/start", "u1", domain.StartSessionRequest{RemotePartyID: "c1", Type: domain.CallTypeVoice})

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "INSUFFICIENT_BALANCE", out["errorCode"])
	assert.NotEmpty(t, out["error"])
	assert.Nil(t, out["session"])
}

func TestStart_Rejections(t *testing.T) {
	e := newEnv(t, 100)

	w, out := e.post(t, "/communication/session/start", "u1", domain.StartSessionRequest{RemotePartyID: "u1", Type: domain.CallTypeVoice})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PARTY_UNAVAILABLE", out["errorCode"])

	w, out = e.post(t, "/communication/session/start", "u1", map[string]string{"remotePartyId": "c1", "type": "fax"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", out["errorCode"])

	balance, _ := e.wallet.Balance(context.Background(), "u1")
	assert.Equal(t, 100, balance)
}

func TestJoin_AdmitsOnlyTheCalledParty(t *testing.T) {
	e := newEnv(t, 100)
	_, out := e.post(t, "/communication/session/start", "u1", domain.StartSessionRequest{RemotePartyID: "c1", Type: domain.CallTypeVideo})
	started := out["session"].(map[string]any)
	id := started["id"].(string)

	w, out := e.post(t, "/communication/session/join", "u1", domain.JoinSessionRequest{SessionID: id})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", out["errorCode"])

	w, out = e.post(t, "/communication/session/join", "c1", domain.JoinSessionRequest{SessionID: id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["ok"])

	joined := out["session"].(map[string]any)
	assert.Equal(t, id, joined["id"])
	assert.Equal(t, started["channelName"], joined["channelName"])
	assert.Equal(t, "video", joined["type"])
	assert.Equal(t, "u1", joined["callerId"])
	claims, err := e.tokens.ValidateRTCToken(joined["rtcToken"].(string), joined["channelName"].(string))
	require.NoError(t, err)
	assert.Equal(t, "c1", claims.UserID)

	balance, _ := e.wallet.Balance(context.Background(), "c1")
	assert.Equal(t, 100, balance)

	w, out = e.post(t, "/communication/session/join", "c1", domain.JoinSessionRequest{SessionID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", out["errorCode"])
}

func TestEnd_ReleasesSessionAndLogsCall(t *testing.T) {
	e := newEnv(t, 100)
	_, out := e.post(t, "/communication/session/start", "u1", domain.StartSessionRequest{RemotePartyID: "c1", Type: domain.CallTypeVoice})
	id := out["session"].(map[string]any)["id"].(string)

	w, _ := e.post(t, "/communication/session/end", "u2", domain.EndSessionRequest{SessionID: id})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out = e.post(t, "/communication/session/end", "u1", domain.EndSessionRequest{SessionID: id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["ok"])

	history := e.messages.Page(domain.DirectConversationID("c1", "u1"), 1, 20)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, domain.MessageTypeCallLog, history.Messages[0].MessageType)
	assert.Contains(t, history.Messages[0].Content, "Voice call ended")

	w, out = e.post(t, "/communication/session/end", "u1", domain.EndSessionRequest{SessionID: id})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", out["errorCode"])
}

func TestCallSummary(t *testing.T) {
	assert.Equal(t, "Video call ended (02:03)", callSummary(domain.CallTypeVideo, 2*time.Minute+3*time.Second))
	assert.Equal(t, "Voice call ended (00:00)", callSummary(domain.CallTypeVoice, 0))
}
