package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultline/internal/devstore"
	"consultline/internal/domain"
	"consultline/pkg/jwt"
	"consultline/pkg/metrics"
)

const testChannel = "call-room-42"

type hubEnv struct {
	hub    *SignalingHub
	tokens *jwt.JWTManager
	url    string
}

func newHubEnv(t *testing.T) *hubEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := jwt.NewJWTManager("test-secret-test-secret-test-secret", time.Hour, time.Hour)
	m := metrics.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	hub := NewSignalingHub(&devstore.MemoryUIDAllocator{}, tokens, m, 10, nil)

	r := gin.New()
	r.GET("/rtc/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})

	return &hubEnv{
		hub:    hub,
		tokens: tokens,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/rtc/ws?channel=",
	}
}

func (e *hubEnv) dial(t *testing.T, user, tokenChannel string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := e.tokens.GenerateRTCToken(user, tokenChannel)
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return websocket.DefaultDialer.Dial(e.url+testChannel, header)
}

func read(t *testing.T, conn *websocket.Conn) domain.SignalMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg domain.SignalMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_WelcomeJoinRelayLeave(t *testing.T) {
	e := newHubEnv(t)

	a, _, err := e.dial(t, "u1", testChannel)
	require.NoError(t, err)
	defer a.Close()

	welcomeA := read(t, a)
	assert.Equal(t, domain.SignalTypeWelcome, welcomeA.Type)
	assert.Equal(t, uint32(1), welcomeA.UID)
	assert.Empty(t, welcomeA.Peers)

	b, _, err := e.dial(t, "c1", testChannel)
	require.NoError(t, err)

	welcomeB := read(t, b)
	assert.Equal(t, uint32(2), welcomeB.UID)
	assert.Equal(t, []uint32{1}, welcomeB.Peers)

	join := read(t, a)
	assert.Equal(t, domain.SignalTypeJoin, join.Type)
	assert.Equal(t, uint32(2), join.From)

	require.NoError(t, b.WriteJSON(domain.SignalMessage{Type: domain.SignalTypeOffer, To: 1, SDP: "v=0"}))
	offer := read(t, a)
	assert.Equal(t, domain.SignalTypeOffer, offer.Type)
	assert.Equal(t, uint32(2), offer.From)
	assert.Equal(t, "v=0", offer.SDP)
	assert.Equal(t, testChannel, offer.Channel)

	// A forged sender is overwritten by the hub
	require.NoError(t, a.WriteJSON(domain.SignalMessage{Type: domain.SignalTypeAnswer, From: 99, To: 2, SDP: "v=1"}))
	answer := read(t, b)
	assert.Equal(t, uint32(1), answer.From)

	require.NoError(t, b.WriteJSON(domain.SignalMessage{Type: domain.SignalTypeICE, Candidate: []byte(`{"candidate":"c"}`)}))
	ice := read(t, a)
	assert.Equal(t, domain.SignalTypeICE, ice.Type)
	assert.JSONEq(t, `{"candidate":"c"}`, string(ice.Candidate))

	assert.Equal(t, []uint32{1, 2}, e.hub.Peers(testChannel))

	require.NoError(t, b.WriteJSON(domain.SignalMessage{Type: domain.SignalTypeLeave}))
	leave := read(t, a)
	assert.Equal(t, domain.SignalTypeLeave, leave.Type)
	assert.Equal(t, uint32(2), leave.From)

	assert.Eventually(t, func() bool {
		return len(e.hub.Peers(testChannel)) == 1
	}, time.Second, 10*time.Millisecond)
	b.Close()
}

func TestHub_RejectsBadCredentials(t *testing.T) {
	e := newHubEnv(t)

	_, resp, err := e.dial(t, "u1", "some-other-channel")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(e.url+testChannel, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	access, _ := e.tokens.GenerateAccessToken("u1", "")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+access)
	_, resp, err = websocket.DefaultDialer.Dial(e.url+testChannel, header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_DisconnectAnnouncesLeave(t *testing.T) {
	e := newHubEnv(t)

	a, _, err := e.dial(t, "u1", testChannel)
	require.NoError(t, err)
	defer a.Close()
	read(t, a)

	b, _, err := e.dial(t, "c1", testChannel)
	require.NoError(t, err)
	read(t, b)
	read(t, a)

	b.Close()
	leave := read(t, a)
	assert.Equal(t, domain.SignalTypeLeave, leave.Type)
	assert.Equal(t, uint32(2), leave.From)
}
