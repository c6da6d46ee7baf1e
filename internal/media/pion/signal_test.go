package pion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultline/internal/domain"
	"consultline/internal/media"
)

// fakeHub accepts one socket, sends welcome and records what it receives
type fakeHub struct {
	srv      *httptest.Server
	received chan domain.SignalMessage
	conns    chan *websocket.Conn
	header   chan http.Header
}

func newFakeHub(t *testing.T, welcome domain.SignalMessage) *fakeHub {
	t.Helper()
	h := &fakeHub{
		received: make(chan domain.SignalMessage, 16),
		conns:    make(chan *websocket.Conn, 1),
		header:   make(chan http.Header, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.header <- r.Header.Clone()
		if r.URL.Query().Get("channel") != "room-42" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(welcome)
		h.conns <- conn
		for {
			var msg domain.SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				close(h.received)
				return
			}
			h.received <- msg
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHub) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func TestDialSignal_Welcome(t *testing.T) {
	hub := newFakeHub(t, domain.SignalMessage{Type: domain.SignalTypeWelcome, UID: 7, Peers: []uint32{3}})

	sig, welcome, err := dialSignal(context.Background(), hub.url(), "room-42", "tok-xyz", "app-1")
	require.NoError(t, err)
	defer sig.Close()

	assert.Equal(t, uint32(7), welcome.UID)
	assert.Equal(t, []uint32{3}, welcome.Peers)

	header := <-hub.header
	assert.Equal(t, "Bearer tok-xyz", header.Get("Authorization"))
	assert.Equal(t, "app-1", header.Get("X-App-ID"))
}

func TestDialSignal_RelaysBothWays(t *testing.T) {
	hub := newFakeHub(t, domain.SignalMessage{Type: domain.SignalTypeWelcome, UID: 7})

	sig, _, err := dialSignal(context.Background(), hub.url(), "room-42", "tok", "")
	require.NoError(t, err)
	conn := <-hub.conns

	require.NoError(t, sig.Send(domain.SignalMessage{Type: domain.SignalTypeOffer, To: 3, SDP: "v=0"}))
	select {
	case got := <-hub.received:
		assert.Equal(t, domain.SignalTypeOffer, got.Type)
		assert.Equal(t, uint32(3), got.To)
		assert.Equal(t, "v=0", got.SDP)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not receive offer")
	}

	require.NoError(t, conn.WriteJSON(domain.SignalMessage{Type: domain.SignalTypeJoin, From: 9}))
	select {
	case got := <-sig.Messages():
		assert.Equal(t, domain.SignalTypeJoin, got.Type)
		assert.Equal(t, uint32(9), got.From)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not receive join")
	}

	require.NoError(t, sig.Close())
	require.NoError(t, sig.Close())
	assert.Error(t, sig.Send(domain.SignalMessage{Type: domain.SignalTypeLeave}))
}

func TestDialSignal_Rejected(t *testing.T) {
	hub := newFakeHub(t, domain.SignalMessage{Type: domain.SignalTypeWelcome, UID: 7})

	_, _, err := dialSignal(context.Background(), hub.url(), "room-43", "tok", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDialSignal_BadWelcome(t *testing.T) {
	hub := newFakeHub(t, domain.SignalMessage{Type: domain.SignalTypeJoin})

	_, _, err := dialSignal(context.Background(), hub.url(), "room-42", "tok", "")

	assert.Error(t, err)
}

func TestRoom_JoinLeave(t *testing.T) {
	hub := newFakeHub(t, domain.SignalMessage{Type: domain.SignalTypeWelcome, UID: 11})
	room := newRoom(webrtc.NewAPI(), RoomConfig{SignalURL: hub.url()})

	uid, err := room.Join(context.Background(), media.JoinConfig{RoomID: "room-42", Credential: "tok"})
	require.NoError(t, err)
	assert.Equal(t, uint32(11), uid)

	_, ok := room.RemoteTrack(3, media.KindAudio)
	assert.False(t, ok)

	require.NoError(t, room.Leave())
	require.NoError(t, room.Leave())

	select {
	case got := <-hub.received:
		assert.Equal(t, domain.SignalTypeLeave, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not receive leave")
	}

	_, open := <-room.Events()
	assert.False(t, open)
}

func TestRoom_LeaveWithoutJoin(t *testing.T) {
	room := newRoom(webrtc.NewAPI(), RoomConfig{})
	require.NoError(t, room.Leave())
	_, open := <-room.Events()
	assert.False(t, open)
}

func TestRoom_PublishRejectsForeignTracks(t *testing.T) {
	room := newRoom(webrtc.NewAPI(), RoomConfig{})
	err := room.Publish(context.Background(), foreignTrack{})
	assert.Error(t, err)
}

type foreignTrack struct{}

func (foreignTrack) Kind() media.Kind { return media.KindAudio }
func (foreignTrack) Close() error     { return nil }
