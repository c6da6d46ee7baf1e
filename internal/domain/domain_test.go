package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSender_UnmarshalString(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"m1","sender":"u1","content":"hi","messageType":"text","createdAt":"2024-01-01T00:00:00Z"}`), &m)
	require.NoError(t, err)
	assert.Equal(t, "u1", m.Sender.ID)
	assert.Empty(t, m.Sender.Name)
	assert.True(t, m.IsMine("u1"))
	assert.False(t, m.IsMine("u2"))
}

func TestSender_UnmarshalObject(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":"m1","sender":{"id":"u2","name":"Bob","avatar":"a.png"},"content":"hi"}`), &m)
	require.NoError(t, err)
	assert.Equal(t, Sender{ID: "u2", Name: "Bob", Avatar: "a.png"}, m.Sender)
}

func TestSender_UnmarshalInvalid(t *testing.T) {
	var s Sender
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestCallSession_Ready(t *testing.T) {
	var nilSession *CallSession
	assert.False(t, nilSession.Ready())
	assert.False(t, (&CallSession{SessionID: "s1", ChannelName: "room-42"}).Ready())
	assert.True(t, (&CallSession{SessionID: "s1", ChannelName: "room-42", RTCToken: "tok"}).Ready())
}

func TestParseCallType(t *testing.T) {
	ct, err := ParseCallType("video")
	require.NoError(t, err)
	assert.True(t, ct.WantsVideo())

	ct, err = ParseCallType("voice")
	require.NoError(t, err)
	assert.False(t, ct.WantsVideo())

	_, err = ParseCallType("fax")
	assert.Error(t, err)
}

func TestCallState_Elapsed(t *testing.T) {
	s := CallState{Stage: StageRinging}
	assert.Zero(t, s.Elapsed(time.Now()))

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s.ConnectedAt = at
	assert.Equal(t, 90*time.Second, s.Elapsed(at.Add(90*time.Second)))
}
