package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultline/internal/domain"
	"consultline/pkg/errors"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func preparing(t *testing.T) domain.CallState {
	t.Helper()
	st, err := Reduce(domain.CallState{Stage: domain.StageIdle}, Event{
		Type:      EventInitiate,
		AttemptID: "a1",
		At:        t0,
		Party:     domain.Party{ID: "c1", Name: "Dr. Lee"},
		CallType:  domain.CallTypeVoice,
	})
	require.NoError(t, err)
	return st
}

func ringing(t *testing.T) domain.CallState {
	t.Helper()
	st, err := Reduce(preparing(t), Event{
		Type:      EventSessionReady,
		AttemptID: "a1",
		Session:   &domain.CallSession{SessionID: "s1", ChannelName: "room-42", RTCToken: "tok-xyz", CallType: domain.CallTypeVoice},
	})
	require.NoError(t, err)
	return st
}

func TestReduce_InitiateResetsSessionFields(t *testing.T) {
	st := preparing(t)

	assert.Equal(t, domain.StagePreparing, st.Stage)
	assert.Equal(t, "a1", st.AttemptID)
	assert.Equal(t, "c1", st.Consultant.ID)
	assert.Equal(t, domain.CallTypeVoice, st.CallType)
	assert.Nil(t, st.Session)
	assert.Empty(t, st.Error)
	assert.Equal(t, t0, st.StartedAt)
}

func TestReduce_InitiateRejectedWhenNotIdle(t *testing.T) {
	for _, st := range []domain.CallState{preparing(t), ringing(t), {Stage: domain.StageEnded}} {
		next, err := Reduce(st, Event{Type: EventInitiate, AttemptID: "a2", Party: domain.Party{ID: "c2"}, CallType: domain.CallTypeVideo})
		assert.True(t, errors.IsCode(err, errors.ErrCodeCallInProgress), "stage %s", st.Stage)
		assert.Equal(t, st, next)
	}
}

func TestReduce_InitiateValidates(t *testing.T) {
	_, err := Reduce(domain.CallState{}, Event{Type: EventInitiate, CallType: domain.CallTypeVoice})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingField))

	_, err = Reduce(domain.CallState{}, Event{Type: EventInitiate, Party: domain.Party{ID: "c1"}, CallType: "fax"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestReduce_RingingStoresSessionExactly(t *testing.T) {
	st := ringing(t)

	require.Equal(t, domain.StageRinging, st.Stage)
	require.NotNil(t, st.Session)
	assert.Equal(t, "s1", st.Session.SessionID)
	assert.Equal(t, "room-42", st.Session.ChannelName)
	assert.Equal(t, "tok-xyz", st.Session.RTCToken)
}

func TestReduce_RingingNeverWithIncompleteSession(t *testing.T) {
	incomplete := []*domain.CallSession{
		nil,
		{SessionID: "s1", ChannelName: "room-42"},
		{SessionID: "s1", RTCToken: "tok"},
		{ChannelName: "room-42", RTCToken: "tok"},
	}
	for _, session := range incomplete {
		st, err := Reduce(preparing(t), Event{Type: EventSessionReady, AttemptID: "a1", Session: session})
		require.NoError(t, err)
		assert.Equal(t, domain.StageEnded, st.Stage)
		assert.Equal(t, string(errors.ErrCodeSession), st.ErrorCode)
		assert.Nil(t, st.Session)
	}
}

func TestReduce_StaleAttemptRejected(t *testing.T) {
	st := preparing(t)
	next, err := Reduce(st, Event{Type: EventSessionReady, AttemptID: "old", Session: &domain.CallSession{SessionID: "s", ChannelName: "c", RTCToken: "t"}})

	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
	assert.Equal(t, st, next)
}

func TestReduce_FailedEndsWithError(t *testing.T) {
	for _, st := range []domain.CallState{preparing(t), ringing(t)} {
		next, err := Reduce(st, Event{Type: EventFailed, AttemptID: "a1", Err: "Balance too low", Code: "INSUFFICIENT_BALANCE"})
		require.NoError(t, err)
		assert.Equal(t, domain.StageEnded, next.Stage)
		assert.Equal(t, "Balance too low", next.Error)
		assert.Equal(t, "INSUFFICIENT_BALANCE", next.ErrorCode)
		assert.True(t, next.Failed())
	}

	_, err := Reduce(domain.CallState{Stage: domain.StageIdle}, Event{Type: EventFailed, Err: "x"})
	assert.Error(t, err)
}

func TestReduce_ConnectAndRemoteLeft(t *testing.T) {
	joinedAt := t0.Add(5 * time.Second)
	st, err := Reduce(ringing(t), Event{Type: EventRemoteJoined, AttemptID: "a1", At: joinedAt})
	require.NoError(t, err)
	assert.Equal(t, domain.StageConnected, st.Stage)
	assert.Equal(t, joinedAt, st.ConnectedAt)
	assert.Equal(t, 10*time.Second, st.Elapsed(joinedAt.Add(10*time.Second)))

	again, err := Reduce(st, Event{Type: EventRemoteJoined, AttemptID: "a1", At: joinedAt.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, st, again)

	left, err := Reduce(st, Event{Type: EventRemoteLeft, AttemptID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StageEnded, left.Stage)
	assert.False(t, left.Failed())
}

func TestReduce_RemoteJoinedOnlyFromRinging(t *testing.T) {
	_, err := Reduce(preparing(t), Event{Type: EventRemoteJoined, AttemptID: "a1"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

func TestReduce_HangupFromAnyNonIdle(t *testing.T) {
	for _, st := range []domain.CallState{preparing(t), ringing(t)} {
		next, err := Reduce(st, Event{Type: EventHangup})
		require.NoError(t, err)
		assert.Equal(t, domain.StageEnded, next.Stage)
		assert.Empty(t, next.Error)
	}

	failed := domain.CallState{Stage: domain.StageEnded, Error: "boom"}
	next, err := Reduce(failed, Event{Type: EventHangup})
	require.NoError(t, err)
	assert.Equal(t, failed, next)

	_, err = Reduce(domain.CallState{Stage: domain.StageIdle}, Event{Type: EventHangup})
	assert.Error(t, err)
}

func TestReduce_ResetOnlyFromEndedOrIdle(t *testing.T) {
	st, err := Reduce(domain.CallState{Stage: domain.StageEnded, Error: "boom", Consultant: domain.Party{ID: "c1"}}, Event{Type: EventReset})
	require.NoError(t, err)
	assert.Equal(t, domain.CallState{Stage: domain.StageIdle}, st)

	_, err = Reduce(ringing(t), Event{Type: EventReset})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

func TestReduce_TaggedHangupAndResetIgnoreOtherAttempts(t *testing.T) {
	st := ringing(t)

	_, err := Reduce(st, Event{Type: EventHangup, AttemptID: "older"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))

	next, err := Reduce(st, Event{Type: EventHangup, AttemptID: st.AttemptID})
	require.NoError(t, err)
	assert.Equal(t, domain.StageEnded, next.Stage)

	_, err = Reduce(next, Event{Type: EventReset, AttemptID: "older"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))

	idle, err := Reduce(next, Event{Type: EventReset, AttemptID: st.AttemptID})
	require.NoError(t, err)
	assert.Equal(t, domain.StageIdle, idle.Stage)
}

func TestReduce_UnknownEvent(t *testing.T) {
	_, err := Reduce(domain.CallState{}, Event{Type: "teleport"})
	assert.Error(t, err)
}
