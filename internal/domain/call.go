package domain

import (
	"fmt"
	"time"
)

// CallType selects which local tracks a call publishes
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// ParseCallType validates a call type string
func ParseCallType(s string) (CallType, error) {
	switch CallType(s) {
	case CallTypeVoice, CallTypeVideo:
		return CallType(s), nil
	}
	return "", fmt.Errorf("unknown call type %q", s)
}

// WantsVideo reports whether the call publishes a camera track
func (t CallType) WantsVideo() bool {
	return t == CallTypeVideo
}

// Stage is a discrete phase of the call lifecycle
type Stage string

const (
	StageIdle      Stage = "idle"
	StagePreparing Stage = "preparing"
	StageRinging   Stage = "ringing"
	StageConnected Stage = "connected"
	StageEnded     Stage = "ended"
)

// CallSession is the backend-issued descriptor authorizing one call attempt.
// It is held in memory only.
type CallSession struct {
	SessionID   string   `json:"id"`
	ChannelName string   `json:"channelName"`
	RTCToken    string   `json:"rtcToken"`
	CallType    CallType `json:"type"`
	// CallerID is set when the called party joins a session someone else started
	CallerID string `json:"callerId,omitempty"`
}

// Ready reports whether the descriptor carries everything needed to join a room
func (s *CallSession) Ready() bool {
	return s != nil && s.SessionID != "" && s.ChannelName != "" && s.RTCToken != ""
}

// Party identifies the remote consultant
type Party struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// CallState is the snapshot owned by the call store. There is one per process.
type CallState struct {
	Stage       Stage        `json:"stage"`
	AttemptID   string       `json:"attemptId,omitempty"`
	Consultant  Party        `json:"consultant"`
	CallType    CallType     `json:"callType,omitempty"`
	Session     *CallSession `json:"session,omitempty"`
	Error       string       `json:"error,omitempty"`
	ErrorCode   string       `json:"errorCode,omitempty"`
	StartedAt   time.Time    `json:"startedAt,omitempty"`
	ConnectedAt time.Time    `json:"connectedAt,omitempty"`
}

// IsIdle reports whether no call is active
func (s CallState) IsIdle() bool {
	return s.Stage == StageIdle || s.Stage == ""
}

// Active reports whether the call holds (or is acquiring) session resources
func (s CallState) Active() bool {
	switch s.Stage {
	case StagePreparing, StageRinging, StageConnected:
		return true
	}
	return false
}

// Failed reports whether the call ended with an error
func (s CallState) Failed() bool {
	return s.Stage == StageEnded && s.Error != ""
}

// Elapsed returns the connected duration at now, or zero before connect
func (s CallState) Elapsed(now time.Time) time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	return now.Sub(s.ConnectedAt)
}

// RemoteParticipant mirrors a remote room member and its published kinds
type RemoteParticipant struct {
	UID      uint32 `json:"uid"`
	HasAudio bool   `json:"hasAudio"`
	HasVideo bool   `json:"hasVideo"`
}

// HasMedia reports whether any track is published
func (p RemoteParticipant) HasMedia() bool {
	return p.HasAudio || p.HasVideo
}

// StartSessionRequest is the body of POST /communication/session/start
type StartSessionRequest struct {
	RemotePartyID string   `json:"remotePartyId" binding:"required"`
	Type          CallType `json:"type" binding:"required,oneof=voice video"`
}

// JoinSessionRequest is the body of POST /communication/session/join
type JoinSessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// EndSessionRequest is the body of POST /communication/session/end
type EndSessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}
