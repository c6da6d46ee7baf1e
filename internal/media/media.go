// Package media wraps a real-time audio/video transport behind a small set of
// capability interfaces. Adapter owns the local track lifecycle for one call
// and turns the room's per-kind remote events into one joined/left
// notification per participant.
package media

import (
	"context"
	"errors"
)

// Kind is the media kind of a track
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ErrNoDevice is returned by a Capturer when no device of the kind exists or
// access was refused. The two causes are not distinguished.
var ErrNoDevice = errors.New("media device unavailable")

// JoinConfig describes the room to join
type JoinConfig struct {
	RoomID     string
	Credential string
	AppID      string

	// WithoutMicrophone and WithoutCamera skip acquiring a track the user
	// agreed to go without after a failed device check.
	WithoutMicrophone bool
	WithoutCamera     bool
}

// LocalTrack is an acquired capture track
type LocalTrack interface {
	Kind() Kind
	// Close stops capture and releases the device
	Close() error
}

// RemoteTrack is a track received from a remote participant
type RemoteTrack interface {
	Kind() Kind
	UID() uint32
}

// Capturer acquires local capture devices
type Capturer interface {
	Microphone(ctx context.Context) (LocalTrack, error)
	Camera(ctx context.Context) (LocalTrack, error)
}

// RoomEventType is the raw event kind emitted by a Room
type RoomEventType int

const (
	// RemotePublished fires once per remote track that becomes available
	RemotePublished RoomEventType = iota
	// RemoteUnpublished fires when a single remote track goes away
	RemoteUnpublished
	// RemoteLeft fires when a remote participant leaves the room
	RemoteLeft
)

// RoomEvent is a raw per-kind room event
type RoomEvent struct {
	Type RoomEventType
	UID  uint32
	Kind Kind
}

// Room is one connection to a media room
type Room interface {
	// Join enters the room and returns the identifier the transport assigned
	Join(ctx context.Context, cfg JoinConfig) (uint32, error)
	// Publish sends all tracks to the room as a unit. An empty set
	// connects receive-only.
	Publish(ctx context.Context, tracks ...LocalTrack) error
	// Unpublish withdraws previously published tracks
	Unpublish(tracks ...LocalTrack) error
	// SetMuted pauses or resumes sending kind without renegotiation
	SetMuted(kind Kind, muted bool) error
	// RemoteTrack looks up a remote participant's track
	RemoteTrack(uid uint32, kind Kind) (RemoteTrack, bool)
	// Events is closed after Leave
	Events() <-chan RoomEvent
	Leave() error
}

// RoomFactory creates a fresh Room for each join
type RoomFactory func() Room

// FrameSource yields encoded frames of a local track for preview
type FrameSource interface {
	ReadFrame() (data []byte, release func(), err error)
	Close() error
}

// Renderer puts tracks on output surfaces
type Renderer interface {
	RenderRemoteVideo(track RemoteTrack, surfaceID string) error
	RenderRemoteAudio(track RemoteTrack) error
	RenderLocalVideo(track LocalTrack, surfaceID string) error
}

// ParticipantEventType distinguishes coalesced participant events
type ParticipantEventType int

const (
	ParticipantJoined ParticipantEventType = iota
	ParticipantLeft
)

func (t ParticipantEventType) String() string {
	if t == ParticipantJoined {
		return "joined"
	}
	return "left"
}
