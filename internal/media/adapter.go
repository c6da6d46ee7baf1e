package media

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/pkg/errors"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

const eventBuffer = 16

// Adapter drives one room at a time. It is safe for concurrent use.
type Adapter struct {
	newRoom  RoomFactory
	capturer Capturer
	renderer Renderer

	// joinMu serialises Join and Leave so Leave never races a half-built join
	joinMu sync.Mutex

	mu       sync.Mutex
	room     Room
	localUID uint32
	mic      LocalTrack
	cam      LocalTrack
	tracker  *tracker
	events   chan ParticipantEvent
	done     chan struct{}
	pump     sync.WaitGroup
}

// NewAdapter creates an adapter. renderer may be nil, in which case the
// Play calls do nothing.
func NewAdapter(newRoom RoomFactory, capturer Capturer, renderer Renderer) *Adapter {
	return &Adapter{
		newRoom:  newRoom,
		capturer: capturer,
		renderer: renderer,
	}
}

// Join enters the room, acquires the microphone (and the camera for video
// calls) and publishes every acquired track together. The local identifier
// is always assigned by the transport. On failure nothing stays acquired,
// published or joined.
func (a *Adapter) Join(ctx context.Context, cfg JoinConfig, callType domain.CallType) (err error) {
	if cfg.RoomID == "" || cfg.Credential == "" {
		return errors.TransportError("room and credential are required", nil)
	}

	a.joinMu.Lock()
	defer a.joinMu.Unlock()

	a.mu.Lock()
	joined := a.room != nil
	a.mu.Unlock()
	if joined {
		return errors.TransportError("already joined a room", nil)
	}

	log := logger.FromContext(ctx).With(zap.String("room", cfg.RoomID))
	room := a.newRoom()
	var (
		tracks    []LocalTrack
		published bool
	)
	defer func() {
		if err == nil {
			metrics.MediaJoinTotal.WithLabelValues("success").Inc()
			return
		}
		metrics.MediaJoinTotal.WithLabelValues("failure").Inc()
		if published {
			if uerr := room.Unpublish(tracks...); uerr != nil {
				log.Warn("Failed to unpublish after join failure", zap.Error(uerr))
			}
		}
		closeTracks(log, tracks)
		if lerr := room.Leave(); lerr != nil {
			log.Warn("Failed to leave after join failure", zap.Error(lerr))
		}
	}()

	uid, err := room.Join(ctx, cfg)
	if err != nil {
		return errors.TransportError("failed to join room", err)
	}

	var mic, cam LocalTrack
	if !cfg.WithoutMicrophone {
		mic, err = a.capturer.Microphone(ctx)
		if err != nil {
			return errors.TransportError("failed to acquire microphone", err)
		}
		tracks = append(tracks, mic)
	}
	if callType.WantsVideo() && !cfg.WithoutCamera {
		cam, err = a.capturer.Camera(ctx)
		if err != nil {
			return errors.TransportError("failed to acquire camera", err)
		}
		tracks = append(tracks, cam)
	}

	// An empty set still connects to the room receive-only
	published = true
	if err = room.Publish(ctx, tracks...); err != nil {
		return errors.TransportError("failed to publish local tracks", err)
	}

	t := newTracker()
	events := make(chan ParticipantEvent, eventBuffer)
	done := make(chan struct{})

	a.mu.Lock()
	a.room = room
	a.localUID = uid
	a.mic, a.cam = mic, cam
	a.tracker = t
	a.events = events
	a.done = done
	a.mu.Unlock()

	a.pump.Add(1)
	go func() {
		defer a.pump.Done()
		coalesce(room.Events(), events, done, t)
	}()

	log.Info("Joined media room",
		zap.Uint32("uid", uid),
		zap.Bool("audio", mic != nil),
		zap.Bool("video", cam != nil))
	return nil
}

// Events returns the participant stream of the current room. It is nil
// before the first Join and is closed by Leave.
func (a *Adapter) Events() <-chan ParticipantEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events
}

// LocalUID returns the identifier assigned by the transport on the last join
func (a *Adapter) LocalUID() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localUID
}

// Participants returns the remote participants currently known
func (a *Adapter) Participants() []domain.RemoteParticipant {
	a.mu.Lock()
	t := a.tracker
	a.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.snapshot()
}

// PlayRemoteVideo renders uid's video on surfaceID if it is published
func (a *Adapter) PlayRemoteVideo(uid uint32, surfaceID string) {
	room, r := a.output()
	if room == nil || r == nil {
		return
	}
	track, ok := room.RemoteTrack(uid, KindVideo)
	if !ok {
		return
	}
	if err := r.RenderRemoteVideo(track, surfaceID); err != nil {
		logger.Warn("Failed to render remote video", zap.Uint32("uid", uid), zap.Error(err))
	}
}

// PlayRemoteAudio plays uid's audio if it is published
func (a *Adapter) PlayRemoteAudio(uid uint32) {
	room, r := a.output()
	if room == nil || r == nil {
		return
	}
	track, ok := room.RemoteTrack(uid, KindAudio)
	if !ok {
		return
	}
	if err := r.RenderRemoteAudio(track); err != nil {
		logger.Warn("Failed to play remote audio", zap.Uint32("uid", uid), zap.Error(err))
	}
}

// PlayLocalVideo renders the published camera track on surfaceID
func (a *Adapter) PlayLocalVideo(surfaceID string) {
	a.mu.Lock()
	cam, r := a.cam, a.renderer
	a.mu.Unlock()
	if cam == nil || r == nil {
		return
	}
	if err := r.RenderLocalVideo(cam, surfaceID); err != nil {
		logger.Warn("Failed to render local preview", zap.Error(err))
	}
}

// SetLocalAudioEnabled mutes or unmutes the microphone track
func (a *Adapter) SetLocalAudioEnabled(enabled bool) {
	a.setEnabled(KindAudio, enabled)
}

// SetLocalVideoEnabled pauses or resumes the camera track
func (a *Adapter) SetLocalVideoEnabled(enabled bool) {
	a.setEnabled(KindVideo, enabled)
}

func (a *Adapter) setEnabled(kind Kind, enabled bool) {
	a.mu.Lock()
	room := a.room
	track := a.mic
	if kind == KindVideo {
		track = a.cam
	}
	a.mu.Unlock()

	if room == nil || track == nil {
		return
	}
	if err := room.SetMuted(kind, !enabled); err != nil {
		logger.Warn("Failed to toggle local track", zap.String("kind", string(kind)), zap.Bool("enabled", enabled), zap.Error(err))
	}
}

// Leave stops and releases the local tracks, then leaves the room. It is
// idempotent and safe to call when never joined.
func (a *Adapter) Leave() {
	a.joinMu.Lock()
	defer a.joinMu.Unlock()

	a.mu.Lock()
	room := a.room
	if room == nil {
		a.mu.Unlock()
		return
	}
	tracks := make([]LocalTrack, 0, 2)
	for _, t := range []LocalTrack{a.cam, a.mic} {
		if t != nil {
			tracks = append(tracks, t)
		}
	}
	done, events := a.done, a.events
	a.room = nil
	a.mic, a.cam = nil, nil
	a.tracker = nil
	a.done = nil
	a.mu.Unlock()

	closeTracks(logger.Log, tracks)
	if err := room.Leave(); err != nil {
		logger.Warn("Failed to leave media room", zap.Error(err))
	}

	close(done)
	a.pump.Wait()
	close(events)
	logger.Info("Left media room")
}

func (a *Adapter) output() (Room, Renderer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room, a.renderer
}

func closeTracks(log *zap.Logger, tracks []LocalTrack) {
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			log.Warn("Failed to release local track", zap.String("kind", string(t.Kind())), zap.Error(err))
		}
	}
}
