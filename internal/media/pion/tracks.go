package pion

import (
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"consultline/internal/media"
)

// localTrack adapts a capture track to media.LocalTrack
type localTrack struct {
	kind    media.Kind
	track   webrtc.TrackLocal
	closeFn func() error
	preview func() (media.FrameSource, error)

	once     sync.Once
	closeErr error
}

func (t *localTrack) Kind() media.Kind { return t.kind }

// TrackLocal exposes the track for AddTrack and ReplaceTrack
func (t *localTrack) TrackLocal() webrtc.TrackLocal { return t.track }

// Close stops capture. Only the first call releases the device.
func (t *localTrack) Close() error {
	t.once.Do(func() {
		if t.closeFn != nil {
			t.closeErr = t.closeFn()
		}
	})
	return t.closeErr
}

// Preview opens an independent encoded reader for local self-view
func (t *localTrack) Preview() (media.FrameSource, error) {
	if t.preview == nil {
		return nil, fmt.Errorf("%s track has no preview", t.kind)
	}
	return t.preview()
}

// remoteTrack adapts a received track to media.RemoteTrack
type remoteTrack struct {
	uid   uint32
	kind  media.Kind
	track *webrtc.TrackRemote
}

func (t *remoteTrack) Kind() media.Kind { return t.kind }
func (t *remoteTrack) UID() uint32      { return t.uid }

// ReadRTP reads the next packet from the remote track
func (t *remoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return t.track.ReadRTP()
}

// Codec returns the negotiated codec
func (t *remoteTrack) Codec() webrtc.RTPCodecParameters {
	return t.track.Codec()
}

func kindOf(t webrtc.RTPCodecType) media.Kind {
	if t == webrtc.RTPCodecTypeVideo {
		return media.KindVideo
	}
	return media.KindAudio
}

func codecType(k media.Kind) webrtc.RTPCodecType {
	if k == media.KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}
