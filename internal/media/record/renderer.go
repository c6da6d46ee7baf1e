// Package record renders call media to files: remote video to IVF, remote
// audio to Ogg/Opus. Local preview frames are counted, not stored.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"go.uber.org/zap"

	"consultline/internal/media"
	"consultline/pkg/logger"
	"consultline/pkg/sanitize"
)

// rtpSource is implemented by transport tracks that can be read packet by packet
type rtpSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
	Codec() webrtc.RTPCodecParameters
}

// previewer is implemented by local tracks that offer an encoded preview
type previewer interface {
	Preview() (media.FrameSource, error)
}

type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Renderer writes each rendered track to its own file under dir
type Renderer struct {
	dir string

	mu       sync.Mutex
	active   map[string]bool
	previews map[string]media.FrameSource
	frames   map[string]int
	wg       sync.WaitGroup
}

// NewRenderer creates dir if needed
func NewRenderer(dir string) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording dir: %w", err)
	}
	return &Renderer{
		dir:      dir,
		active:   make(map[string]bool),
		previews: make(map[string]media.FrameSource),
		frames:   make(map[string]int),
	}, nil
}

// RenderRemoteVideo writes VP8 video to <surfaceID>.ivf
func (r *Renderer) RenderRemoteVideo(track media.RemoteTrack, surfaceID string) error {
	src, ok := track.(rtpSource)
	if !ok {
		return fmt.Errorf("track %T cannot be recorded", track)
	}
	if mime := src.Codec().MimeType; !strings.EqualFold(mime, webrtc.MimeTypeVP8) {
		return fmt.Errorf("unsupported video codec %q", mime)
	}
	path := filepath.Join(r.dir, sanitize.Filename(surfaceID, "remote")+".ivf")
	return r.start(path, src, func() (rtpWriter, error) { return ivfwriter.New(path) })
}

// RenderRemoteAudio writes Opus audio to remote-<uid>.ogg
func (r *Renderer) RenderRemoteAudio(track media.RemoteTrack) error {
	src, ok := track.(rtpSource)
	if !ok {
		return fmt.Errorf("track %T cannot be recorded", track)
	}
	codec := src.Codec()
	if !strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus) {
		return fmt.Errorf("unsupported audio codec %q", codec.MimeType)
	}
	channels := codec.Channels
	if channels == 0 {
		channels = 2
	}
	rate := codec.ClockRate
	if rate == 0 {
		rate = 48000
	}
	path := filepath.Join(r.dir, fmt.Sprintf("remote-%d.ogg", track.UID()))
	return r.start(path, src, func() (rtpWriter, error) { return oggwriter.New(path, rate, channels) })
}

// RenderLocalVideo drains the local preview and counts frames
func (r *Renderer) RenderLocalVideo(track media.LocalTrack, surfaceID string) error {
	p, ok := track.(previewer)
	if !ok {
		return fmt.Errorf("track %T has no preview", track)
	}

	r.mu.Lock()
	if r.active[surfaceID] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	src, err := p.Preview()
	if err != nil {
		return fmt.Errorf("failed to open preview: %w", err)
	}

	r.mu.Lock()
	r.active[surfaceID] = true
	r.previews[surfaceID] = src
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			_, release, err := src.ReadFrame()
			if err != nil {
				logger.Debug("Local preview ended", zap.String("surface", surfaceID), zap.Int("frames", r.FrameCount(surfaceID)))
				return
			}
			release()
			r.mu.Lock()
			r.frames[surfaceID]++
			n := r.frames[surfaceID]
			r.mu.Unlock()
			if n%300 == 0 {
				logger.Debug("Local preview running", zap.String("surface", surfaceID), zap.Int("frames", n))
			}
		}
	}()
	return nil
}

// StopLocalVideo closes the preview on surfaceID. The surface can be
// rendered again afterwards.
func (r *Renderer) StopLocalVideo(surfaceID string) {
	r.mu.Lock()
	src, ok := r.previews[surfaceID]
	delete(r.previews, surfaceID)
	delete(r.active, surfaceID)
	r.mu.Unlock()

	if ok {
		_ = src.Close()
	}
}

// FrameCount returns how many preview frames surfaceID has received
func (r *Renderer) FrameCount(surfaceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[surfaceID]
}

// Close stops the previews and waits for every writer to finish. Remote
// writers finish when their track ends, which happens when the room closes.
func (r *Renderer) Close() error {
	r.mu.Lock()
	previews := r.previews
	r.previews = make(map[string]media.FrameSource)
	r.mu.Unlock()

	for _, p := range previews {
		_ = p.Close()
	}
	r.wg.Wait()
	return nil
}

// start copies packets from src into a writer at path. A path already
// being written is left alone, so replaying a surface is a no-op.
func (r *Renderer) start(path string, src rtpSource, open func() (rtpWriter, error)) error {
	r.mu.Lock()
	if r.active[path] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	w, err := open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	r.mu.Lock()
	r.active[path] = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("Failed to close recording", zap.String("path", path), zap.Error(err))
			}
			r.mu.Lock()
			delete(r.active, path)
			r.mu.Unlock()
		}()

		packets := 0
		for {
			pkt, _, err := src.ReadRTP()
			if err != nil {
				logger.Debug("Recording finished", zap.String("path", path), zap.Int("packets", packets))
				return
			}
			if err := w.WriteRTP(pkt); err != nil {
				logger.Warn("Failed to write packet", zap.String("path", path), zap.Error(err))
				return
			}
			packets++
		}
	}()

	logger.Info("Recording started", zap.String("path", path))
	return nil
}
