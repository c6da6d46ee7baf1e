//go:build linux

package pion

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"consultline/internal/media"
	"consultline/pkg/logger"
)

// NewEngine configures VP8 and Opus through the mediadevices codec selector
// so captured tracks and negotiated codecs always agree.
func NewEngine(cfg RoomConfig) (*Engine, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("failed to init vp8 encoder: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("failed to init opus encoder: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	selector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	return &Engine{
		api:      api,
		cfg:      cfg,
		capturer: &deviceCapturer{selector: selector},
	}, nil
}

// deviceCapturer opens V4L2 cameras and malgo microphones
type deviceCapturer struct {
	selector *mediadevices.CodecSelector
}

func (d *deviceCapturer) Microphone(ctx context.Context) (media.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: d.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrNoDevice, err)
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, media.ErrNoDevice
	}
	return wrapTrack(media.KindAudio, tracks[0]), nil
}

func (d *deviceCapturer) Camera(ctx context.Context) (media.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only; some MJPEG nodes emit frames the VP8 encoder rejects
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrNoDevice, err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, media.ErrNoDevice
	}
	return wrapTrack(media.KindVideo, tracks[0]), nil
}

func wrapTrack(kind media.Kind, track mediadevices.Track) *localTrack {
	track.OnEnded(func(err error) {
		if err != nil {
			logger.Debug("Local track ended", zap.String("kind", string(kind)), zap.Error(err))
		}
	})
	lt := &localTrack{
		kind:    kind,
		track:   track,
		closeFn: track.Close,
	}
	if kind == media.KindVideo {
		lt.preview = func() (media.FrameSource, error) {
			r, err := track.NewEncodedReader(webrtc.MimeTypeVP8)
			if err != nil {
				return nil, err
			}
			return &vp8Preview{r: r}, nil
		}
	}
	return lt
}

// vp8Preview wraps an encoded reader as a media.FrameSource
type vp8Preview struct {
	r mediadevices.EncodedReadCloser
}

func (p *vp8Preview) ReadFrame() ([]byte, func(), error) {
	buf, release, err := p.r.Read()
	if err != nil {
		return nil, nil, err
	}
	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	return data, release, nil
}

func (p *vp8Preview) Close() error { return p.r.Close() }
