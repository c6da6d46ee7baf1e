//go:build !linux

package pion

import (
	"context"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"consultline/internal/media"
)

// NewEngine builds a receive-only engine; local capture drivers are only
// wired on Linux.
func NewEngine(cfg RoomConfig) (*Engine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	return &Engine{api: api, cfg: cfg, capturer: noDevices{}}, nil
}

type noDevices struct{}

func (noDevices) Microphone(context.Context) (media.LocalTrack, error) {
	return nil, media.ErrNoDevice
}

func (noDevices) Camera(context.Context) (media.LocalTrack, error) {
	return nil, media.ErrNoDevice
}
