// Package pion implements the media capabilities on pion/webrtc, with local
// capture through pion/mediadevices where the platform has drivers.
package pion

import (
	"github.com/pion/webrtc/v4"

	"consultline/internal/media"
)

// Engine builds rooms that share one configured webrtc.API, and captures
// local devices with the codecs that API negotiates.
type Engine struct {
	api      *webrtc.API
	cfg      RoomConfig
	capturer media.Capturer
}

// NewRoom returns a fresh room; it satisfies media.RoomFactory
func (e *Engine) NewRoom() media.Room {
	return newRoom(e.api, e.cfg)
}

// Capturer returns the platform's local device capturer
func (e *Engine) Capturer() media.Capturer {
	return e.capturer
}
