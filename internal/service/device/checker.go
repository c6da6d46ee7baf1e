// Package device probes the local microphone and camera before a call.
// A missing device never blocks a call by itself: the user decides.
package device

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"consultline/internal/domain"
	"consultline/internal/media"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

// Status is the outcome of probing one device. Denied permission and a
// missing device both report StatusUnavailable.
type Status string

const (
	StatusUnchecked   Status = "unchecked"
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
)

// Result collects the outcome of a device check run
type Result struct {
	CallType   domain.CallType
	Microphone Status
	Camera     Status

	mu      sync.Mutex
	preview media.LocalTrack
}

// Degraded reports whether a device the call type needs is unavailable
func (r *Result) Degraded() bool {
	if r.Microphone == StatusUnavailable {
		return true
	}
	return r.CallType.WantsVideo() && r.Camera == StatusUnavailable
}

// MicrophoneAvailable reports whether the microphone probe succeeded
func (r *Result) MicrophoneAvailable() bool { return r.Microphone == StatusAvailable }

// CameraAvailable reports whether the camera probe succeeded
func (r *Result) CameraAvailable() bool { return r.Camera == StatusAvailable }

// Preview returns the retained camera track, or nil
func (r *Result) Preview() media.LocalTrack {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preview
}

// Release closes the camera preview. Safe to call more than once.
func (r *Result) Release() {
	r.mu.Lock()
	preview := r.preview
	r.preview = nil
	r.mu.Unlock()

	if preview == nil {
		return
	}
	if err := preview.Close(); err != nil {
		logger.Warn("Failed to release camera preview", zap.Error(err))
	}
}

// Prompter asks the user whether to continue a call with missing devices.
// Returning false cancels the call.
type Prompter interface {
	ConfirmDegraded(ctx context.Context, result *Result) (bool, error)
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(ctx context.Context, result *Result) (bool, error)

func (f PrompterFunc) ConfirmDegraded(ctx context.Context, result *Result) (bool, error) {
	return f(ctx, result)
}

// Checker probes capture devices through a Capturer
type Checker struct {
	capturer media.Capturer
}

// NewChecker creates a device checker
func NewChecker(capturer media.Capturer) *Checker {
	return &Checker{capturer: capturer}
}

// CheckMicrophone acquires an audio input and releases it immediately
func (c *Checker) CheckMicrophone(ctx context.Context) bool {
	track, err := c.capturer.Microphone(ctx)
	if err != nil {
		record("microphone", err)
		return false
	}
	if err := track.Close(); err != nil {
		logger.Warn("Failed to release microphone after check", zap.Error(err))
	}
	record("microphone", nil)
	return true
}

// CheckCamera acquires a video input. On success the track is returned open
// for local preview; the caller must close it.
func (c *Checker) CheckCamera(ctx context.Context) (media.LocalTrack, bool) {
	track, err := c.capturer.Camera(ctx)
	if err != nil {
		record("camera", err)
		return nil, false
	}
	record("camera", nil)
	return track, true
}

// Run probes the microphone and, for video calls, the camera concurrently.
// It never fails: unavailable devices are reported in the Result.
func (c *Checker) Run(ctx context.Context, callType domain.CallType) *Result {
	res := &Result{CallType: callType, Microphone: StatusUnchecked, Camera: StatusUnchecked}

	var (
		micOK   bool
		camOK   bool
		preview media.LocalTrack
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		micOK = c.CheckMicrophone(gctx)
		return nil
	})
	if callType.WantsVideo() {
		g.Go(func() error {
			preview, camOK = c.CheckCamera(gctx)
			return nil
		})
	}
	_ = g.Wait()

	res.Microphone = statusOf(micOK)
	if callType.WantsVideo() {
		res.Camera = statusOf(camOK)
		res.preview = preview
	}

	logger.FromContext(ctx).Info("Device check finished",
		zap.String("call_type", string(callType)),
		zap.String("microphone", string(res.Microphone)),
		zap.String("camera", string(res.Camera)))

	return res
}

func statusOf(ok bool) Status {
	if ok {
		return StatusAvailable
	}
	return StatusUnavailable
}

func record(device string, err error) {
	if err != nil {
		logger.Warn("Device unavailable", zap.String("device", device), zap.Error(err))
		metrics.DeviceChecksTotal.WithLabelValues(device, string(StatusUnavailable)).Inc()
		return
	}
	metrics.DeviceChecksTotal.WithLabelValues(device, string(StatusAvailable)).Inc()
}
