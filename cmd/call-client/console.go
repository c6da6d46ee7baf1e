package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"consultline/internal/media"
	"consultline/internal/service/device"
	"consultline/pkg/logger"
)

const previewSurface = "preview"

// console reads stdin lines on one goroutine so the device prompt and the
// command loop can share them
type console struct {
	lines chan string
	out   io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{lines: make(chan string), out: out}
	go c.scan(in)
	return c
}

func (c *console) scan(in io.Reader) {
	s := bufio.NewScanner(in)
	for s.Scan() {
		c.lines <- strings.TrimSpace(s.Text())
	}
	close(c.lines)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// ConfirmDegraded asks whether to continue without the missing devices
func (c *console) ConfirmDegraded(ctx context.Context, result *device.Result) (bool, error) {
	var missing []string
	if !result.MicrophoneAvailable() {
		missing = append(missing, "microphone")
	}
	if result.CallType.WantsVideo() && !result.CameraAvailable() {
		missing = append(missing, "camera")
	}
	c.printf("Warning: %s unavailable. Continue anyway? [y/N]", strings.Join(missing, " and "))

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return false, nil
		}
		line = strings.ToLower(line)
		return line == "y" || line == "yes", nil
	}
}

// previewRenderer shows and stops a local camera preview
type previewRenderer interface {
	RenderLocalVideo(track media.LocalTrack, surfaceID string) error
	StopLocalVideo(surfaceID string)
}

// previewPrompt keeps the camera preview running while the console waits
// for the user's answer
type previewPrompt struct {
	con      *console
	renderer previewRenderer
}

func (p previewPrompt) ConfirmDegraded(ctx context.Context, result *device.Result) (bool, error) {
	if track := result.Preview(); track != nil {
		if err := p.renderer.RenderLocalVideo(track, previewSurface); err != nil {
			logger.Warn("Camera preview unavailable", zap.Error(err))
		} else {
			defer p.renderer.StopLocalVideo(previewSurface)
			p.con.printf("Camera preview on %q", previewSurface)
		}
	}
	return p.con.ConfirmDegraded(ctx, result)
}
