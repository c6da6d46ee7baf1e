package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"consultline/internal/domain"
	"consultline/internal/media"
	"consultline/internal/media/pion"
	"consultline/internal/media/record"
	"consultline/internal/repository/api"
	"consultline/internal/service/call"
	"consultline/internal/service/device"
	"consultline/internal/service/session"
	"consultline/pkg/config"
	"consultline/pkg/errors"
)

const (
	localSurface  = "local"
	remoteSurface = "remote"
)

func runCall(ctx context.Context, cfg *config.Config, client *api.Client, con *console, args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	partyID := fs.String("party", "", "remote consultant id")
	partyName := fs.String("name", "", "remote consultant display name")
	kind := fs.String("type", string(domain.CallTypeVoice), "call type: voice or video")
	if err := fs.Parse(args); err != nil {
		return err
	}
	callType, err := domain.ParseCallType(*kind)
	if err != nil {
		return err
	}
	if *partyID == "" {
		return fmt.Errorf("-party is required")
	}

	party := domain.Party{ID: *partyID, Name: *partyName}
	return driveCall(ctx, cfg, client, con, func(svc *call.Service) error {
		return svc.InitiateCall(ctx, party, callType)
	})
}

// runAnswer joins a session another user started, using the session id the
// caller's client printed while ringing
func runAnswer(ctx context.Context, cfg *config.Config, client *api.Client, con *console, args []string) error {
	fs := flag.NewFlagSet("answer", flag.ContinueOnError)
	sessionID := fs.String("session", "", "session id to join")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}

	return driveCall(ctx, cfg, client, con, func(svc *call.Service) error {
		return svc.AnswerCall(ctx, *sessionID)
	})
}

// driveCall wires the media stack, runs setup and then the in-call command
// loop until the call is over
func driveCall(ctx context.Context, cfg *config.Config, client *api.Client, con *console, setupCall func(*call.Service) error) error {
	engine, err := pion.NewEngine(pion.RoomConfig{
		SignalURL:  cfg.Media.SignalURL,
		ICEServers: cfg.Media.ICEServers,
	})
	if err != nil {
		return err
	}
	renderer, err := record.NewRenderer(cfg.Media.RecordDir)
	if err != nil {
		return err
	}
	defer renderer.Close()

	adapter := media.NewAdapter(engine.NewRoom, engine.Capturer(), renderer)
	svc := call.NewService(
		call.NewStore(),
		session.NewService(api.NewSessionRepository(client)),
		adapter,
		device.NewChecker(engine.Capturer()),
		previewPrompt{con: con, renderer: renderer},
		call.Config{
			AuthToken:            cfg.API.AuthToken,
			AppID:                cfg.Media.AppID,
			DebounceWindow:       cfg.Call.DebounceWindow,
			SetupTimeout:         cfg.Call.SetupTimeout,
			AutoIdleOnRemoteLeft: cfg.Call.AutoIdleOnRemoteLeft,
		},
	)
	defer svc.Wait()

	states, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	setup := make(chan error, 1)
	go func() {
		setup <- setupCall(svc)
	}()

	// Lines belong to the device prompt until setup finishes
	var lines <-chan string
	var seen domain.Stage
	micOn, camOn := true, false

	for {
		select {
		case <-ctx.Done():
			svc.Hangup(context.Background())
			con.printf("Call cancelled")
			return nil

		case err := <-setup:
			setup = nil
			if err != nil {
				reportFailure(con, cfg, err)
				return nil
			}
			lines = con.lines
			con.printf("Commands: m = mute/unmute, v = camera on/off, q = hang up")
			if svc.State().CallType.WantsVideo() {
				camOn = true
				adapter.PlayLocalVideo(localSurface)
			}

		case st, ok := <-states:
			if !ok {
				return nil
			}
			if st.Stage == seen {
				continue
			}
			prev := seen
			seen = st.Stage
			describe(con, st)

			switch st.Stage {
			case domain.StageConnected:
				for _, p := range adapter.Participants() {
					if p.HasVideo {
						adapter.PlayRemoteVideo(p.UID, fmt.Sprintf("%s-%d", remoteSurface, p.UID))
					}
					if p.HasAudio {
						adapter.PlayRemoteAudio(p.UID)
					}
				}
			case domain.StageEnded:
				if setup == nil {
					return nil
				}
			case domain.StageIdle:
				if prev != "" {
					return nil
				}
			}

		case line, ok := <-lines:
			if !ok {
				svc.Hangup(context.Background())
				return nil
			}
			switch line {
			case "m":
				micOn = !micOn
				adapter.SetLocalAudioEnabled(micOn)
				con.printf("Microphone %s", onOff(micOn))
			case "v":
				camOn = !camOn
				adapter.SetLocalVideoEnabled(camOn)
				con.printf("Camera %s", onOff(camOn))
			case "q":
				svc.Hangup(context.Background())
			}
		}
	}
}

func describe(con *console, st domain.CallState) {
	who := st.Consultant.Name
	if who == "" {
		who = st.Consultant.ID
	}
	switch st.Stage {
	case domain.StagePreparing:
		con.printf("Preparing %s call with %s...", st.CallType, who)
	case domain.StageRinging:
		if st.Session != nil {
			con.printf("Waiting for %s in session %s...", who, st.Session.SessionID)
			return
		}
		con.printf("Waiting for %s...", who)
	case domain.StageConnected:
		con.printf("Connected to %s", who)
	case domain.StageEnded:
		if st.Error != "" {
			con.printf("Call ended: %s", st.Error)
			return
		}
		if !st.ConnectedAt.IsZero() {
			con.printf("Call ended after %s", st.Elapsed(time.Now()).Round(time.Second))
			return
		}
		con.printf("Call ended")
	}
}

func reportFailure(con *console, cfg *config.Config, err error) {
	switch {
	case errors.IsInsufficientBalance(err):
		con.printf("Your balance is too low for this call. Recharge at %s%s", cfg.API.BaseURL, cfg.Call.RechargeURL)
	case errors.IsCode(err, errors.ErrCodeCallCancelled):
		con.printf("Call cancelled")
	default:
		con.printf("Call failed: %s", errors.GetAppError(err).Message)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
