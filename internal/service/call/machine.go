// Package call owns the call lifecycle. Reduce is the only place stage
// transitions are decided; Store serialises them and Service performs the
// side effects (device check, session negotiation, media join, teardown).
package call

import (
	"time"

	"consultline/internal/domain"
	"consultline/pkg/errors"
)

// EventType names a lifecycle input
type EventType string

const (
	// EventInitiate starts a new attempt: idle -> preparing
	EventInitiate EventType = "initiate"
	// EventSessionReady stores the backend session: preparing -> ringing
	EventSessionReady EventType = "session_ready"
	// EventFailed ends an active attempt with an error
	EventFailed EventType = "failed"
	// EventRemoteJoined marks the remote party present: ringing -> connected
	EventRemoteJoined EventType = "remote_joined"
	// EventRemoteLeft ends a connected call without error
	EventRemoteLeft EventType = "remote_left"
	// EventHangup ends any non-idle call on user request
	EventHangup EventType = "hangup"
	// EventReset acknowledges an ended call: ended -> idle
	EventReset EventType = "reset"
)

// Event is a lifecycle input. AttemptID ties events produced by an
// in-flight attempt to that attempt; events from an older attempt are
// rejected.
type Event struct {
	Type      EventType
	AttemptID string
	At        time.Time

	Party    domain.Party
	CallType domain.CallType
	Session  *domain.CallSession
	Err      string
	Code     string
}

// Reduce computes the state that follows ev. It has no side effects. A
// rejected event returns the unchanged state and an INVALID_TRANSITION,
// CALL_IN_PROGRESS or validation error.
func Reduce(state domain.CallState, ev Event) (domain.CallState, error) {
	if stale(state, ev) {
		return state, errors.InvalidTransitionError(string(state.Stage), string(ev.Type)+" from a previous attempt")
	}

	switch ev.Type {
	case EventInitiate:
		if !state.IsIdle() {
			return state, errors.CallInProgressError()
		}
		if ev.Party.ID == "" {
			return state, errors.MissingFieldError("consultantId")
		}
		if _, err := domain.ParseCallType(string(ev.CallType)); err != nil {
			return state, errors.ValidationError(err.Error())
		}
		return domain.CallState{
			Stage:      domain.StagePreparing,
			AttemptID:  ev.AttemptID,
			Consultant: ev.Party,
			CallType:   ev.CallType,
			StartedAt:  ev.At,
		}, nil

	case EventSessionReady:
		if state.Stage != domain.StagePreparing {
			return state, invalid(state, ev)
		}
		if !ev.Session.Ready() {
			return ended(state, "Session descriptor is incomplete", string(errors.ErrCodeSession)), nil
		}
		session := *ev.Session
		next := state
		next.Stage = domain.StageRinging
		next.Session = &session
		return next, nil

	case EventFailed:
		if !state.Active() {
			return state, invalid(state, ev)
		}
		msg := ev.Err
		if msg == "" {
			msg = "Call failed"
		}
		return ended(state, msg, ev.Code), nil

	case EventRemoteJoined:
		switch state.Stage {
		case domain.StageConnected:
			return state, nil
		case domain.StageRinging:
			next := state
			next.Stage = domain.StageConnected
			next.ConnectedAt = ev.At
			return next, nil
		}
		return state, invalid(state, ev)

	case EventRemoteLeft:
		if state.Stage != domain.StageConnected {
			return state, invalid(state, ev)
		}
		return ended(state, "", ""), nil

	case EventHangup:
		switch state.Stage {
		case domain.StageEnded:
			return state, nil
		case domain.StagePreparing, domain.StageRinging, domain.StageConnected:
			return ended(state, "", ""), nil
		}
		return state, invalid(state, ev)

	case EventReset:
		switch state.Stage {
		case domain.StageEnded, domain.StageIdle, "":
			return domain.CallState{Stage: domain.StageIdle}, nil
		}
		return state, invalid(state, ev)
	}

	return state, errors.ValidationError("unknown call event " + string(ev.Type))
}

// ended drops the session descriptor; teardown works from its own copy
func ended(state domain.CallState, msg, code string) domain.CallState {
	next := state
	next.Stage = domain.StageEnded
	next.Session = nil
	next.Error = msg
	next.ErrorCode = code
	if msg == "" {
		next.ErrorCode = ""
	}
	return next
}

// stale reports whether ev was produced by an attempt other than the
// current one. Untagged hangup and reset come from the user and always
// apply to the current call.
func stale(state domain.CallState, ev Event) bool {
	if ev.Type == EventInitiate {
		return false
	}
	return ev.AttemptID != "" && ev.AttemptID != state.AttemptID
}

func invalid(state domain.CallState, ev Event) error {
	stage := state.Stage
	if stage == "" {
		stage = domain.StageIdle
	}
	return errors.InvalidTransitionError(string(stage), string(ev.Type))
}
