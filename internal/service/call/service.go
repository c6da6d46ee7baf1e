package call

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/internal/media"
	"consultline/internal/service/device"
	"consultline/pkg/constants"
	"consultline/pkg/errors"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

// SessionClient negotiates backend call sessions
type SessionClient interface {
	StartSession(ctx context.Context, remotePartyID string, callType domain.CallType, authToken string) (*domain.CallSession, error)
	JoinSession(ctx context.Context, sessionID, authToken string) (*domain.CallSession, error)
	EndSession(ctx context.Context, sessionID, authToken string)
}

// Transport joins and leaves media rooms
type Transport interface {
	Join(ctx context.Context, cfg media.JoinConfig, callType domain.CallType) error
	Events() <-chan media.ParticipantEvent
	Leave()
}

// DeviceChecker probes local capture devices
type DeviceChecker interface {
	Run(ctx context.Context, callType domain.CallType) *device.Result
}

// Config holds the call service settings
type Config struct {
	AuthToken string
	AppID     string

	// DebounceWindow blocks another initiation after a successful one
	DebounceWindow time.Duration
	// SetupTimeout bounds session creation plus room join; zero disables it
	SetupTimeout time.Duration
	// AutoIdleOnRemoteLeft returns to idle when the remote party leaves
	// instead of stopping at ended
	AutoIdleOnRemoteLeft bool

	Now func() time.Time
}

// Service runs call attempts against the store
type Service struct {
	store    *Store
	lease    *Lease
	sessions SessionClient
	media    Transport
	devices  DeviceChecker
	prompter device.Prompter
	cfg      Config

	mu      sync.Mutex
	current *attempt
	watch   sync.WaitGroup
}

// attempt holds the resources of one call. teardown releases them once.
type attempt struct {
	id      string
	authTok string
	cancel  context.CancelFunc
	started time.Time
	once    sync.Once

	mu      sync.Mutex
	torn    bool
	session *domain.CallSession
	devices *device.Result
	joined  bool
}

// NewService creates a call service. prompter may be nil, in which case a
// degraded device check continues without asking.
func NewService(store *Store, sessions SessionClient, transport Transport, devices DeviceChecker, prompter device.Prompter, cfg Config) *Service {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = constants.InitiateGuardWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    store,
		lease:    NewLease(cfg.DebounceWindow, cfg.Now),
		sessions: sessions,
		media:    transport,
		devices:  devices,
		prompter: prompter,
		cfg:      cfg,
	}
}

// State returns the current call state
func (s *Service) State() domain.CallState {
	return s.store.State()
}

// Subscribe streams call state snapshots until the returned cancel is called
func (s *Service) Subscribe() (<-chan domain.CallState, func()) {
	return s.store.Subscribe()
}

// InitiateCall runs a call attempt up to the media join. It returns once
// the call is ringing with the room joined, or with the error that ended
// the attempt. A repeat within the debounce window returns CALL_DEBOUNCED
// and one while a call is active returns CALL_IN_PROGRESS; neither changes
// the state.
func (s *Service) InitiateCall(ctx context.Context, party domain.Party, callType domain.CallType) error {
	return s.run(ctx, party, callType, func(ctx context.Context, authToken string) (*domain.CallSession, error) {
		return s.sessions.StartSession(ctx, party.ID, callType, authToken)
	})
}

// AnswerCall joins a session the other party started. The session is
// looked up first so the state can name the caller; the attempt then runs
// like InitiateCall, reaching connected once the caller is seen in the room.
func (s *Service) AnswerCall(ctx context.Context, sessionID string) error {
	session, err := s.sessions.JoinSession(ctx, sessionID, s.cfg.AuthToken)
	if err != nil {
		return err
	}
	party := domain.Party{ID: session.CallerID}
	if party.ID == "" {
		party.ID = "caller"
	}
	return s.run(ctx, party, session.CallType, func(context.Context, string) (*domain.CallSession, error) {
		return session, nil
	})
}

// negotiateFunc obtains the session an attempt joins
type negotiateFunc func(ctx context.Context, authToken string) (*domain.CallSession, error)

func (s *Service) run(ctx context.Context, party domain.Party, callType domain.CallType, negotiate negotiateFunc) error {
	if !s.lease.TryAcquire() {
		metrics.CallInitiateRejectedTotal.WithLabelValues("debounced").Inc()
		return errors.CallDebouncedError()
	}

	a := &attempt{id: uuid.New().String(), authTok: s.cfg.AuthToken, started: s.cfg.Now()}
	ctx = logger.WithCallID(ctx, a.id)
	setupCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancel = cancel

	s.mu.Lock()
	_, err := s.store.Dispatch(Event{Type: EventInitiate, AttemptID: a.id, At: a.started, Party: party, CallType: callType})
	if err == nil {
		s.current = a
	}
	s.mu.Unlock()
	if err != nil {
		s.lease.Revoke()
		if errors.IsCode(err, errors.ErrCodeCallInProgress) {
			metrics.CallInitiateRejectedTotal.WithLabelValues("in_progress").Inc()
		}
		return err
	}

	log := logger.FromContext(ctx)
	log.Info("Call initiated", zap.String("consultant_id", party.ID), zap.String("call_type", string(callType)))

	result := s.devices.Run(setupCtx, callType)
	a.mu.Lock()
	a.devices = result
	a.mu.Unlock()

	if result.Degraded() && s.prompter != nil {
		proceed, err := s.prompter.ConfirmDegraded(setupCtx, result)
		if err != nil || !proceed {
			log.Info("Call cancelled at device check", zap.Error(err))
			s.abandon(a)
			return errors.CallCancelledError()
		}
	}
	// The preview must not hold the camera when the room acquires it
	result.Release()

	if setupCtx.Err() != nil {
		s.abandon(a)
		return errors.CallCancelledError()
	}

	negotiateCtx := setupCtx
	if s.cfg.SetupTimeout > 0 {
		var cancelTimeout context.CancelFunc
		negotiateCtx, cancelTimeout = context.WithTimeout(setupCtx, s.cfg.SetupTimeout)
		defer cancelTimeout()
	}

	session, err := negotiate(negotiateCtx, a.authTok)
	if err != nil {
		if setupCtx.Err() != nil && ctx.Err() == nil {
			return errors.CallCancelledError()
		}
		s.fail(a, err)
		return err
	}

	a.mu.Lock()
	a.session = session
	torn := a.torn
	a.mu.Unlock()
	if torn {
		s.sessions.EndSession(context.WithoutCancel(ctx), session.SessionID, a.authTok)
		return errors.CallCancelledError()
	}

	st, err := s.store.Dispatch(Event{Type: EventSessionReady, AttemptID: a.id, At: s.cfg.Now(), Session: session})
	if err != nil {
		s.teardown(ctx, a)
		return errors.CallCancelledError()
	}
	if st.Stage != domain.StageRinging {
		s.teardown(ctx, a)
		return errors.SessionError(st.ErrorCode, st.Error, http.StatusBadGateway)
	}
	metrics.CallSetupDuration.Observe(s.cfg.Now().Sub(a.started).Seconds())

	joinCfg := media.JoinConfig{
		RoomID:            session.ChannelName,
		Credential:        session.RTCToken,
		AppID:             s.cfg.AppID,
		WithoutMicrophone: !result.MicrophoneAvailable(),
		WithoutCamera:     callType.WantsVideo() && !result.CameraAvailable(),
	}
	if err := s.media.Join(negotiateCtx, joinCfg, callType); err != nil {
		if setupCtx.Err() != nil && ctx.Err() == nil {
			return errors.CallCancelledError()
		}
		s.fail(a, err)
		return err
	}

	a.mu.Lock()
	a.joined = true
	torn = a.torn
	a.mu.Unlock()
	if torn {
		s.media.Leave()
		return errors.CallCancelledError()
	}

	s.watch.Add(1)
	go s.watchRoom(context.WithoutCancel(ctx), a, s.media.Events())
	return nil
}

// Hangup ends the current call and returns to idle. It is safe to call
// repeatedly and concurrently.
func (s *Service) Hangup(ctx context.Context) {
	a := s.active()
	if _, err := s.store.Dispatch(Event{Type: EventHangup, At: s.cfg.Now()}); err != nil && a == nil {
		return
	}
	if a != nil {
		s.teardown(ctx, a)
	}
	_, _ = s.store.Dispatch(Event{Type: EventReset})
}

// Cancel abandons a call that is still being set up. No backend session
// is left open and any preview is released.
func (s *Service) Cancel() {
	s.Hangup(context.Background())
}

// Reset acknowledges an ended call and returns to idle
func (s *Service) Reset() error {
	_, err := s.store.Dispatch(Event{Type: EventReset})
	return err
}

// Wait blocks until room watchers have exited
func (s *Service) Wait() {
	s.watch.Wait()
}

func (s *Service) active() *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Service) watchRoom(ctx context.Context, a *attempt, events <-chan media.ParticipantEvent) {
	defer s.watch.Done()
	log := logger.FromContext(ctx)

	for ev := range events {
		switch ev.Type {
		case media.ParticipantJoined:
			log.Info("Remote participant joined", zap.Uint32("uid", ev.Participant.UID))
			_, _ = s.store.Dispatch(Event{Type: EventRemoteJoined, AttemptID: a.id, At: s.cfg.Now()})
		case media.ParticipantLeft:
			log.Info("Remote participant left", zap.Uint32("uid", ev.Participant.UID))
			if _, err := s.store.Dispatch(Event{Type: EventRemoteLeft, AttemptID: a.id, At: s.cfg.Now()}); err != nil {
				continue
			}
			// Leave closes events, which ends this loop
			s.teardown(ctx, a)
			if s.cfg.AutoIdleOnRemoteLeft {
				_, _ = s.store.Dispatch(Event{Type: EventReset, AttemptID: a.id})
			}
		}
	}
}

// fail records err on the state and releases the attempt
func (s *Service) fail(a *attempt, err error) {
	appErr := errors.GetAppError(err)
	_, _ = s.store.Dispatch(Event{
		Type:      EventFailed,
		AttemptID: a.id,
		At:        s.cfg.Now(),
		Err:       appErr.Message,
		Code:      string(appErr.Code),
	})
	s.teardown(context.Background(), a)
}

// abandon returns a cancelled attempt to idle through ended. Both events
// carry the attempt id, so an attempt superseded by a newer call only
// releases its own resources.
func (s *Service) abandon(a *attempt) {
	_, _ = s.store.Dispatch(Event{Type: EventHangup, AttemptID: a.id, At: s.cfg.Now()})
	s.teardown(context.Background(), a)
	_, _ = s.store.Dispatch(Event{Type: EventReset, AttemptID: a.id})
}

// teardown ends the backend session, leaves the room and releases the
// device preview. It runs once per attempt no matter how many paths reach it.
func (s *Service) teardown(ctx context.Context, a *attempt) {
	a.once.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}

		a.mu.Lock()
		a.torn = true
		session, joined, result := a.session, a.joined, a.devices
		a.mu.Unlock()

		ctx = context.WithoutCancel(ctx)
		if session != nil {
			s.sessions.EndSession(ctx, session.SessionID, a.authTok)
		}
		if joined {
			s.media.Leave()
		}
		if result != nil {
			result.Release()
		}

		s.mu.Lock()
		if s.current == a {
			s.current = nil
		}
		s.mu.Unlock()

		metrics.CallTeardownsTotal.Inc()
		logger.FromContext(ctx).Info("Call resources released", zap.String("call_id", a.id))
	})
}
