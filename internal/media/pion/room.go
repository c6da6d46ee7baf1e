package pion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/internal/media"
	"consultline/pkg/logger"
)

// RoomConfig configures rooms created by an Engine
type RoomConfig struct {
	SignalURL  string
	ICEServers []string
}

// Room is a full-mesh media room: one PeerConnection per remote participant,
// negotiated over the hub's signaling socket. The participant that joins
// later sends the offers.
type Room struct {
	api *webrtc.API
	cfg RoomConfig

	sig     *signalConn
	uid     uint32
	channel string
	log     *zap.Logger

	// negMu serialises negotiation: signaling dispatch, publish, mute
	negMu   sync.Mutex
	mu      sync.Mutex
	peers   map[uint32]*peer
	initial []uint32
	local   []*localTrack
	muted   map[media.Kind]bool
	remotes map[uint32]map[media.Kind]*remoteTrack

	events    chan media.RoomEvent
	closing   chan struct{}
	emitMu    sync.RWMutex
	left      bool
	leaving   atomic.Bool
	leaveOnce sync.Once
	dispatch  sync.WaitGroup
}

type peer struct {
	uid     uint32
	pc      *webrtc.PeerConnection
	senders map[media.Kind]*webrtc.RTPSender
	pending []webrtc.ICECandidateInit
}

func newRoom(api *webrtc.API, cfg RoomConfig) *Room {
	return &Room{
		api:     api,
		cfg:     cfg,
		log:     logger.Log,
		peers:   make(map[uint32]*peer),
		muted:   make(map[media.Kind]bool),
		remotes: make(map[uint32]map[media.Kind]*remoteTrack),
		events:  make(chan media.RoomEvent, 32),
		closing: make(chan struct{}),
	}
}

// Join connects to the hub. The hub assigns the local uid.
func (r *Room) Join(ctx context.Context, cfg media.JoinConfig) (uint32, error) {
	sig, welcome, err := dialSignal(ctx, r.cfg.SignalURL, cfg.RoomID, cfg.Credential, cfg.AppID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.sig = sig
	r.uid = welcome.UID
	r.channel = cfg.RoomID
	r.initial = append([]uint32(nil), welcome.Peers...)
	r.log = logger.FromContext(ctx).With(zap.String("room", cfg.RoomID), zap.Uint32("uid", welcome.UID))
	r.mu.Unlock()

	r.dispatch.Add(1)
	go r.dispatchLoop()

	r.log.Debug("Signaling connected", zap.Int("peers", len(welcome.Peers)))
	return welcome.UID, nil
}

// Publish attaches tracks to a connection with every participant and offers
func (r *Room) Publish(ctx context.Context, tracks ...media.LocalTrack) error {
	locals := make([]*localTrack, 0, len(tracks))
	for _, t := range tracks {
		lt, ok := t.(*localTrack)
		if !ok {
			return fmt.Errorf("unsupported local track %T", t)
		}
		locals = append(locals, lt)
	}

	r.negMu.Lock()
	defer r.negMu.Unlock()

	r.mu.Lock()
	r.local = append(r.local, locals...)
	targets := append([]uint32(nil), r.initial...)
	r.initial = nil
	for uid := range r.peers {
		targets = appendUnique(targets, uid)
	}
	r.mu.Unlock()

	for _, uid := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, created, err := r.peerFor(uid)
		if err != nil {
			return err
		}
		if !created {
			for _, lt := range locals {
				if err := r.attach(p, lt); err != nil {
					return err
				}
			}
		}
		if err := r.offer(p); err != nil {
			return err
		}
	}
	return nil
}

// Unpublish stops sending tracks to every participant
func (r *Room) Unpublish(tracks ...media.LocalTrack) error {
	r.negMu.Lock()
	defer r.negMu.Unlock()

	r.mu.Lock()
	peers := r.peerList()
	r.mu.Unlock()

	var firstErr error
	for _, t := range tracks {
		for _, p := range peers {
			sender := p.senders[t.Kind()]
			if sender == nil {
				continue
			}
			if err := p.pc.RemoveTrack(sender); err != nil && firstErr == nil {
				firstErr = err
			}
			delete(p.senders, t.Kind())
		}
		r.mu.Lock()
		for i, lt := range r.local {
			if lt == t {
				r.local = append(r.local[:i], r.local[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}
	return firstErr
}

// SetMuted swaps the outgoing track for nothing, or back, on every sender
func (r *Room) SetMuted(kind media.Kind, muted bool) error {
	r.negMu.Lock()
	defer r.negMu.Unlock()

	r.mu.Lock()
	r.muted[kind] = muted
	var track webrtc.TrackLocal
	for _, lt := range r.local {
		if lt.kind == kind {
			track = lt.TrackLocal()
		}
	}
	peers := r.peerList()
	r.mu.Unlock()

	if track == nil {
		return nil
	}
	if muted {
		track = nil
	}
	for _, p := range peers {
		if sender := p.senders[kind]; sender != nil {
			if err := sender.ReplaceTrack(track); err != nil {
				return fmt.Errorf("failed to replace %s track: %w", kind, err)
			}
		}
	}
	return nil
}

// RemoteTrack looks up a received track
func (r *Room) RemoteTrack(uid uint32, kind media.Kind) (media.RemoteTrack, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.remotes[uid][kind]
	if !ok {
		return nil, false
	}
	return t, true
}

// Events returns raw per-kind events. Closed after Leave.
func (r *Room) Events() <-chan media.RoomEvent {
	return r.events
}

// Leave announces departure, closes every connection and the event stream
func (r *Room) Leave() error {
	r.leaveOnce.Do(func() {
		r.leaving.Store(true)

		r.mu.Lock()
		sig := r.sig
		r.mu.Unlock()
		if sig != nil {
			_ = sig.Send(domain.SignalMessage{Type: domain.SignalTypeLeave})
			_ = sig.Close()
			r.dispatch.Wait()
		}

		r.negMu.Lock()
		r.mu.Lock()
		peers := r.peerList()
		r.peers = make(map[uint32]*peer)
		r.remotes = make(map[uint32]map[media.Kind]*remoteTrack)
		r.local = nil
		r.mu.Unlock()
		for _, p := range peers {
			if err := p.pc.Close(); err != nil {
				r.log.Debug("Peer connection close failed", zap.Uint32("peer", p.uid), zap.Error(err))
			}
		}
		r.negMu.Unlock()

		close(r.closing)
		r.emitMu.Lock()
		r.left = true
		close(r.events)
		r.emitMu.Unlock()
	})
	return nil
}

func (r *Room) dispatchLoop() {
	defer r.dispatch.Done()

	for msg := range r.sig.Messages() {
		r.negMu.Lock()
		if err := r.handle(msg); err != nil {
			r.log.Warn("Signaling message failed",
				zap.String("type", msg.Type),
				zap.Uint32("from", msg.From),
				zap.Error(err))
		}
		r.negMu.Unlock()
	}

	if r.leaving.Load() {
		return
	}
	// Hub connection lost: every participant is gone from our point of view
	r.log.Warn("Signaling connection lost")
	r.mu.Lock()
	uids := make([]uint32, 0, len(r.peers))
	for uid := range r.peers {
		uids = append(uids, uid)
	}
	r.mu.Unlock()
	for _, uid := range uids {
		r.dropPeer(uid)
	}
}

func (r *Room) handle(msg domain.SignalMessage) error {
	switch msg.Type {
	case domain.SignalTypeJoin:
		r.log.Debug("Participant joined room", zap.Uint32("peer", msg.From))
		return nil

	case domain.SignalTypeLeave:
		r.dropPeer(msg.From)
		return nil

	case domain.SignalTypeOffer:
		p, _, err := r.peerFor(msg.From)
		if err != nil {
			return err
		}
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("failed to apply offer: %w", err)
		}
		r.flushCandidates(p)
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("failed to set answer: %w", err)
		}
		return r.sig.Send(domain.SignalMessage{Type: domain.SignalTypeAnswer, To: p.uid, SDP: answer.SDP})

	case domain.SignalTypeAnswer:
		p := r.existingPeer(msg.From)
		if p == nil {
			return fmt.Errorf("answer from unknown participant")
		}
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("failed to apply answer: %w", err)
		}
		r.flushCandidates(p)
		return nil

	case domain.SignalTypeICE:
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Candidate, &c); err != nil {
			return fmt.Errorf("invalid candidate: %w", err)
		}
		p, _, err := r.peerFor(msg.From)
		if err != nil {
			return err
		}
		if p.pc.RemoteDescription() == nil {
			p.pending = append(p.pending, c)
			return nil
		}
		return p.pc.AddICECandidate(c)
	}

	return nil
}

// peerFor returns the connection to uid, creating it with every local track
// attached. Callers hold negMu.
func (r *Room) peerFor(uid uint32) (*peer, bool, error) {
	if p := r.existingPeer(uid); p != nil {
		return p, false, nil
	}

	pc, err := r.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers(r.cfg.ICEServers)})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create peer connection: %w", err)
	}
	p := &peer{uid: uid, pc: pc, senders: make(map[media.Kind]*webrtc.RTPSender)}

	r.mu.Lock()
	locals := append([]*localTrack(nil), r.local...)
	r.mu.Unlock()
	for _, lt := range locals {
		if err := r.attach(p, lt); err != nil {
			_ = pc.Close()
			return nil, false, err
		}
	}
	// Receive both kinds even when sending neither
	for _, k := range []media.Kind{media.KindAudio, media.KindVideo} {
		if p.senders[k] != nil {
			continue
		}
		if _, err := pc.AddTransceiverFromKind(codecType(k), webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, false, fmt.Errorf("failed to add %s transceiver: %w", k, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		_ = r.sig.Send(domain.SignalMessage{Type: domain.SignalTypeICE, To: uid, Candidate: raw})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := kindOf(track.Kind())
		r.mu.Lock()
		if r.remotes[uid] == nil {
			r.remotes[uid] = make(map[media.Kind]*remoteTrack)
		}
		r.remotes[uid][kind] = &remoteTrack{uid: uid, kind: kind, track: track}
		r.mu.Unlock()
		r.emit(media.RoomEvent{Type: media.RemotePublished, UID: uid, Kind: kind})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.log.Debug("Peer connection state", zap.Uint32("peer", uid), zap.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed {
			go r.dropPeer(uid)
		}
	})

	r.mu.Lock()
	r.peers[uid] = p
	r.mu.Unlock()
	return p, true, nil
}

func (r *Room) attach(p *peer, lt *localTrack) error {
	sender, err := p.pc.AddTrack(lt.TrackLocal())
	if err != nil {
		return fmt.Errorf("failed to add %s track: %w", lt.kind, err)
	}
	p.senders[lt.kind] = sender

	r.mu.Lock()
	muted := r.muted[lt.kind]
	r.mu.Unlock()
	if muted {
		if err := sender.ReplaceTrack(nil); err != nil {
			return fmt.Errorf("failed to mute %s track: %w", lt.kind, err)
		}
	}

	// Drain RTCP so interceptors keep running
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (r *Room) offer(p *peer) error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set offer: %w", err)
	}
	return r.sig.Send(domain.SignalMessage{Type: domain.SignalTypeOffer, To: p.uid, SDP: offer.SDP})
}

func (r *Room) flushCandidates(p *peer) {
	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			r.log.Debug("Queued candidate rejected", zap.Uint32("peer", p.uid), zap.Error(err))
		}
	}
	p.pending = nil
}

func (r *Room) dropPeer(uid uint32) {
	r.mu.Lock()
	p, ok := r.peers[uid]
	delete(r.peers, uid)
	delete(r.remotes, uid)
	r.mu.Unlock()
	if !ok {
		return
	}
	_ = p.pc.Close()
	r.emit(media.RoomEvent{Type: media.RemoteLeft, UID: uid})
}

func (r *Room) existingPeer(uid uint32) *peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[uid]
}

// peerList requires r.mu
func (r *Room) peerList() []*peer {
	out := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

func (r *Room) emit(ev media.RoomEvent) {
	r.emitMu.RLock()
	defer r.emitMu.RUnlock()
	if r.left {
		return
	}
	select {
	case r.events <- ev:
	case <-r.closing:
	}
}

func appendUnique(list []uint32, v uint32) []uint32 {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
