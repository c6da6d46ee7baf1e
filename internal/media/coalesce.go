package media

import (
	"sort"
	"sync"

	"consultline/internal/domain"
)

// ParticipantEvent is a coalesced notification about one remote participant
type ParticipantEvent struct {
	Type        ParticipantEventType
	Participant domain.RemoteParticipant
}

// tracker folds per-kind room events into participant state. A participant is
// announced once, on its first published track, and retired once, on leave.
type tracker struct {
	mu           sync.Mutex
	participants map[uint32]*domain.RemoteParticipant
	announced    map[uint32]bool
}

func newTracker() *tracker {
	return &tracker{
		participants: make(map[uint32]*domain.RemoteParticipant),
		announced:    make(map[uint32]bool),
	}
}

func (t *tracker) apply(ev RoomEvent) (ParticipantEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case RemotePublished:
		p, ok := t.participants[ev.UID]
		if !ok {
			p = &domain.RemoteParticipant{UID: ev.UID}
			t.participants[ev.UID] = p
		}
		setKind(p, ev.Kind, true)
		if t.announced[ev.UID] {
			return ParticipantEvent{}, false
		}
		t.announced[ev.UID] = true
		return ParticipantEvent{Type: ParticipantJoined, Participant: *p}, true

	case RemoteUnpublished:
		if p, ok := t.participants[ev.UID]; ok {
			setKind(p, ev.Kind, false)
		}
		return ParticipantEvent{}, false

	case RemoteLeft:
		p, ok := t.participants[ev.UID]
		if !ok {
			return ParticipantEvent{}, false
		}
		wasAnnounced := t.announced[ev.UID]
		delete(t.participants, ev.UID)
		delete(t.announced, ev.UID)
		if !wasAnnounced {
			return ParticipantEvent{}, false
		}
		p.HasAudio, p.HasVideo = false, false
		return ParticipantEvent{Type: ParticipantLeft, Participant: *p}, true
	}

	return ParticipantEvent{}, false
}

func (t *tracker) snapshot() []domain.RemoteParticipant {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.RemoteParticipant, 0, len(t.participants))
	for _, p := range t.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func setKind(p *domain.RemoteParticipant, kind Kind, on bool) {
	switch kind {
	case KindAudio:
		p.HasAudio = on
	case KindVideo:
		p.HasVideo = on
	}
}

// coalesce forwards participant-level events from in to out until in is
// closed or done fires.
func coalesce(in <-chan RoomEvent, out chan<- ParticipantEvent, done <-chan struct{}, t *tracker) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			pe, emit := t.apply(ev)
			if !emit {
				continue
			}
			select {
			case out <- pe:
			case <-done:
				return
			}
		}
	}
}
