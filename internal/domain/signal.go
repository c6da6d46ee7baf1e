package domain

import (
	"encoding/json"
	"time"
)

// Signaling message types exchanged on the room rendezvous socket
const (
	SignalTypeWelcome = "welcome"
	SignalTypeJoin    = "join"
	SignalTypeLeave   = "leave"
	SignalTypeOffer   = "offer"
	SignalTypeAnswer  = "answer"
	SignalTypeICE     = "ice_candidate"
)

// SignalMessage is one frame on the signaling socket. The hub stamps From
// and Channel; To targets a single participant, zero broadcasts.
type SignalMessage struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	From      uint32          `json:"from,omitempty"`
	To        uint32          `json:"to,omitempty"`
	UID       uint32          `json:"uid,omitempty"`
	Peers     []uint32        `json:"peers,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
