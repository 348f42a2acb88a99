package endpoint

import (
	"context"
	"errors"
)

var (
	ErrClosed                = errors.New("endpoint closed")
	ErrNotReady              = errors.New("endpoint not ready")
	ErrAlreadyStarted        = errors.New("endpoint already started")
	ErrUnexpectedDescription = errors.New("unexpected session description")
	ErrMediaUnavailable      = errors.New("media unavailable")
)

type State int

const (
	StateIdle State = iota
	StateMediaReady
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMediaReady:
		return "media-ready"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Description is an RTCSessionDescriptionInit as browsers put it on the wire.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is an RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// CandidatePolicy decides what happens to remote candidates that arrive before
// the remote description.
type CandidatePolicy int

const (
	// CandidatePolicyQueue holds them and applies them, in order, once the
	// remote description is set.
	CandidatePolicyQueue CandidatePolicy = iota
	// CandidatePolicyDrop discards them.
	CandidatePolicyDrop
)

// MediaSource acquires local capture.
type MediaSource interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is acquired media. Close releases the devices.
type Stream interface {
	Close() error
}

// PeerTransport is the media connection to the remote peer.
type PeerTransport interface {
	CreateOffer(ctx context.Context) (Description, error)
	CreateAnswer(ctx context.Context) (Description, error)
	SetLocalDescription(Description) error
	SetRemoteDescription(Description) error
	AddICECandidate(Candidate) error
	Close() error
}

// TransportCallbacks are installed on a PeerTransport when it is built. They
// may be called from any goroutine.
type TransportCallbacks struct {
	OnICECandidate func(Candidate)
	OnTrack        func()
}

// TransportFactory builds a PeerTransport carrying stream.
type TransportFactory func(ctx context.Context, stream Stream, cb TransportCallbacks) (PeerTransport, error)

// Signaler is the endpoint's connection to the relay.
type Signaler interface {
	JoinRoom(roomID string) error
	SendOffer(roomID string, offer Description) error
	SendAnswer(roomID string, answer Description) error
	SendICECandidate(roomID string, c Candidate) error
}

type EventKind int

const (
	EventUserJoined EventKind = iota + 1
	EventOffer
	EventAnswer
	EventICECandidate
	EventUserDisconnected
	// EventCall is the local click-to-call action.
	EventCall
)

// Event is one input to Run.
type Event struct {
	Kind        EventKind
	From        string
	Description Description
	Candidate   Candidate
}
