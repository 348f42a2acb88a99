package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Status strings shown to the local user.
const (
	StatusConnecting        = "Connecting..."
	StatusWaiting           = "Waiting for another user to join..."
	StatusConnected         = "Connected"
	StatusMediaFailed       = "Could not access camera/microphone"
	StatusPeerDisconnected  = "Peer disconnected"
	StatusSignalingLost     = "Disconnected from signaling server"
	StatusNegotiationFailed = "Call failed"
)

type Config struct {
	RoomID       string
	Media        MediaSource
	NewTransport TransportFactory
	Signaler     Signaler

	// AutoOffer makes the endpoint call as soon as another member joins.
	// Without it Call must be triggered explicitly.
	AutoOffer       bool
	CandidatePolicy CandidatePolicy

	Logger *slog.Logger

	// OnStatus and OnStateChange are invoked with the endpoint lock held and
	// must not call back into the Endpoint.
	OnStatus      func(string)
	OnStateChange func(State)
}

type Endpoint struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	state     State
	status    string
	starting  bool
	stream    Stream
	transport PeerTransport
	caller    bool
	peerID    string
	local     *Description
	remote    *Description

	// Remote candidates received before the remote description.
	pendingRemote []Candidate

	// Local candidates are held until our description is on the wire. This is
	// guarded separately so transport callbacks never wait on mu.
	candMu       sync.Mutex
	localSent    bool
	localClosed  bool
	pendingLocal []Candidate

	done chan struct{}
}

func New(cfg Config) (*Endpoint, error) {
	if cfg.Media == nil {
		return nil, errors.New("endpoint: media source is required")
	}
	if cfg.NewTransport == nil {
		return nil, errors.New("endpoint: transport factory is required")
	}
	if cfg.Signaler == nil {
		return nil, errors.New("endpoint: signaler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{
		cfg:    cfg,
		log:    logger.With("room_id", cfg.RoomID),
		status: StatusConnecting,
		done:   make(chan struct{}),
	}, nil
}

func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Endpoint) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// PeerID returns the remote participant this endpoint is negotiating with.
func (e *Endpoint) PeerID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerID
}

func (e *Endpoint) LocalDescription() (Description, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.local == nil {
		return Description{}, false
	}
	return *e.local, true
}

func (e *Endpoint) RemoteDescription() (Description, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remote == nil {
		return Description{}, false
	}
	return *e.remote, true
}

// Done is closed once the endpoint reaches StateClosed.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

// Start acquires media, builds the transport and joins the room.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.state == StateClosed:
		e.mu.Unlock()
		return ErrClosed
	case e.state != StateIdle || e.starting:
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.starting = true
	e.mu.Unlock()

	stream, err := e.cfg.Media.Acquire(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.starting = false
	if err != nil {
		e.log.Error("acquire media", "err", err)
		e.setStatusLocked(StatusMediaFailed)
		e.closeLocked()
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	if e.state == StateClosed {
		_ = stream.Close()
		return ErrClosed
	}
	e.stream = stream

	transport, err := e.cfg.NewTransport(ctx, stream, TransportCallbacks{
		OnICECandidate: e.onLocalCandidate,
		OnTrack:        e.HandleTrack,
	})
	if err != nil {
		e.log.Error("create peer transport", "err", err)
		e.setStatusLocked(StatusNegotiationFailed)
		e.closeLocked()
		return fmt.Errorf("create transport: %w", err)
	}
	e.transport = transport

	if err := e.cfg.Signaler.JoinRoom(e.cfg.RoomID); err != nil {
		e.log.Error("join room", "err", err)
		e.setStatusLocked(StatusSignalingLost)
		e.closeLocked()
		return fmt.Errorf("join room: %w", err)
	}
	e.setStateLocked(StateMediaReady)
	e.setStatusLocked(StatusWaiting)
	return nil
}

// HandleUserJoined records the new member as the remote peer and, with
// AutoOffer, starts the call.
func (e *Endpoint) HandleUserJoined(ctx context.Context, id string) error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateIdle || e.state == StateMediaReady {
		e.peerID = id
	}
	e.mu.Unlock()

	e.log.Debug("user joined", "peer_id", id)
	if !e.cfg.AutoOffer {
		return nil
	}
	return e.Call(ctx)
}

// Call is the caller path: create an offer and send it. Calling again while a
// negotiation is underway or established is a no-op.
func (e *Endpoint) Call(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateNegotiating, StateConnected:
		return nil
	case StateIdle:
		return ErrNotReady
	case StateClosed:
		return ErrClosed
	}

	e.setStatusLocked(StatusConnecting)
	offer, err := e.transport.CreateOffer(ctx)
	if err != nil {
		return e.failLocked(fmt.Errorf("create offer: %w", err))
	}
	if err := e.transport.SetLocalDescription(offer); err != nil {
		return e.failLocked(fmt.Errorf("set local offer: %w", err))
	}
	e.local = &offer
	e.caller = true
	e.setStateLocked(StateNegotiating)

	if err := e.cfg.Signaler.SendOffer(e.cfg.RoomID, offer); err != nil {
		return e.failLocked(fmt.Errorf("send offer: %w", err))
	}
	e.flushLocalCandidates()
	return nil
}

// HandleOffer is the callee path: apply the remote offer, answer it and send
// the answer.
func (e *Endpoint) HandleOffer(ctx context.Context, from string, offer Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return ErrClosed
	}
	if e.remote != nil && *e.remote == offer {
		e.log.Debug("ignoring repeated offer", "peer_id", from)
		return nil
	}
	if e.state != StateMediaReady || offer.Type != "offer" {
		return e.failLocked(fmt.Errorf("%w: offer in state %s", ErrUnexpectedDescription, e.state))
	}

	if from != "" {
		e.peerID = from
	}
	e.setStateLocked(StateNegotiating)
	if err := e.transport.SetRemoteDescription(offer); err != nil {
		return e.failLocked(fmt.Errorf("set remote offer: %w", err))
	}
	e.remote = &offer
	e.flushRemoteCandidatesLocked()

	answer, err := e.transport.CreateAnswer(ctx)
	if err != nil {
		return e.failLocked(fmt.Errorf("create answer: %w", err))
	}
	if err := e.transport.SetLocalDescription(answer); err != nil {
		return e.failLocked(fmt.Errorf("set local answer: %w", err))
	}
	e.local = &answer

	if err := e.cfg.Signaler.SendAnswer(e.cfg.RoomID, answer); err != nil {
		return e.failLocked(fmt.Errorf("send answer: %w", err))
	}
	e.setStateLocked(StateConnected)
	e.flushLocalCandidates()
	return nil
}

// HandleAnswer completes the caller path. An answer in any other situation
// ends the call.
func (e *Endpoint) HandleAnswer(from string, answer Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return ErrClosed
	}
	if e.state != StateNegotiating || !e.caller || answer.Type != "answer" {
		return e.failLocked(fmt.Errorf("%w: answer in state %s", ErrUnexpectedDescription, e.state))
	}
	if err := e.transport.SetRemoteDescription(answer); err != nil {
		return e.failLocked(fmt.Errorf("set remote answer: %w", err))
	}
	if from != "" {
		e.peerID = from
	}
	e.remote = &answer
	e.flushRemoteCandidatesLocked()
	e.setStateLocked(StateConnected)
	return nil
}

// HandleICECandidate applies a remote candidate, or holds it per
// CandidatePolicy when no remote description is set yet. Apply failures are
// logged and otherwise ignored.
func (e *Endpoint) HandleICECandidate(c Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed || e.transport == nil {
		return
	}
	if c.Candidate == "" {
		// End-of-candidates marker.
		return
	}
	if e.remote == nil {
		if e.cfg.CandidatePolicy == CandidatePolicyDrop {
			e.log.Debug("dropping early remote candidate")
			return
		}
		e.pendingRemote = append(e.pendingRemote, c)
		return
	}
	e.applyCandidateLocked(c)
}

// HandleTrack is the transport's remote-track signal. It confirms a
// negotiation that is still in flight.
func (e *Endpoint) HandleTrack() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return
	}
	if e.state == StateNegotiating {
		e.setStateLocked(StateConnected)
	}
	e.setStatusLocked(StatusConnected)
}

// HandlePeerDisconnected ends the call when id is the remote peer. The relay
// may announce disconnects from other rooms, which are ignored.
func (e *Endpoint) HandlePeerDisconnected(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed || id == "" || id != e.peerID {
		return
	}
	e.setStatusLocked(StatusPeerDisconnected)
	e.closeLocked()
}

// HandleSignalingLost records that the relay connection is gone. The call,
// if any, keeps running; there is no reconnection.
func (e *Endpoint) HandleSignalingLost() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setStatusLocked(StatusSignalingLost)
}

// Close releases the transport and media. It is safe to call more than once.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

// Run starts the endpoint and feeds events to it until ctx ends or the
// endpoint closes. The endpoint is always closed on return.
//
// A closed events channel means the relay connection is gone: the status
// changes, but an established call keeps running until ctx ends or the
// endpoint is closed.
func (e *Endpoint) Run(ctx context.Context, events <-chan Event) error {
	defer e.Close()

	if err := e.Start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		case ev, ok := <-events:
			if !ok {
				e.HandleSignalingLost()
				events = nil
				continue
			}
			e.dispatch(ctx, ev)
		}
	}
}

func (e *Endpoint) dispatch(ctx context.Context, ev Event) {
	var err error
	switch ev.Kind {
	case EventUserJoined:
		err = e.HandleUserJoined(ctx, ev.From)
	case EventCall:
		err = e.Call(ctx)
	case EventOffer:
		err = e.HandleOffer(ctx, ev.From, ev.Description)
	case EventAnswer:
		err = e.HandleAnswer(ev.From, ev.Description)
	case EventICECandidate:
		e.HandleICECandidate(ev.Candidate)
	case EventUserDisconnected:
		e.HandlePeerDisconnected(ev.From)
	default:
		e.log.Debug("ignoring unknown endpoint event", "kind", int(ev.Kind))
	}
	if err != nil && !errors.Is(err, ErrClosed) {
		e.log.Debug("endpoint event failed", "kind", int(ev.Kind), "err", err)
	}
}

func (e *Endpoint) onLocalCandidate(c Candidate) {
	e.candMu.Lock()
	if e.localClosed {
		e.candMu.Unlock()
		return
	}
	if !e.localSent {
		e.pendingLocal = append(e.pendingLocal, c)
		e.candMu.Unlock()
		return
	}
	e.candMu.Unlock()

	if err := e.cfg.Signaler.SendICECandidate(e.cfg.RoomID, c); err != nil {
		e.log.Warn("send local candidate", "err", err)
	}
}

func (e *Endpoint) flushLocalCandidates() {
	e.candMu.Lock()
	e.localSent = true
	pending := e.pendingLocal
	e.pendingLocal = nil
	e.candMu.Unlock()

	for _, c := range pending {
		if err := e.cfg.Signaler.SendICECandidate(e.cfg.RoomID, c); err != nil {
			e.log.Warn("send local candidate", "err", err)
		}
	}
}

func (e *Endpoint) flushRemoteCandidatesLocked() {
	pending := e.pendingRemote
	e.pendingRemote = nil
	for _, c := range pending {
		e.applyCandidateLocked(c)
	}
}

func (e *Endpoint) applyCandidateLocked(c Candidate) {
	if err := e.transport.AddICECandidate(c); err != nil {
		e.log.Warn("add remote candidate", "err", err)
	}
}

func (e *Endpoint) failLocked(err error) error {
	e.log.Warn("negotiation failed", "state", e.state.String(), "err", err)
	e.setStatusLocked(StatusNegotiationFailed)
	e.closeLocked()
	return err
}

func (e *Endpoint) closeLocked() {
	if e.state == StateClosed {
		return
	}
	e.setStateLocked(StateClosed)

	e.candMu.Lock()
	e.localClosed = true
	e.pendingLocal = nil
	e.candMu.Unlock()

	if e.transport != nil {
		if err := e.transport.Close(); err != nil {
			e.log.Debug("close transport", "err", err)
		}
		e.transport = nil
	}
	if e.stream != nil {
		if err := e.stream.Close(); err != nil {
			e.log.Debug("release media", "err", err)
		}
		e.stream = nil
	}
	e.local, e.remote = nil, nil
	e.pendingRemote = nil
	close(e.done)
}

func (e *Endpoint) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.log.Debug("endpoint state", "from", e.state.String(), "to", s.String())
	e.state = s
	if e.cfg.OnStateChange != nil {
		e.cfg.OnStateChange(s)
	}
}

func (e *Endpoint) setStatusLocked(status string) {
	e.status = status
	if e.cfg.OnStatus != nil {
		e.cfg.OnStatus(status)
	}
}
