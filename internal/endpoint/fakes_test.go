package endpoint

import (
	"context"
	"errors"
	"sync"
)

type fakeStream struct {
	mu     sync.Mutex
	closes int
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeMedia struct {
	stream *fakeStream
	err    error
}

func (m *fakeMedia) Acquire(context.Context) (Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

type fakeTransport struct {
	mu sync.Mutex
	cb TransportCallbacks

	offers, answers int
	local, remote   []Description
	candidates      []Candidate
	closes          int

	setRemoteErr error
	addCandErr   error
}

func (t *fakeTransport) CreateOffer(context.Context) (Description, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offers++
	return Description{Type: "offer", SDP: "local-offer"}, nil
}

func (t *fakeTransport) CreateAnswer(context.Context) (Description, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers++
	return Description{Type: "answer", SDP: "local-answer"}, nil
}

func (t *fakeTransport) SetLocalDescription(d Description) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local = append(t.local, d)
	return nil
}

func (t *fakeTransport) SetRemoteDescription(d Description) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.setRemoteErr != nil {
		return t.setRemoteErr
	}
	t.remote = append(t.remote, d)
	return nil
}

func (t *fakeTransport) AddICECandidate(c Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, c)
	return t.addCandErr
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *fakeTransport) appliedCandidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.candidates))
	for i, c := range t.candidates {
		out[i] = c.Candidate
	}
	return out
}

type sent struct {
	kind string
	room string
	desc Description
	cand Candidate
}

type fakeSignaler struct {
	mu      sync.Mutex
	sent    []sent
	joinErr error
}

func (s *fakeSignaler) record(m sent) {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
}

func (s *fakeSignaler) JoinRoom(roomID string) error {
	if s.joinErr != nil {
		return s.joinErr
	}
	s.record(sent{kind: "join-room", room: roomID})
	return nil
}

func (s *fakeSignaler) SendOffer(roomID string, d Description) error {
	s.record(sent{kind: "offer", room: roomID, desc: d})
	return nil
}

func (s *fakeSignaler) SendAnswer(roomID string, d Description) error {
	s.record(sent{kind: "answer", room: roomID, desc: d})
	return nil
}

func (s *fakeSignaler) SendICECandidate(roomID string, c Candidate) error {
	s.record(sent{kind: "ice-candidate", room: roomID, cand: c})
	return nil
}

func (s *fakeSignaler) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.kind
		if m.kind == "ice-candidate" {
			out[i] += ":" + m.cand.Candidate
		}
	}
	return out
}

type harness struct {
	ep        *Endpoint
	media     *fakeMedia
	stream    *fakeStream
	transport *fakeTransport
	signaler  *fakeSignaler
	statuses  []string
}

func newHarness(cfg Config) *harness {
	h := &harness{
		stream:    &fakeStream{},
		transport: &fakeTransport{},
		signaler:  &fakeSignaler{},
	}
	h.media = &fakeMedia{stream: h.stream}
	if cfg.RoomID == "" {
		cfg.RoomID = "room-1"
	}
	cfg.Media = h.media
	cfg.Signaler = h.signaler
	cfg.NewTransport = func(_ context.Context, _ Stream, cb TransportCallbacks) (PeerTransport, error) {
		h.transport.cb = cb
		return h.transport, nil
	}
	cfg.OnStatus = func(s string) { h.statuses = append(h.statuses, s) }
	ep, err := New(cfg)
	if err != nil {
		panic(err)
	}
	h.ep = ep
	return h
}

var errBoom = errors.New("boom")

func cand(s string) Candidate { return Candidate{Candidate: s} }
