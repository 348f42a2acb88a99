package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/endpoint"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/signaling"
)

// sender is the write side of signaling.Client.
type sender interface {
	JoinRoom(roomID string) error
	Forward(event signaling.EventName, roomID string, payload any) error
}

// relaySignaler sends endpoint output over a relay connection.
type relaySignaler struct {
	c sender
}

var _ endpoint.Signaler = relaySignaler{}

func (s relaySignaler) JoinRoom(roomID string) error {
	return s.c.JoinRoom(roomID)
}

func (s relaySignaler) SendOffer(roomID string, offer endpoint.Description) error {
	return s.c.Forward(signaling.EventOffer, roomID, offer)
}

func (s relaySignaler) SendAnswer(roomID string, answer endpoint.Description) error {
	return s.c.Forward(signaling.EventAnswer, roomID, answer)
}

func (s relaySignaler) SendICECandidate(roomID string, c endpoint.Candidate) error {
	return s.c.Forward(signaling.EventICECandidate, roomID, c)
}

// translate maps a relay frame to an endpoint event. Frames the endpoint does
// not consume (welcome, error, malformed payloads) report ok=false.
func translate(msg signaling.ServerMessage) (endpoint.Event, bool, error) {
	switch msg.Event {
	case signaling.EventUserJoined:
		return endpoint.Event{Kind: endpoint.EventUserJoined, From: msg.ID}, true, nil
	case signaling.EventUserDisconnected:
		return endpoint.Event{Kind: endpoint.EventUserDisconnected, From: msg.ID}, true, nil
	case signaling.EventOffer, signaling.EventAnswer:
		var d endpoint.Description
		if err := json.Unmarshal(msg.Payload, &d); err != nil {
			return endpoint.Event{}, false, err
		}
		kind := endpoint.EventOffer
		if msg.Event == signaling.EventAnswer {
			kind = endpoint.EventAnswer
		}
		return endpoint.Event{Kind: kind, From: msg.From, Description: d}, true, nil
	case signaling.EventICECandidate:
		var c endpoint.Candidate
		if err := json.Unmarshal(msg.Payload, &c); err != nil {
			return endpoint.Event{}, false, err
		}
		return endpoint.Event{Kind: endpoint.EventICECandidate, From: msg.From, Candidate: c}, true, nil
	default:
		return endpoint.Event{}, false, nil
	}
}

// pumpEvents feeds relay frames to out until in is closed or ctx ends, then
// closes out. The welcome frame's id is passed to onWelcome.
func pumpEvents(ctx context.Context, log *slog.Logger, in <-chan signaling.ServerMessage, out chan<- endpoint.Event, onWelcome func(id string)) {
	defer close(out)
	for {
		var msg signaling.ServerMessage
		var ok bool
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-in:
			if !ok {
				return
			}
		}

		switch msg.Event {
		case signaling.EventWelcome:
			if onWelcome != nil {
				onWelcome(msg.ID)
			}
			continue
		case signaling.EventError:
			log.Warn("relay error", "code", msg.Code, "message", msg.Message)
			continue
		}

		ev, ok, err := translate(msg)
		if err != nil {
			log.Warn("dropping malformed relay frame", "event", string(msg.Event), "err", err)
			continue
		}
		if !ok {
			log.Debug("ignoring relay frame", "event", string(msg.Event))
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
