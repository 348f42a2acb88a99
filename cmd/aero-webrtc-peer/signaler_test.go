package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/endpoint"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/signaling"
)

type recordingSender struct {
	joins    []string
	forwards []signaling.EventName
	payloads []string
}

func (r *recordingSender) JoinRoom(roomID string) error {
	r.joins = append(r.joins, roomID)
	return nil
}

func (r *recordingSender) Forward(event signaling.EventName, roomID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.forwards = append(r.forwards, event)
	r.payloads = append(r.payloads, roomID+" "+string(raw))
	return nil
}

func TestRelaySignaler(t *testing.T) {
	rec := &recordingSender{}
	s := relaySignaler{c: rec}

	mid := "0"
	_ = s.JoinRoom("r")
	_ = s.SendOffer("r", endpoint.Description{Type: "offer", SDP: "o"})
	_ = s.SendAnswer("r", endpoint.Description{Type: "answer", SDP: "a"})
	_ = s.SendICECandidate("r", endpoint.Candidate{Candidate: "c", SDPMid: &mid})

	if !reflect.DeepEqual(rec.joins, []string{"r"}) {
		t.Fatalf("joins=%v", rec.joins)
	}
	wantEvents := []signaling.EventName{signaling.EventOffer, signaling.EventAnswer, signaling.EventICECandidate}
	if !reflect.DeepEqual(rec.forwards, wantEvents) {
		t.Fatalf("forwards=%v, want %v", rec.forwards, wantEvents)
	}
	wantPayloads := []string{
		`r {"type":"offer","sdp":"o"}`,
		`r {"type":"answer","sdp":"a"}`,
		`r {"candidate":"c","sdpMid":"0"}`,
	}
	if !reflect.DeepEqual(rec.payloads, wantPayloads) {
		t.Fatalf("payloads=%v, want %v", rec.payloads, wantPayloads)
	}
}

func TestTranslate(t *testing.T) {
	room := "r"
	tests := []struct {
		name string
		msg  signaling.ServerMessage
		want endpoint.Event
		ok   bool
	}{
		{
			name: "user joined",
			msg:  signaling.ServerMessage{Event: signaling.EventUserJoined, ID: "p"},
			want: endpoint.Event{Kind: endpoint.EventUserJoined, From: "p"},
			ok:   true,
		},
		{
			name: "user disconnected",
			msg:  signaling.ServerMessage{Event: signaling.EventUserDisconnected, ID: "p"},
			want: endpoint.Event{Kind: endpoint.EventUserDisconnected, From: "p"},
			ok:   true,
		},
		{
			name: "offer",
			msg:  signaling.ServerMessage{Event: signaling.EventOffer, RoomID: &room, From: "p", Payload: json.RawMessage(`{"type":"offer","sdp":"x"}`)},
			want: endpoint.Event{Kind: endpoint.EventOffer, From: "p", Description: endpoint.Description{Type: "offer", SDP: "x"}},
			ok:   true,
		},
		{
			name: "answer",
			msg:  signaling.ServerMessage{Event: signaling.EventAnswer, RoomID: &room, From: "p", Payload: json.RawMessage(`{"type":"answer","sdp":"y"}`)},
			want: endpoint.Event{Kind: endpoint.EventAnswer, From: "p", Description: endpoint.Description{Type: "answer", SDP: "y"}},
			ok:   true,
		},
		{
			name: "candidate",
			msg:  signaling.ServerMessage{Event: signaling.EventICECandidate, RoomID: &room, From: "p", Payload: json.RawMessage(`{"candidate":"c"}`)},
			want: endpoint.Event{Kind: endpoint.EventICECandidate, From: "p", Candidate: endpoint.Candidate{Candidate: "c"}},
			ok:   true,
		},
		{
			name: "welcome ignored",
			msg:  signaling.ServerMessage{Event: signaling.EventWelcome, ID: "me"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := translate(tc.msg)
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			if ok != tc.ok || !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got (%+v, %v), want (%+v, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}

	if _, _, err := translate(signaling.ServerMessage{Event: signaling.EventOffer, Payload: json.RawMessage(`"nope"`)}); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestPumpEvents(t *testing.T) {
	in := make(chan signaling.ServerMessage, 8)
	out := make(chan endpoint.Event, 8)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	in <- signaling.ServerMessage{Event: signaling.EventWelcome, ID: "me"}
	in <- signaling.ServerMessage{Event: signaling.EventError, Code: signaling.ErrCodeRoomFull}
	in <- signaling.ServerMessage{Event: signaling.EventOffer, From: "p", Payload: json.RawMessage(`[]`)}
	in <- signaling.ServerMessage{Event: signaling.EventUserJoined, ID: "p"}
	close(in)

	var welcomed string
	done := make(chan struct{})
	go func() {
		pumpEvents(context.Background(), log, in, out, func(id string) { welcomed = id })
		close(done)
	}()

	var got []endpoint.Event
	for ev := range out {
		got = append(got, ev)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pumpEvents did not return")
	}

	if welcomed != "me" {
		t.Fatalf("welcomed=%q, want me", welcomed)
	}
	want := []endpoint.Event{{Kind: endpoint.EventUserJoined, From: "p"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("events=%+v, want %+v", got, want)
	}
}
