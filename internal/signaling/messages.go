package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

// EventName is the `event` discriminator on every frame.
type EventName string

const (
	EventAuth             EventName = "auth"
	EventJoinRoom         EventName = "join-room"
	EventOffer            EventName = EventName(relay.KindOffer)
	EventAnswer           EventName = EventName(relay.KindAnswer)
	EventICECandidate     EventName = EventName(relay.KindICECandidate)
	EventWelcome          EventName = EventName(relay.KindWelcome)
	EventUserJoined       EventName = EventName(relay.KindUserJoined)
	EventUserDisconnected EventName = EventName(relay.KindUserDisconnected)
	EventError            EventName = "error"
)

// Error codes carried by `error` events.
const (
	ErrCodeBadMessage   = "bad_message"
	ErrCodeRoomFull     = "room_full"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
)

// ClientMessage is a frame sent by an endpoint to the relay.
//
// RoomID is a pointer so that the empty string stays a legal room id while a
// missing field is still detected.
type ClientMessage struct {
	Event   EventName       `json:"event"`
	RoomID  *string         `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	APIKey string `json:"apiKey,omitempty"`
	Token  string `json:"token,omitempty"`
}

// ParseClientMessage decodes exactly one JSON object and rejects unknown
// fields, trailing data and fields that do not belong to the event.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg ClientMessage
	if err := dec.Decode(&msg); err != nil {
		return ClientMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ClientMessage{}, errors.New("unexpected trailing data")
	}
	if err := msg.validate(); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

func (m ClientMessage) hasPayload() bool {
	return len(m.Payload) > 0 && !bytes.Equal(m.Payload, []byte("null"))
}

func (m ClientMessage) validate() error {
	switch m.Event {
	case EventAuth:
		if m.APIKey == "" && m.Token == "" {
			return errors.New("auth message missing apiKey/token")
		}
		if m.RoomID != nil || m.hasPayload() {
			return errors.New("auth message has unexpected fields")
		}
	case EventJoinRoom:
		if m.RoomID == nil {
			return errors.New("join-room message missing roomId")
		}
		if m.hasPayload() || m.APIKey != "" || m.Token != "" {
			return errors.New("join-room message has unexpected fields")
		}
	case EventOffer, EventAnswer, EventICECandidate:
		if m.RoomID == nil {
			return fmt.Errorf("%s message missing roomId", m.Event)
		}
		if !m.hasPayload() {
			return fmt.Errorf("%s message missing payload", m.Event)
		}
		if m.APIKey != "" || m.Token != "" {
			return fmt.Errorf("%s message has unexpected fields", m.Event)
		}
	case "":
		return errors.New("missing event")
	default:
		return fmt.Errorf("unsupported event %q", m.Event)
	}
	return nil
}

// ServerMessage is a frame sent by the relay to an endpoint.
type ServerMessage struct {
	Event   EventName       `json:"event"`
	ID      string          `json:"id,omitempty"`
	RoomID  *string         `json:"roomId,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func serverMessageFromEvent(ev relay.Event) ServerMessage {
	msg := ServerMessage{Event: EventName(ev.Kind)}
	if ev.Kind.Forwardable() {
		roomID := ev.RoomID
		msg.RoomID = &roomID
		msg.From = ev.From
		msg.Payload = ev.Payload
		return msg
	}
	msg.ID = ev.From
	return msg
}

// encodeServerMessage marshals msg with Payload spliced in verbatim.
// encoding/json would compact and HTML-escape a RawMessage.
func encodeServerMessage(msg ServerMessage) ([]byte, error) {
	payload := msg.Payload
	msg.Payload = nil
	data, err := json.Marshal(msg)
	if err != nil || len(payload) == 0 {
		return data, err
	}
	out := make([]byte, 0, len(data)+len(payload)+len(`,"payload":`))
	out = append(out, data[:len(data)-1]...)
	out = append(out, `,"payload":`...)
	out = append(out, payload...)
	return append(out, '}'), nil
}

func errorMessage(code, message string) ServerMessage {
	return ServerMessage{Event: EventError, Code: code, Message: message}
}

// ParseServerMessage decodes a relay frame. Unknown fields are tolerated so
// older clients keep working against newer relays.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, err
	}
	if msg.Event == "" {
		return ServerMessage{}, errors.New("missing event")
	}
	return msg, nil
}
