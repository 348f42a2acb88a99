package relay

// Kind names a relay event. The string values double as the wire event names.
type Kind string

const (
	KindWelcome          Kind = "welcome"
	KindUserJoined       Kind = "user-joined"
	KindOffer            Kind = "offer"
	KindAnswer           Kind = "answer"
	KindICECandidate     Kind = "ice-candidate"
	KindUserDisconnected Kind = "user-disconnected"
)

// Forwardable reports whether endpoints may send events of this kind for
// fan-out to their room.
func (k Kind) Forwardable() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate:
		return true
	default:
		return false
	}
}

// Event is a single delivery to one connection.
//
// For welcome, user-joined and user-disconnected, From is the connection the
// notification is about. For forwarded kinds it is the sender and Payload is
// the sender's bytes, untouched.
type Event struct {
	Kind    Kind
	From    string
	RoomID  string
	Payload []byte
}

// Conn is a live participant as seen by the relay.
//
// Deliver is called with the relay lock held and must not block or call back
// into the Relay. Returning false means the event could not be queued; the
// implementation is expected to tear itself down, which eventually results in
// Disconnect.
type Conn interface {
	ID() string
	Deliver(Event) bool
}
