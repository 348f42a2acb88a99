package metrics

import "sync"

// Event names. Counters are exported under a single Prometheus metric with an
// `event` label, so names stay short and snake_case.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"

	RoomsCreated = "rooms_created"
	RoomsDeleted = "rooms_deleted"
	RoomJoins    = "room_joins"

	MessagesRelayed   = "messages_relayed"
	DisconnectsSent   = "disconnect_notifications"
	DropNotMember     = "drop_not_member"
	DropRoomFull      = "drop_room_full"
	DropSlowConsumer  = "drop_slow_consumer"
	DropBadMessage    = "drop_bad_message"
	DropRateLimited   = "drop_rate_limited"
	DropFrameTooLarge = "drop_frame_too_large"

	AuthFailures   = "auth_failures"
	OriginRejected = "origin_rejected"

	ConnectLimiterEvictions = "connect_limiter_evictions"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
