package relay

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
)

type member struct {
	conn   Conn
	room   string
	inRoom bool
}

// Relay is the room membership table plus the routing rules on top of it.
//
// A single mutex guards the table and every delivery. Conn.Deliver never
// blocks, so a join and its notifications are atomic with respect to other
// joins, and events from one sender reach each recipient in the order the relay
// accepted them.
type Relay struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	conns map[string]*member
	rooms map[string]map[string]Conn
}

func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Relay{
		cfg:     cfg.WithDefaults(),
		log:     logger,
		metrics: m,
		conns:   make(map[string]*member),
		rooms:   make(map[string]map[string]Conn),
	}
}

func (r *Relay) Metrics() *metrics.Metrics { return r.metrics }

// Register adds c to the set of live connections and sends it a welcome event
// carrying its own id.
func (r *Relay) Register(c Conn) error {
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		return fmt.Errorf("register %s: %w", id, ErrDuplicateID)
	}
	r.conns[id] = &member{conn: c}
	r.metrics.Inc(metrics.ConnectionsOpened)
	r.deliverLocked(c, Event{Kind: KindWelcome, From: id})
	return nil
}

// Join puts c into roomID and tells every other member about it.
//
// Joining the room c is already in is a no-op. Joining a different room leaves
// the previous one first, without notification. Any string is a valid room id.
func (r *Relay) Join(c Conn, roomID string) error {
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("join %q: %w", roomID, ErrUnknownConn)
	}
	if m.inRoom && m.room == roomID {
		return nil
	}

	members := r.rooms[roomID]
	if r.cfg.MaxRoomMembers > 0 && len(members) >= r.cfg.MaxRoomMembers {
		r.metrics.Inc(metrics.DropRoomFull)
		return fmt.Errorf("join %q: %w", roomID, ErrRoomFull)
	}

	if m.inRoom {
		r.leaveLocked(m)
	}

	if members == nil {
		members = make(map[string]Conn)
		r.rooms[roomID] = members
		r.metrics.Inc(metrics.RoomsCreated)
	}
	for otherID, other := range members {
		if otherID == id {
			continue
		}
		r.deliverLocked(other, Event{Kind: KindUserJoined, From: id, RoomID: roomID})
	}
	members[id] = c
	m.room = roomID
	m.inRoom = true
	r.metrics.Inc(metrics.RoomJoins)

	r.log.Debug("joined room", "conn_id", id, "room_id", roomID, "members", len(members))
	return nil
}

// Forward sends payload from c to every other member of roomID and returns how
// many recipients it was queued for.
//
// If c is not currently in roomID the event is dropped. This is expected when a
// message races a disconnect, so it is logged at debug level only.
func (r *Relay) Forward(kind Kind, c Conn, roomID string, payload []byte) (int, error) {
	if !kind.Forwardable() {
		return 0, fmt.Errorf("forward %q: %w", kind, ErrNotForwarded)
	}
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[id]
	if !ok || !m.inRoom || m.room != roomID {
		r.metrics.Inc(metrics.DropNotMember)
		r.log.Debug("dropping event from non-member", "conn_id", id, "room_id", roomID, "event", string(kind))
		return 0, nil
	}

	n := 0
	for otherID, other := range r.rooms[roomID] {
		if otherID == id {
			continue
		}
		if r.deliverLocked(other, Event{Kind: kind, From: id, RoomID: roomID, Payload: payload}) {
			n++
		}
	}
	r.metrics.Add(metrics.MessagesRelayed, uint64(n))
	return n, nil
}

// Disconnect removes c from its room and from the live set, then announces the
// departure according to Config.DisconnectScope. Calling it more than once is
// harmless.
func (r *Relay) Disconnect(c Conn) {
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	r.metrics.Inc(metrics.ConnectionsClosed)

	room, inRoom := m.room, m.inRoom
	var roomMates []Conn
	if inRoom {
		for otherID, other := range r.rooms[m.room] {
			if otherID != id {
				roomMates = append(roomMates, other)
			}
		}
		r.leaveLocked(m)
	}

	ev := Event{Kind: KindUserDisconnected, From: id}
	switch r.cfg.DisconnectScope {
	case DisconnectScopeRoom:
		for _, other := range roomMates {
			r.deliverLocked(other, ev)
		}
	default:
		for _, other := range r.conns {
			r.deliverLocked(other.conn, ev)
		}
	}

	r.log.Debug("connection disconnected", "conn_id", id, "room_id", room, "in_room", inRoom)
}

func (r *Relay) leaveLocked(m *member) {
	id := m.conn.ID()
	members := r.rooms[m.room]
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, m.room)
		r.metrics.Inc(metrics.RoomsDeleted)
	}
	m.room = ""
	m.inRoom = false
}

func (r *Relay) deliverLocked(c Conn, ev Event) bool {
	if ev.Kind == KindUserDisconnected {
		r.metrics.Inc(metrics.DisconnectsSent)
	}
	if c.Deliver(ev) {
		return true
	}
	r.metrics.Inc(metrics.DropSlowConsumer)
	r.log.Debug("event not queued", "conn_id", c.ID(), "event", string(ev.Kind))
	return false
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// Rooms returns every non-empty room ordered by id.
func (r *Relay) Rooms() []RoomInfo {
	r.mu.Lock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, RoomInfo{ID: id, Members: len(members)})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Members returns the ids in roomID, sorted.
func (r *Relay) Members(roomID string) []string {
	r.mu.Lock()
	members := r.rooms[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

// RoomOf reports which room c is in, if any.
func (r *Relay) RoomOf(c Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.conns[c.ID()]
	if !ok || !m.inRoom {
		return "", false
	}
	return m.room, true
}

// ConnCount returns the number of live connections.
func (r *Relay) ConnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
