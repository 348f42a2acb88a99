// Package relay owns the room membership table and routes negotiation events
// between connections that share a room.
//
// The relay never inspects payloads. It is transport-agnostic: the signaling
// package adapts WebSocket connections to the Conn interface.
package relay
