package relay

import "errors"

var (
	// ErrRoomFull is returned by Join when Config.MaxRoomMembers is set and the
	// room already holds that many connections.
	ErrRoomFull = errors.New("room full")
	// ErrUnknownConn is returned when a connection is used before Register or
	// after Disconnect.
	ErrUnknownConn  = errors.New("unknown connection")
	ErrDuplicateID  = errors.New("connection id already registered")
	ErrNotForwarded = errors.New("event kind is not forwardable")
)
