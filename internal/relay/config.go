package relay

import (
	"fmt"
	"strings"
)

// DisconnectScope controls who is told that a connection went away.
type DisconnectScope string

const (
	// DisconnectScopeAll notifies every other live connection, regardless of
	// room. This matches the behaviour browser clients were written against.
	DisconnectScopeAll DisconnectScope = "all"
	// DisconnectScopeRoom notifies only the connection's former co-members.
	DisconnectScopeRoom DisconnectScope = "room"
)

func ParseDisconnectScope(raw string) (DisconnectScope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(DisconnectScopeAll):
		return DisconnectScopeAll, nil
	case string(DisconnectScopeRoom):
		return DisconnectScopeRoom, nil
	default:
		return "", fmt.Errorf("invalid disconnect scope %q (expected %q or %q)", raw, DisconnectScopeAll, DisconnectScopeRoom)
	}
}

type Config struct {
	// MaxRoomMembers caps room size. Zero means unlimited.
	MaxRoomMembers int

	DisconnectScope DisconnectScope
}

func DefaultConfig() Config {
	return Config{
		MaxRoomMembers:  0,
		DisconnectScope: DisconnectScopeAll,
	}
}

// WithDefaults returns c with any zero/invalid fields replaced with defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxRoomMembers < 0 {
		c.MaxRoomMembers = d.MaxRoomMembers
	}
	if c.DisconnectScope != DisconnectScopeAll && c.DisconnectScope != DisconnectScopeRoom {
		c.DisconnectScope = d.DisconnectScope
	}
	return c
}
