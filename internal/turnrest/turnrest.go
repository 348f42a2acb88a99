// Package turnrest mints coturn-compatible TURN REST credentials.
//
// See:
//   - https://github.com/coturn/coturn/wiki/turnserver
//   - https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest
//
// The scheme, as coturn's use-auth-secret implements it:
//
//	username   = <unix_expiry_timestamp>:<username_prefix>:<session_id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// with the expiry computed from the server clock in UTC.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidSessionID = errors.New("invalid TURN REST session id")
)

type GeneratorConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string

	// Now and SessionIDSource default to the wall clock and random UUIDs.
	Now             func() time.Time
	SessionIDSource func() string
}

type Generator struct {
	sharedSecret   []byte
	ttlSeconds     int64
	usernamePrefix string
	now            func() time.Time
	newSessionID   func() string
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTLSeconds <= 0 {
		return nil, errors.New("TTLSeconds must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("UsernamePrefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("UsernamePrefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionIDSource == nil {
		cfg.SessionIDSource = uuid.NewString
	}
	return &Generator{
		sharedSecret:   []byte(cfg.SharedSecret),
		ttlSeconds:     cfg.TTLSeconds,
		usernamePrefix: cfg.UsernamePrefix,
		now:            cfg.Now,
		newSessionID:   cfg.SessionIDSource,
	}, nil
}

// Credentials is one minted username/credential pair.
type Credentials struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
	ExpiryUnix int64  `json:"expiresAt"`
}

func (g *Generator) TTL() time.Duration {
	return time.Duration(g.ttlSeconds) * time.Second
}

func (g *Generator) Generate(sessionID string) (Credentials, error) {
	if sessionID == "" || strings.Contains(sessionID, ":") {
		return Credentials{}, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	expiryUnix := g.now().UTC().Unix() + g.ttlSeconds
	username := fmt.Sprintf("%d:%s:%s", expiryUnix, g.usernamePrefix, sessionID)
	return Credentials{
		Username:   username,
		Credential: signUsername(g.sharedSecret, username),
		ExpiryUnix: expiryUnix,
	}, nil
}

// GenerateRandom mints credentials for a fresh session id.
func (g *Generator) GenerateRandom() (Credentials, error) {
	return g.Generate(g.newSessionID())
}

func signUsername(sharedSecret []byte, username string) string {
	mac := hmac.New(sha1.New, sharedSecret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
