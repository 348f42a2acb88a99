package main

import (
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/turnrest"
)

// newTURNGenerator returns nil when TURN REST is not configured, in which case
// /webrtc/ice serves the static credentials from the ICE config.
func newTURNGenerator(cfg config.Config) (*turnrest.Generator, error) {
	if !cfg.TURNREST.Enabled() {
		return nil, nil
	}
	return turnrest.NewGenerator(turnrest.GeneratorConfig{
		SharedSecret:   cfg.TURNREST.SharedSecret,
		TTLSeconds:     cfg.TURNREST.TTLSeconds,
		UsernamePrefix: cfg.TURNREST.UsernamePrefix,
	})
}
