package httpserver

import (
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
)

// withTURNRESTCredentials returns a copy of servers with username/credential
// replaced on every entry that has a TURN URL. STUN-only entries pass through.
func withTURNRESTCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	if len(servers) == 0 {
		// Keep empty non-nil slices so the response encodes `[]`, not `null`.
		return servers
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if iceServerHasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}

func iceServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, url := range server.URLs {
		if config.IsTURNURL(url) {
			return true
		}
	}
	return false
}
