package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
)

type iceResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// fetchICEServers asks the relay for the ICE servers browser clients would
// use, including per-request TURN REST credentials when the relay mints them.
func fetchICEServers(ctx context.Context, client *http.Client, s settings) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpointURL("/webrtc/ice").String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /webrtc/ice: %s", resp.Status)
	}

	var body iceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode /webrtc/ice: %w", err)
	}
	return usableICEServers(body.ICEServers), nil
}

// usableICEServers drops TURN entries without a username and credential. pion
// refuses to build a PeerConnection with them.
func usableICEServers(servers []webrtc.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, server := range servers {
		if !hasTURNURL(server) {
			out = append(out, server)
			continue
		}
		if strings.TrimSpace(server.Username) == "" {
			continue
		}
		cred, ok := server.Credential.(string)
		if !ok || strings.TrimSpace(cred) == "" {
			continue
		}
		out = append(out, server)
	}
	return out
}

func hasTURNURL(server webrtc.ICEServer) bool {
	for _, url := range server.URLs {
		if config.IsTURNURL(url) {
			return true
		}
	}
	return false
}
