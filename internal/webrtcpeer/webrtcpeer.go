// Package webrtcpeer implements the endpoint collaborators on top of pion:
// a PeerConnection-backed transport, a synthetic media source for headless
// peers and the shared webrtc.API.
package webrtcpeer

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/pion/webrtc/v4"
)

// Options configures the pion API shared by every transport a process builds.
type Options struct {
	// UDPPortMin and UDPPortMax restrict ICE host candidates to a port range.
	// Both zero means any port.
	UDPPortMin uint16
	UDPPortMax uint16

	// NAT1To1IPs are advertised as host candidates in place of local addresses.
	NAT1To1IPs []string

	// ListenIP restricts candidate gathering to one local address.
	ListenIP net.IP

	Logger *slog.Logger
}

// NewAPI builds a webrtc.API with default codecs and the network settings from
// opts. Extra settings are applied last, which is how tests install a virtual
// network.
func NewAPI(opts Options, extra ...func(*webrtc.SettingEngine)) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	if err := ApplyNetworkSettings(&se, opts); err != nil {
		return nil, err
	}
	se.LoggerFactory = NewLoggerFactory(opts.Logger)
	for _, fn := range extra {
		fn(&se)
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(me),
	), nil
}

// ApplyNetworkSettings installs the port range, NAT 1:1 addresses and listen
// address from opts on se.
func ApplyNetworkSettings(se *webrtc.SettingEngine, opts Options) error {
	if opts.UDPPortMin != 0 || opts.UDPPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortMin, opts.UDPPortMax); err != nil {
			return fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	if len(opts.NAT1To1IPs) > 0 {
		se.SetNAT1To1IPs(opts.NAT1To1IPs, webrtc.ICECandidateTypeHost)
	}

	// SettingEngine has no bind address; IPFilter limits both gathering and
	// socket binding instead.
	if opts.ListenIP != nil && !opts.ListenIP.IsUnspecified() {
		listenIP := opts.ListenIP
		se.SetIPFilter(func(ip net.IP) bool {
			return ip.Equal(listenIP)
		})
	}
	return nil
}
