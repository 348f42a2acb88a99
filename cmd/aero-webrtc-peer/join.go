package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/endpoint"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/webrtcpeer"
)

var (
	flagJoinAutoOffer    bool
	flagJoinAudioOnly    bool
	flagJoinDropEarly    bool
	flagJoinDuration     time.Duration
	flagJoinOrigin       string
	flagJoinUDPPortMin   uint16
	flagJoinUDPPortMax   uint16
	flagJoinNAT1To1IPs   []string
	flagJoinUDPListenIP  string
	flagJoinSkipICEFetch bool
	flagJoinDialTimeout  time.Duration
)

const defaultDialTimeout = 10 * time.Second

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and negotiate a call with whoever else is in it",
	Long: `Join a room on the relay and negotiate a call with the next member to join,
sending synthetic audio and video. Status changes are printed as they happen.

Examples:
  aero-webrtc-peer join lobby
  aero-webrtc-peer join lobby --server https://relay.example.com --api-key $KEY
  aero-webrtc-peer join lobby --auto-offer=false --duration 30s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(os.LookupEnv)
		if err != nil {
			return err
		}
		return joinRoom(cmd.Context(), s, args[0])
	},
}

func joinRoom(ctx context.Context, s settings, roomID string) error {
	log := s.Logger.With("room_id", roomID)
	dialTimeout := flagJoinDialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	netOpts, err := networkOptions(flagJoinUDPPortMin, flagJoinUDPPortMax, flagJoinNAT1To1IPs, flagJoinUDPListenIP)
	if err != nil {
		return err
	}
	netOpts.Logger = s.Logger

	var iceServers []webrtc.ICEServer
	if !flagJoinSkipICEFetch {
		fetchCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		servers, err := fetchICEServers(fetchCtx, http.DefaultClient, s)
		cancel()
		if err != nil {
			printInfo(warningStyle.Render("could not fetch ICE servers, using host candidates only: " + err.Error()))
		} else {
			iceServers = servers
		}
	}

	api, err := webrtcpeer.NewAPI(netOpts)
	if err != nil {
		return err
	}

	header := http.Header{}
	if flagJoinOrigin != "" {
		header.Set("Origin", flagJoinOrigin)
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	client, err := signaling.Dial(dialCtx, s.wsURL(), signaling.DialOptions{
		APIKey: s.APIKey,
		Header: header,
		Dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
	})
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	policy := endpoint.CandidatePolicyQueue
	if flagJoinDropEarly {
		policy = endpoint.CandidatePolicyDrop
	}
	ep, err := endpoint.New(endpoint.Config{
		RoomID:          roomID,
		Media:           &webrtcpeer.SyntheticSource{DisableVideo: flagJoinAudioOnly},
		NewTransport:    webrtcpeer.NewTransportFactory(api, iceServers, log),
		Signaler:        relaySignaler{c: client},
		AutoOffer:       flagJoinAutoOffer,
		CandidatePolicy: policy,
		Logger:          log,
		OnStatus: func(status string) {
			fmt.Println(statusLine(roomID, status))
		},
	})
	if err != nil {
		return err
	}

	runCtx := ctx
	if flagJoinDuration > 0 {
		var cancelRun context.CancelFunc
		runCtx, cancelRun = context.WithTimeout(ctx, flagJoinDuration)
		defer cancelRun()
	}

	events := make(chan endpoint.Event, 64)
	go pumpEvents(runCtx, log, client.Events(), events, func(id string) {
		printInfo("connected to relay as " + boldStyle.Render(id))
	})

	err = ep.Run(runCtx, events)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = nil
	default:
		return err
	}

	if cerr := client.Err(); cerr != nil && !websocket.IsCloseError(cerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Debug("relay connection ended", "err", cerr)
	}
	switch ep.Status() {
	case endpoint.StatusMediaFailed, endpoint.StatusNegotiationFailed:
		return errors.New(ep.Status())
	}
	return err
}

// networkOptions validates the ICE network flags.
func networkOptions(portMin, portMax uint16, nat1To1IPs []string, listenIP string) (webrtcpeer.Options, error) {
	opts := webrtcpeer.Options{UDPPortMin: portMin, UDPPortMax: portMax}
	for _, raw := range nat1To1IPs {
		ip := net.ParseIP(strings.TrimSpace(raw))
		if ip == nil {
			return webrtcpeer.Options{}, fmt.Errorf("--nat-1to1-ip: invalid IP %q", raw)
		}
		opts.NAT1To1IPs = append(opts.NAT1To1IPs, ip.String())
	}
	if listenIP != "" {
		ip := net.ParseIP(strings.TrimSpace(listenIP))
		if ip == nil {
			return webrtcpeer.Options{}, fmt.Errorf("--udp-listen-ip: invalid IP %q", listenIP)
		}
		opts.ListenIP = ip
	}
	return opts, nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().BoolVar(&flagJoinAutoOffer, "auto-offer", true, "Call as soon as another member joins")
	joinCmd.Flags().BoolVar(&flagJoinAudioOnly, "audio-only", false, "Send audio only")
	joinCmd.Flags().BoolVar(&flagJoinDropEarly, "drop-early-candidates", false, "Drop remote ICE candidates that arrive before the remote description instead of queueing them")
	joinCmd.Flags().DurationVar(&flagJoinDuration, "duration", 0, "Leave after this long (0 runs until interrupted or the call ends)")
	joinCmd.Flags().StringVar(&flagJoinOrigin, "origin", "", "Origin header for the WebSocket upgrade")
	joinCmd.Flags().Uint16Var(&flagJoinUDPPortMin, "udp-port-min", 0, "Lowest local UDP port for ICE")
	joinCmd.Flags().Uint16Var(&flagJoinUDPPortMax, "udp-port-max", 0, "Highest local UDP port for ICE")
	joinCmd.Flags().StringSliceVar(&flagJoinNAT1To1IPs, "nat-1to1-ip", nil, "Public IP to advertise in place of local host addresses (repeatable)")
	joinCmd.Flags().StringVar(&flagJoinUDPListenIP, "udp-listen-ip", "", "Gather ICE candidates on this local address only")
	joinCmd.Flags().BoolVar(&flagJoinSkipICEFetch, "no-ice-fetch", false, "Do not fetch ICE servers from the relay")
	joinCmd.Flags().DurationVar(&flagJoinDialTimeout, "dial-timeout", defaultDialTimeout, "Timeout for reaching the relay")
}
