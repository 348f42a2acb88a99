package webrtcpeer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/endpoint"
)

// Transport adapts a pion PeerConnection to endpoint.PeerTransport.
type Transport struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger
}

var _ endpoint.PeerTransport = (*Transport)(nil)

// NewTransportFactory returns a factory building one PeerConnection per
// endpoint from api. Tracks of streams implementing TrackSource are sent;
// otherwise the connection only receives audio and video.
func NewTransportFactory(api *webrtc.API, iceServers []webrtc.ICEServer, logger *slog.Logger) endpoint.TransportFactory {
	if api == nil {
		api = webrtc.NewAPI()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(_ context.Context, stream endpoint.Stream, cb endpoint.TransportCallbacks) (endpoint.PeerTransport, error) {
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		t := &Transport{pc: pc, log: logger}
		if err := t.attach(stream); err != nil {
			_ = pc.Close()
			return nil, err
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			// nil marks the end of gathering.
			if c == nil || cb.OnICECandidate == nil {
				return
			}
			cb.OnICECandidate(CandidateFromPion(c.ToJSON()))
		})
		pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			t.log.Debug("remote track", "kind", remote.Kind().String(), "codec", remote.Codec().MimeType)
			if cb.OnTrack != nil {
				cb.OnTrack()
			}
			for {
				if _, _, err := remote.ReadRTP(); err != nil {
					return
				}
			}
		})
		pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			t.log.Debug("peer connection state", "state", s.String())
		})
		return t, nil
	}
}

func (t *Transport) attach(stream endpoint.Stream) error {
	src, ok := stream.(TrackSource)
	if !ok || len(src.Tracks()) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := t.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
		return nil
	}

	for _, track := range src.Tracks() {
		sender, err := t.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", track.ID(), err)
		}
		// Incoming RTCP must be read for interceptors to run.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (t *Transport) CreateOffer(ctx context.Context) (endpoint.Description, error) {
	if err := ctx.Err(); err != nil {
		return endpoint.Description{}, err
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return endpoint.Description{}, err
	}
	return DescriptionFromPion(offer), nil
}

func (t *Transport) CreateAnswer(ctx context.Context) (endpoint.Description, error) {
	if err := ctx.Err(); err != nil {
		return endpoint.Description{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return endpoint.Description{}, err
	}
	return DescriptionFromPion(answer), nil
}

func (t *Transport) SetLocalDescription(d endpoint.Description) error {
	desc, err := DescriptionToPion(d)
	if err != nil {
		return err
	}
	return t.pc.SetLocalDescription(desc)
}

func (t *Transport) SetRemoteDescription(d endpoint.Description) error {
	desc, err := DescriptionToPion(d)
	if err != nil {
		return err
	}
	return t.pc.SetRemoteDescription(desc)
}

func (t *Transport) AddICECandidate(c endpoint.Candidate) error {
	return t.pc.AddICECandidate(CandidateToPion(c))
}

func (t *Transport) Close() error {
	return t.pc.Close()
}

func DescriptionFromPion(desc webrtc.SessionDescription) endpoint.Description {
	return endpoint.Description{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

// DescriptionToPion accepts only offers and answers; the endpoint never
// negotiates with pranswer or rollback.
func DescriptionToPion(d endpoint.Description) (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func CandidateFromPion(init webrtc.ICECandidateInit) endpoint.Candidate {
	return endpoint.Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func CandidateToPion(c endpoint.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
