package webrtcpeer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/endpoint"
)

const (
	audioFrameDuration = 20 * time.Millisecond
	videoFrameDuration = 33 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// videoFiller is sent as every VP8 sample. It keeps RTP flowing so the remote
// side sees the track; it is not a decodable picture.
var videoFiller = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}

// TrackSource is implemented by streams that carry pion tracks. Transports
// built by NewTransportFactory add these tracks to the PeerConnection.
type TrackSource interface {
	Tracks() []webrtc.TrackLocal
}

// SyntheticSource produces an Opus audio track of silence and a VP8 video
// track of filler frames. It stands in for a camera and microphone on
// headless peers.
type SyntheticSource struct {
	// DisableVideo produces an audio-only stream.
	DisableVideo bool
}

var _ endpoint.MediaSource = (*SyntheticSource)(nil)

func (s *SyntheticSource) Acquire(ctx context.Context) (endpoint.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID := "aero-" + uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	st := &SyntheticStream{tracks: []webrtc.TrackLocal{audio}, stop: make(chan struct{})}
	st.start(audio, opusSilence, audioFrameDuration)

	if !s.DisableVideo {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("video track: %w", err)
		}
		st.tracks = append(st.tracks, video)
		st.start(video, videoFiller, videoFrameDuration)
	}
	return st, nil
}

// SyntheticStream is the stream returned by SyntheticSource.
type SyntheticStream struct {
	tracks []webrtc.TrackLocal

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (s *SyntheticStream) Tracks() []webrtc.TrackLocal { return s.tracks }

// Close stops sample generation and waits for the writers to exit.
func (s *SyntheticStream) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

func (s *SyntheticStream) start(track *webrtc.TrackLocalStaticSample, payload []byte, every time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
			// Writes before the track is bound to a connection are no-ops.
			if err := track.WriteSample(media.Sample{Data: payload, Duration: every}); err != nil {
				return
			}
		}
	}()
}
