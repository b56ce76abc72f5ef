// Package media implements the local capture device as a pair of static RTP
// tracks fed by a packet pump. Every peer link shares the same track pair by
// reference.
package media

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/pkg/emitter"
	"debatemesh/pkg/utils"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = time.Second / 30

	audioClockRate = 48000
	videoClockRate = 90000

	opusPayloadType = 111
	vp8PayloadType  = 96
)

// Device produces one Opus audio track and one VP8 video track backed by a
// frame source. Start is exclusive; Stop tears down the pump and both tracks.
type Device struct {
	source FrameSource
	events *emitter.Emitter[domain.MediaEvent]
	logger *zap.SugaredLogger

	mu           sync.Mutex
	active       bool
	audioTrack   *webrtc.TrackLocalStaticRTP
	videoTrack   *webrtc.TrackLocalStaticRTP
	audioEnabled bool
	videoEnabled bool
	cancelPump   context.CancelFunc
	pumpDone     chan struct{}
}

// FrameSource supplies encoded media frames for the pump. NextAudioFrame and
// NextVideoFrame are called from the pump goroutine only.
type FrameSource interface {
	NextAudioFrame() []byte
	NextVideoFrame() []byte
}

var _ ports.LocalMedia = (*Device)(nil)

// NewDevice creates an inactive device over the given frame source.
func NewDevice(source FrameSource, logger *zap.SugaredLogger) *Device {
	return &Device{
		source: source,
		events: emitter.New[domain.MediaEvent](),
		logger: logger,
	}
}

// Start acquires the device, creates both local tracks and launches the pump.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return domain.ErrMediaAlreadyActive
	}

	streamID := utils.GenerateID("stream")

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return err
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate},
		"video", streamID,
	)
	if err != nil {
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	d.audioTrack = audioTrack
	d.videoTrack = videoTrack
	d.audioEnabled = true
	d.videoEnabled = true
	d.active = true
	d.cancelPump = cancel
	d.pumpDone = make(chan struct{})

	go d.pump(pumpCtx, d.pumpDone, audioTrack, videoTrack)

	d.logger.Infow("local media started", "stream_id", streamID)
	d.events.Emit(domain.MediaEvent{Kind: domain.MediaEventStarted})
	return nil
}

// Stop releases the device. Safe to call when already stopped.
func (d *Device) Stop() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	cancel := d.cancelPump
	done := d.pumpDone
	d.audioTrack = nil
	d.videoTrack = nil
	d.cancelPump = nil
	d.pumpDone = nil
	d.mu.Unlock()

	cancel()
	<-done

	d.logger.Infow("local media stopped")
	d.events.Emit(domain.MediaEvent{Kind: domain.MediaEventStopped})
}

// Toggle flips the enabled flag for one kind and returns the new state. The
// pump keeps running; disabled kinds simply stop emitting packets.
func (d *Device) Toggle(kind domain.MediaKind) bool {
	d.mu.Lock()
	var enabled bool
	switch kind {
	case domain.MediaAudio:
		d.audioEnabled = !d.audioEnabled
		enabled = d.audioEnabled
	case domain.MediaVideo:
		d.videoEnabled = !d.videoEnabled
		enabled = d.videoEnabled
	}
	d.mu.Unlock()

	d.events.Emit(domain.MediaEvent{Kind: domain.MediaEventToggled, Toggled: kind, Enabled: enabled})
	return enabled
}

func (d *Device) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Device) AudioTrack() webrtc.TrackLocal {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.audioTrack == nil {
		return nil
	}
	return d.audioTrack
}

func (d *Device) VideoTrack() webrtc.TrackLocal {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.videoTrack == nil {
		return nil
	}
	return d.videoTrack
}

func (d *Device) Events() *emitter.Emitter[domain.MediaEvent] {
	return d.events
}

// pump writes RTP packets to both tracks on their frame cadence until the
// context is cancelled. Write errors on a track without subscribed senders
// are expected and ignored.
func (d *Device) pump(ctx context.Context, done chan struct{}, audio, video *webrtc.TrackLocalStaticRTP) {
	defer close(done)

	audioTicker := time.NewTicker(audioFrameInterval)
	videoTicker := time.NewTicker(videoFrameInterval)
	defer audioTicker.Stop()
	defer videoTicker.Stop()

	audioSeq := uint16(rand.Intn(1 << 16))
	videoSeq := uint16(rand.Intn(1 << 16))
	audioTS := rand.Uint32()
	videoTS := rand.Uint32()
	audioSSRC := rand.Uint32()
	videoSSRC := rand.Uint32()

	for {
		select {
		case <-ctx.Done():
			return

		case <-audioTicker.C:
			if !d.kindEnabled(domain.MediaAudio) {
				continue
			}
			audioSeq++
			audioTS += audioClockRate / 50 // 20ms of 48kHz samples
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    opusPayloadType,
					SequenceNumber: audioSeq,
					Timestamp:      audioTS,
					SSRC:           audioSSRC,
				},
				Payload: d.source.NextAudioFrame(),
			}
			if err := audio.WriteRTP(pkt); err != nil {
				d.logger.Debugw("audio write failed", "error", err)
			}

		case <-videoTicker.C:
			if !d.kindEnabled(domain.MediaVideo) {
				continue
			}
			videoSeq++
			videoTS += videoClockRate / 30
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    vp8PayloadType,
					SequenceNumber: videoSeq,
					Timestamp:      videoTS,
					SSRC:           videoSSRC,
					Marker:         true,
				},
				Payload: d.source.NextVideoFrame(),
			}
			if err := video.WriteRTP(pkt); err != nil {
				d.logger.Debugw("video write failed", "error", err)
			}
		}
	}
}

func (d *Device) kindEnabled(kind domain.MediaKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if kind == domain.MediaAudio {
		return d.audioEnabled
	}
	return d.videoEnabled
}

// SilenceSource is the default frame source: Opus silence frames and minimal
// VP8 interframes. Useful for soak tests and environments without capture
// hardware.
type SilenceSource struct{}

func (SilenceSource) NextAudioFrame() []byte {
	// Opus silence frame (TOC byte + DTX payload).
	return []byte{0xf8, 0xff, 0xfe}
}

func (SilenceSource) NextVideoFrame() []byte {
	// Minimal VP8 payload descriptor followed by an empty interframe header.
	return []byte{0x10, 0x01, 0x00, 0x9d, 0x01, 0x2a}
}
