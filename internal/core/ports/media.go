package ports

import (
	"context"

	"debatemesh/internal/core/domain"
	"debatemesh/pkg/emitter"

	"github.com/pion/webrtc/v3"
)

// LocalMedia owns the local capture device. At most one instance may be
// active per client; callers guard with Active before Start.
type LocalMedia interface {
	// Start acquires the device and begins producing the local track pair.
	// Fails with domain.ErrMediaAlreadyActive if already started; the caller
	// surfaces acquisition failures and must not mark the camera on.
	Start(ctx context.Context) error

	// Stop releases the device and all local tracks. Idempotent.
	Stop()

	// Toggle flips the enabled flag of the local tracks of the given kind
	// without releasing the device. Returns the new enabled state.
	Toggle(kind domain.MediaKind) bool

	Active() bool

	// AudioTrack and VideoTrack return nil until Start has succeeded. The
	// returned tracks are shared by reference across every peer link; only
	// the camera-off path may stop them, via Stop.
	AudioTrack() webrtc.TrackLocal
	VideoTrack() webrtc.TrackLocal

	Events() *emitter.Emitter[domain.MediaEvent]
}
