package services

import (
	"context"
	"sync"
	"time"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// peerLink is the per-remote-participant negotiation record: connection
// handle, politeness, glare guards, candidate buffer and sender handles,
// collapsed into one struct so teardown cannot miss a piece of state.
type peerLink struct {
	remote       domain.ParticipantID
	pc           ports.PeerConnection
	polite       bool
	state        domain.LinkState
	makingOffer  bool
	ignoreOffer  bool
	pending      []webrtc.ICECandidateInit
	audio        ports.TrackSender
	video        ports.TrackSender
	remoteTracks []domain.RemoteTrack
	createdAt    time.Time
	stableOnce   bool
	cancelEvents func()
}

// NegotiatorOptions tunes the mesh negotiator.
type NegotiatorOptions struct {
	// RecheckInterval enables periodic link repair when > 0.
	RecheckInterval time.Duration
}

// Negotiator maintains exactly one peerLink per present remote participant
// and drives the offer/answer/ICE exchange using perfect negotiation. All
// state transitions run under one mutex; correctness under racing offers
// from both sides rests on the per-link polite/making-offer/ignore-offer
// guards and the candidate buffer-then-flush rule.
type Negotiator struct {
	mu     sync.Mutex
	local  domain.Participant
	links  map[domain.ParticipantID]*peerLink
	roster map[domain.ParticipantID]domain.Participant

	channel  ports.SignalingChannel
	presence ports.PresenceTracker
	media    ports.LocalMedia
	factory  ports.PeerFactory
	policy   *CameraPolicy
	metrics  ports.MeshMetrics

	cameraOn bool
	micOn    bool
	closed   bool

	opts        NegotiatorOptions
	cancelSubs  []func()
	stopRecheck chan struct{}

	logger *zap.SugaredLogger
}

func NewNegotiator(
	local domain.Participant,
	channel ports.SignalingChannel,
	presence ports.PresenceTracker,
	media ports.LocalMedia,
	factory ports.PeerFactory,
	policy *CameraPolicy,
	metrics ports.MeshMetrics,
	opts NegotiatorOptions,
	logger *zap.SugaredLogger,
) *Negotiator {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Negotiator{
		local:       local,
		links:       make(map[domain.ParticipantID]*peerLink),
		roster:      make(map[domain.ParticipantID]domain.Participant),
		channel:     channel,
		presence:    presence,
		media:       media,
		factory:     factory,
		policy:      policy,
		metrics:     metrics,
		micOn:       true,
		opts:        opts,
		stopRecheck: make(chan struct{}),
		logger:      logger,
	}
}

// Start announces presence, wires the signaling and roster subscriptions and
// performs the initial roster sync.
func (n *Negotiator) Start(ctx context.Context) error {
	cancelSignal := n.channel.Subscribe(n.handleSignal)
	cancelRoster := n.presence.Subscribe(n.syncRoster)
	n.mu.Lock()
	n.cancelSubs = append(n.cancelSubs, cancelSignal, cancelRoster)
	n.mu.Unlock()

	if err := n.presence.Track(ctx, n.local); err != nil {
		return err
	}

	roster, err := n.presence.Snapshot(ctx)
	if err != nil {
		return err
	}
	n.syncRoster(roster)

	if n.opts.RecheckInterval > 0 {
		go n.recheckLoop()
	}
	return nil
}

func (n *Negotiator) recheckLoop() {
	ticker := time.NewTicker(n.opts.RecheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := n.Recheck(context.Background()); err != nil {
				n.logger.Warnw("periodic recheck failed", "error", err)
			}
		case <-n.stopRecheck:
			return
		}
	}
}

// handleSignal dispatches one inbound negotiation message. Messages from
// self and point-to-point messages addressed elsewhere are dropped; malformed
// messages are logged and ignored, never retried.
func (n *Negotiator) handleSignal(msg domain.SignalMessage) {
	if msg.From == n.local.ID {
		return
	}
	if msg.To != "" && msg.To != n.local.ID {
		return
	}

	ctx, span := tracing.StartSpan(context.Background(), "mesh.handle_signal")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		tracing.ParticipantIDKey.String(string(msg.From)),
		tracing.SignalKindKey.String(string(msg.Kind)),
	)

	switch msg.Kind {
	case domain.SignalVideoOffer:
		if msg.SDP == nil {
			n.logger.Warnw("dropping offer without SDP", "from", msg.From)
			return
		}
		n.handleOffer(ctx, msg.From, *msg.SDP)
	case domain.SignalVideoAnswer:
		if msg.SDP == nil {
			n.logger.Warnw("dropping answer without SDP", "from", msg.From)
			return
		}
		n.handleAnswer(msg.From, *msg.SDP)
	case domain.SignalICECandidate:
		if msg.Candidate == nil {
			n.logger.Warnw("dropping ICE message without candidate", "from", msg.From)
			return
		}
		n.handleCandidate(msg.From, *msg.Candidate)
	case domain.SignalCameraOff:
		n.handleRemoteCameraOff(msg.From)
	default:
		n.logger.Warnw("unknown signal kind", "kind", msg.Kind, "from", msg.From)
	}
}

// handleOffer implements the receiving half of perfect negotiation. A link
// may be created from an offer alone (unlike answers and candidates).
func (n *Negotiator) handleOffer(ctx context.Context, from domain.ParticipantID, offer webrtc.SessionDescription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	link, ok := n.links[from]
	if !ok {
		var err error
		link, err = n.createLinkLocked(from)
		if err != nil {
			n.logger.Errorw("failed to create link for inbound offer", "remote", from, "error", err)
			return
		}
		if n.cameraOn {
			n.attachTracksLocked(link)
		}
	}

	collision := link.makingOffer || link.pc.SignalingState() != webrtc.SignalingStateStable
	if collision {
		n.metrics.GlareDetected()
		if !link.polite {
			// Impolite side drops the remote offer entirely; its own offer wins.
			link.ignoreOffer = true
			n.metrics.OfferIgnored()
			n.logger.Infow("glare: ignoring remote offer", "remote", from)
			return
		}
		// Polite side rolls back its own pending offer first.
		if err := link.pc.Rollback(); err != nil {
			n.logger.Warnw("rollback failed", "remote", from, "error", err)
			return
		}
		n.logger.Infow("glare: rolled back local offer", "remote", from)
	}
	link.ignoreOffer = false

	if err := link.pc.SetRemoteDescription(offer); err != nil {
		n.logger.Warnw("failed to apply remote offer", "remote", from, "error", err)
		return
	}
	n.flushCandidatesLocked(link)

	answer, err := link.pc.CreateAnswer()
	if err != nil {
		n.logger.Warnw("failed to create answer", "remote", from, "error", err)
		return
	}
	if err := link.pc.SetLocalDescription(answer); err != nil {
		n.logger.Warnw("failed to set local answer", "remote", from, "error", err)
		return
	}
	n.markStableLocked(link)

	if err := n.channel.SendTo(ctx, from, domain.SignalMessage{
		Kind: domain.SignalVideoAnswer,
		From: n.local.ID,
		To:   from,
		SDP:  &answer,
	}); err != nil {
		n.logger.Warnw("failed to send answer", "remote", from, "error", err)
		return
	}
	n.metrics.AnswerSent()
}

// handleAnswer applies a remote answer unless the link is already stable
// (stale or duplicate answers are ignored). No link is created from an
// answer alone.
func (n *Negotiator) handleAnswer(from domain.ParticipantID, answer webrtc.SessionDescription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	link, ok := n.links[from]
	if !ok {
		n.logger.Debugw("dropping answer for unknown link", "remote", from)
		return
	}
	if link.pc.SignalingState() == webrtc.SignalingStateStable {
		n.logger.Debugw("ignoring answer: link already stable", "remote", from)
		return
	}
	if err := link.pc.SetRemoteDescription(answer); err != nil {
		n.logger.Warnw("failed to apply remote answer", "remote", from, "error", err)
		return
	}
	n.flushCandidatesLocked(link)
	n.markStableLocked(link)
}

// handleCandidate applies a candidate once the remote description exists,
// otherwise buffers it in arrival order for the flush that follows the
// description. No link is created from a candidate alone.
func (n *Negotiator) handleCandidate(from domain.ParticipantID, candidate webrtc.ICECandidateInit) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	link, ok := n.links[from]
	if !ok {
		n.logger.Debugw("dropping candidate for unknown link", "remote", from)
		return
	}
	if link.pc.HasRemoteDescription() {
		if err := link.pc.AddICECandidate(candidate); err != nil {
			n.logger.Warnw("failed to add ICE candidate", "remote", from, "error", err)
		}
		return
	}
	link.pending = append(link.pending, candidate)
	n.metrics.CandidateBuffered()
}

// flushCandidatesLocked applies every buffered candidate in receipt order,
// exactly once, immediately after a remote description was applied.
func (n *Negotiator) flushCandidatesLocked(link *peerLink) {
	if len(link.pending) == 0 {
		return
	}
	for _, candidate := range link.pending {
		if err := link.pc.AddICECandidate(candidate); err != nil {
			n.logger.Warnw("failed to flush ICE candidate", "remote", link.remote, "error", err)
		}
	}
	n.metrics.CandidatesFlushed(len(link.pending))
	link.pending = nil
}

func (n *Negotiator) markStableLocked(link *peerLink) {
	link.state = domain.LinkStable
	if !link.stableOnce {
		link.stableOnce = true
		n.metrics.LinkStable(time.Since(link.createdAt))
	}
}

// handleRemoteCameraOff releases the one link belonging to the remote that
// turned its camera off.
func (n *Negotiator) handleRemoteCameraOff(from domain.ParticipantID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.links[from]; !ok {
		return
	}
	n.closeLinkLocked(from)
	n.logger.Infow("closed link after remote camera-off", "remote", from)
}

// syncRoster diffs the presence roster against the link table: links are
// created for newly observed participants and torn down for departed ones,
// regardless of camera state.
func (n *Negotiator) syncRoster(roster []domain.Participant) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	present := make(map[domain.ParticipantID]bool, len(roster))
	n.roster = make(map[domain.ParticipantID]domain.Participant, len(roster))
	for _, p := range roster {
		n.roster[p.ID] = p
		present[p.ID] = true
		if p.ID == n.local.ID {
			continue
		}
		if _, ok := n.links[p.ID]; ok {
			continue
		}
		link, err := n.createLinkLocked(p.ID)
		if err != nil {
			n.logger.Errorw("failed to create link for participant", "remote", p.ID, "error", err)
			continue
		}
		if n.cameraOn {
			n.attachTracksLocked(link)
			n.sendOfferLocked(link)
		}
	}

	for remote := range n.links {
		if !present[remote] {
			n.closeLinkLocked(remote)
			n.logger.Infow("closed link after participant left", "remote", remote)
		}
	}
}

// createLinkLocked builds the per-remote negotiation record. Politeness is
// fixed for the life of the link: the lexicographically larger id is polite.
func (n *Negotiator) createLinkLocked(remote domain.ParticipantID) (*peerLink, error) {
	pc, err := n.factory(remote)
	if err != nil {
		return nil, err
	}
	link := &peerLink{
		remote:    remote,
		pc:        pc,
		polite:    domain.Polite(n.local.ID, remote),
		state:     domain.LinkIdle,
		createdAt: time.Now(),
	}
	link.cancelEvents = pc.Events().Subscribe(func(ev domain.PeerEvent) {
		n.handlePeerEvent(remote, link, ev)
	})
	n.links[remote] = link
	n.metrics.LinkOpened()
	n.logger.Infow("created peer link", "remote", remote, "polite", link.polite)
	return link, nil
}

// handlePeerEvent reacts to connection-level events. Results of in-flight
// operations completing after teardown are no-ops: the link must still be
// the live entry in the table.
func (n *Negotiator) handlePeerEvent(remote domain.ParticipantID, link *peerLink, ev domain.PeerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if current, ok := n.links[remote]; !ok || current != link {
		return
	}

	switch ev.Kind {
	case domain.PeerEventCandidate:
		if ev.Candidate == nil {
			return
		}
		if err := n.channel.SendTo(context.Background(), remote, domain.SignalMessage{
			Kind:      domain.SignalICECandidate,
			From:      n.local.ID,
			To:        remote,
			Candidate: ev.Candidate,
		}); err != nil {
			n.logger.Warnw("failed to send ICE candidate", "remote", remote, "error", err)
		}
	case domain.PeerEventRemoteTrack:
		if ev.Track == nil {
			return
		}
		link.remoteTracks = append(link.remoteTracks, *ev.Track)
		n.logger.Infow("remote track received",
			"remote", remote,
			"kind", ev.Track.Kind,
			"track_id", ev.Track.ID,
		)
	case domain.PeerEventICEStateChange:
		n.logger.Infow("link ICE state changed", "remote", remote, "ice_state", ev.ICEState)
		if ev.ICEState == webrtc.ICEConnectionStateFailed {
			// Drop the dead link; the next recheck (or roster change) rebuilds it.
			n.closeLinkLocked(remote)
		}
	}
}

// attachTracksLocked attaches the shared local capture tracks to one link,
// audio sender before video sender. Existing senders get the new track via
// replace instead of a second add.
func (n *Negotiator) attachTracksLocked(link *peerLink) {
	if n.media == nil || !n.media.Active() {
		return
	}

	if audio := n.media.AudioTrack(); audio != nil {
		if link.audio != nil {
			if err := link.audio.ReplaceTrack(audio); err != nil {
				n.logger.Warnw("failed to replace audio track", "remote", link.remote, "error", err)
			}
		} else if sender, err := link.pc.AddTrack(audio); err != nil {
			n.logger.Warnw("failed to add audio track", "remote", link.remote, "error", err)
		} else {
			link.audio = sender
		}
	}
	if video := n.media.VideoTrack(); video != nil {
		if link.video != nil {
			if err := link.video.ReplaceTrack(video); err != nil {
				n.logger.Warnw("failed to replace video track", "remote", link.remote, "error", err)
			}
		} else if sender, err := link.pc.AddTrack(video); err != nil {
			n.logger.Warnw("failed to add video track", "remote", link.remote, "error", err)
		} else {
			link.video = sender
		}
	}
}

// sendOfferLocked runs one renegotiation attempt. The making-offer guard is
// held for the duration; the offer only goes out when the connection is in a
// stable signaling state.
func (n *Negotiator) sendOfferLocked(link *peerLink) {
	link.makingOffer = true
	defer func() { link.makingOffer = false }()

	offer, err := link.pc.CreateOffer()
	if err != nil {
		n.logger.Warnw("failed to create offer", "remote", link.remote, "error", err)
		return
	}
	if link.pc.SignalingState() != webrtc.SignalingStateStable {
		n.logger.Debugw("skipping offer: negotiation in progress", "remote", link.remote)
		return
	}
	if err := link.pc.SetLocalDescription(offer); err != nil {
		n.logger.Warnw("failed to set local offer", "remote", link.remote, "error", err)
		return
	}
	link.state = domain.LinkHaveLocalOffer

	if err := n.channel.SendTo(context.Background(), link.remote, domain.SignalMessage{
		Kind: domain.SignalVideoOffer,
		From: n.local.ID,
		To:   link.remote,
		SDP:  &offer,
	}); err != nil {
		n.logger.Warnw("failed to send offer", "remote", link.remote, "error", err)
		return
	}
	n.metrics.OfferSent()
}

// closeLinkLocked tears down one link and every piece of its state.
func (n *Negotiator) closeLinkLocked(remote domain.ParticipantID) {
	link, ok := n.links[remote]
	if !ok {
		return
	}
	delete(n.links, remote)
	link.state = domain.LinkClosed
	if link.cancelEvents != nil {
		link.cancelEvents()
	}
	if err := link.pc.Close(); err != nil {
		n.logger.Warnw("error closing peer connection", "remote", remote, "error", err)
	}
	n.metrics.LinkClosed()
}

// ToggleCamera flips the local camera. Turning on checks the role/limit
// policy before acquiring media, then attaches tracks and renegotiates every
// link. Turning off tears down the entire mesh, clears remote streams and
// broadcasts camera-off exactly once.
func (n *Negotiator) ToggleCamera(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return domain.ErrChannelClosed
	}

	if !n.cameraOn {
		roster := n.rosterSliceLocked()
		if err := n.policy.CanEnable(n.local, roster); err != nil {
			return err
		}
		if err := n.media.Start(ctx); err != nil {
			// Acquisition failure: camera-on state must not be set.
			return err
		}
		n.cameraOn = true
		n.micOn = true
		n.local.CameraOn = true
		for _, link := range n.links {
			n.attachTracksLocked(link)
			n.sendOfferLocked(link)
		}
	} else {
		n.cameraOn = false
		n.local.CameraOn = false
		n.media.Stop()
		for remote := range n.links {
			n.closeLinkLocked(remote)
		}
		if err := n.channel.Broadcast(ctx, domain.SignalMessage{
			Kind: domain.SignalCameraOff,
			From: n.local.ID,
		}); err != nil {
			n.logger.Warnw("failed to broadcast camera-off", "error", err)
		}
		n.logger.Infow("closed all peer links after local camera-off")
	}

	if err := n.presence.Track(ctx, n.local); err != nil {
		n.logger.Warnw("failed to update presence after camera toggle", "error", err)
	}
	return nil
}

// ToggleMic flips local audio enablement without renegotiation and returns
// the new state.
func (n *Negotiator) ToggleMic(ctx context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.media == nil || !n.media.Active() {
		return false, domain.ErrMediaNotActive
	}
	n.micOn = n.media.Toggle(domain.MediaAudio)
	return n.micOn, nil
}

// Recheck is the manual repair path: missing links are recreated, links in a
// stable signaling state get a fresh offer (lost-message recovery), and
// links mid-negotiation are skipped for a future recheck.
func (n *Negotiator) Recheck(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "mesh.recheck")
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return domain.ErrChannelClosed
	}

	for id := range n.roster {
		if id == n.local.ID {
			continue
		}
		link, ok := n.links[id]
		if !ok {
			var err error
			link, err = n.createLinkLocked(id)
			if err != nil {
				n.logger.Errorw("recheck: failed to recreate link", "remote", id, "error", err)
				continue
			}
			if n.cameraOn {
				n.attachTracksLocked(link)
			}
		}
		if link.pc.SignalingState() == webrtc.SignalingStateStable {
			n.sendOfferLocked(link)
		} else {
			n.logger.Infow("recheck: skipping link mid-negotiation",
				"remote", id,
				"signaling_state", link.pc.SignalingState(),
			)
		}
	}
	n.metrics.RecheckPerformed()
	return nil
}

// Links returns a snapshot of the link table.
func (n *Negotiator) Links() []domain.LinkInfo {
	n.mu.Lock()
	defer n.mu.Unlock()

	infos := make([]domain.LinkInfo, 0, len(n.links))
	for _, link := range n.links {
		infos = append(infos, domain.LinkInfo{
			Remote:             link.remote,
			Polite:             link.polite,
			State:              link.state,
			MakingOffer:        link.makingOffer,
			IgnoreOffer:        link.ignoreOffer,
			BufferedCandidates: len(link.pending),
			RemoteTracks:       len(link.remoteTracks),
			CreatedAt:          link.createdAt,
		})
	}
	return infos
}

// Roster returns the current known roster.
func (n *Negotiator) Roster() []domain.Participant {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rosterSliceLocked()
}

func (n *Negotiator) rosterSliceLocked() []domain.Participant {
	roster := make([]domain.Participant, 0, len(n.roster))
	for _, p := range n.roster {
		roster = append(roster, p)
	}
	return roster
}

// CameraOn reports local camera state.
func (n *Negotiator) CameraOn() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cameraOn
}

// Close tears down every link, releases local media, withdraws presence and
// detaches all subscriptions.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.stopRecheck)
	for remote := range n.links {
		n.closeLinkLocked(remote)
	}
	if n.media != nil {
		n.media.Stop()
	}
	cancels := n.cancelSubs
	n.cancelSubs = nil
	n.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if err := n.presence.Leave(context.Background()); err != nil {
		n.logger.Warnw("failed to withdraw presence", "error", err)
	}
	return nil
}

// nopMetrics is used when no collector is wired (tests, library embedding).
type nopMetrics struct{}

func (nopMetrics) LinkOpened()                  {}
func (nopMetrics) LinkClosed()                  {}
func (nopMetrics) OfferSent()                   {}
func (nopMetrics) AnswerSent()                  {}
func (nopMetrics) GlareDetected()               {}
func (nopMetrics) OfferIgnored()                {}
func (nopMetrics) CandidateBuffered()           {}
func (nopMetrics) CandidatesFlushed(int)        {}
func (nopMetrics) RecheckPerformed()            {}
func (nopMetrics) LinkStable(time.Duration)     {}
