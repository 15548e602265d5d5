// Package webrtc implements an RTVI transport over a pion PeerConnection.
// RTVI envelopes travel on a data channel labelled "rtvi-ai"; bot audio
// and video arrive as remote tracks. The SDP exchange uses the runner's
// api/offer endpoint with vanilla ICE (the offer is posted once gathering
// completes).
package webrtc

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"voice-session-client/internal/models"
	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/service/rtvi"
)

const (
	dataChannelLabel = rtvi.Label
	iceGatherTimeout = 10 * time.Second
	silenceInterval  = 20 * time.Millisecond
)

// opus DTX comfort-noise frame
var opusSilence = []byte{0xf8, 0xff, 0xfe}

var (
	botParticipant   = models.Participant{ID: "bot", Name: "bot"}
	localParticipant = models.Participant{ID: "local", Name: "local", Local: true}
)

// Option customises the transport.
type Option func(*Transport)

// WithSettingEngine replaces the pion setting engine, e.g. to include
// loopback candidates.
func WithSettingEngine(se webrtc.SettingEngine) Option {
	return func(t *Transport) {
		t.settings = se
	}
}

// Transport implements rtvi.Transport over WebRTC.
type Transport struct {
	iceServers []webrtc.ICEServer
	settings   webrtc.SettingEngine
	logger     zerolog.Logger

	opts rtvi.Options
	emit rtvi.Emitter

	mu         sync.Mutex
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	localAudio *webrtc.TrackLocalStaticSample
	stop       chan struct{}
	finishOnce sync.Once
	closed     bool
}

// New creates a WebRTC transport. iceServers are STUN/TURN URLs.
func New(iceServers []string, options ...Option) *Transport {
	t := &Transport{
		logger: logging.WithComponent("transport-webrtc"),
		stop:   make(chan struct{}),
	}
	if len(iceServers) > 0 {
		t.iceServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *Transport) Initialize(opts rtvi.Options, emit rtvi.Emitter) {
	t.opts = opts
	t.emit = emit
}

// InitDevices prepares the outgoing Opus track when the microphone is
// enabled. The track carries comfort noise once connected.
func (t *Transport) InitDevices(ctx context.Context) error {
	t.state(rtvi.StateInitializing)
	if t.opts.EnableCam {
		t.logger.Warn().Msg("camera capture is not available; ignoring enableCam")
	}
	if t.opts.EnableMic {
		// the track carries silence frames, not captured audio
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", "voice-session-client",
		)
		if err != nil {
			t.state(rtvi.StateError)
			return errors.Wrap(err, "creating microphone track")
		}
		t.mu.Lock()
		t.localAudio = track
		t.mu.Unlock()
		t.emit(rtvi.TrackEvent{
			Started:     true,
			Track:       rtvi.Track{ID: track.ID(), Kind: "audio"},
			Participant: localParticipant,
		})
	}
	t.state(rtvi.StateInitialized)
	return nil
}

// Connect negotiates the peer connection and returns once the RTVI data
// channel is open.
func (t *Transport) Connect(ctx context.Context) error {
	t.state(rtvi.StateConnecting)
	pc, dc, err := t.newPeerConnection()
	if err != nil {
		t.state(rtvi.StateError)
		return err
	}

	t.mu.Lock()
	t.pc = pc
	t.dc = dc
	t.mu.Unlock()

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	dc.OnMessage(t.handleMessage)
	pc.OnTrack(t.handleTrack)
	pc.OnConnectionStateChange(t.handleConnectionState)

	if err := t.negotiate(ctx, pc); err != nil {
		t.state(rtvi.StateError)
		_ = pc.Close()
		return err
	}

	select {
	case <-opened:
	case <-ctx.Done():
		t.state(rtvi.StateError)
		_ = pc.Close()
		return errors.Wrap(ctx.Err(), "waiting for data channel")
	}

	t.logger.Info().Msg("rtvi data channel open")
	t.state(rtvi.StateConnected)
	t.emit(rtvi.ConnectedEvent{})
	t.emit(rtvi.ParticipantEvent{Joined: true, Participant: botParticipant})

	if t.localAudio != nil {
		go t.sendSilence(t.localAudio)
	}
	return nil
}

func (t *Transport) newPeerConnection() (*webrtc.PeerConnection, *webrtc.DataChannel, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, nil, errors.Wrap(err, "registering codecs")
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(t.settings))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers})
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating peer connection")
	}

	if t.localAudio != nil {
		if _, err := pc.AddTrack(t.localAudio); err != nil {
			_ = pc.Close()
			return nil, nil, errors.Wrap(err, "adding microphone track")
		}
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, nil, errors.Wrap(err, "adding audio transceiver")
		}
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, nil, errors.Wrap(err, "adding video transceiver")
	}

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, nil, errors.Wrap(err, "creating data channel")
	}
	return pc, dc, nil
}

func (t *Transport) negotiate(ctx context.Context, pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return errors.Wrap(err, "creating offer")
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return errors.Wrap(err, "setting local description")
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return errors.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	t.state(rtvi.StateAuthenticating)
	signaler := rtvi.NewSignaler(t.opts.BaseURL, t.opts.HTTPClient)
	answer, err := signaler.Offer(ctx, rtvi.SessionDescription{
		SDP:  pc.LocalDescription().SDP,
		Type: webrtc.SDPTypeOffer.String(),
	})
	if err != nil {
		return errors.Wrap(err, "exchanging offer")
	}
	t.logger.Debug().Str("pc_id", answer.PCID).Msg("received answer")

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return errors.Wrap(err, "setting remote description")
	}
	return nil
}

// SendMessage writes one envelope to the data channel as text.
func (t *Transport) SendMessage(msg rtvi.Message) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("data channel not open")
	}

	data, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}
	if err := dc.SendText(string(data)); err != nil {
		return errors.Wrapf(err, "sending %s", msg.Type)
	}
	return nil
}

// Disconnect closes the peer connection. Idempotent.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pc := t.pc
	close(t.stop)
	t.mu.Unlock()

	if pc == nil {
		return nil
	}
	t.state(rtvi.StateDisconnecting)
	err := pc.Close()
	t.finish("client disconnect")
	if err != nil {
		return errors.Wrap(err, "closing peer connection")
	}
	return nil
}

func (t *Transport) handleMessage(msg webrtc.DataChannelMessage) {
	ev, err := rtvi.DecodeEvent(msg.Data)
	if err != nil {
		t.logger.Debug().Err(err).Msg("ignoring message")
		return
	}
	t.emit(ev)
}

func (t *Transport) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	t.logger.Info().
		Str("track", track.ID()).
		Str("kind", track.Kind().String()).
		Str("codec", track.Codec().MimeType).
		Msg("remote track started")
	t.emit(rtvi.TrackEvent{
		Started: true,
		Track: rtvi.Track{
			ID:     track.ID(),
			Kind:   track.Kind().String(),
			Source: remoteTrack{track: track},
		},
		Participant: botParticipant,
	})
}

func (t *Transport) handleConnectionState(state webrtc.PeerConnectionState) {
	t.logger.Debug().Str("state", state.String()).Msg("peer connection state")
	switch state {
	case webrtc.PeerConnectionStateFailed:
		t.finish("peer connection failed")
	case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
		t.finish("peer connection " + state.String())
	}
}

// finish reports the end of the session exactly once.
func (t *Transport) finish(reason string) {
	t.finishOnce.Do(func() {
		t.emit(rtvi.ParticipantEvent{Joined: false, Participant: botParticipant})
		t.state(rtvi.StateDisconnected)
		t.emit(rtvi.DisconnectedEvent{Reason: reason})
	})
}

func (t *Transport) sendSilence(track *webrtc.TrackLocalStaticSample) {
	ticker := time.NewTicker(silenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: silenceInterval}); err != nil {
				t.logger.Debug().Err(err).Msg("microphone track closed")
				return
			}
		}
	}
}

func (t *Transport) state(s rtvi.TransportState) {
	t.emit(rtvi.TransportStateEvent{State: s})
}

// remoteTrack adapts a pion remote track to rtvi.RTPReader.
type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (r remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}

// MimeType reports the negotiated codec so recorders can pick a container.
func (r remoteTrack) MimeType() string {
	return r.track.Codec().MimeType
}
