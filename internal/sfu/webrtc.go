package sfu

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/squadlink/voice-backend/internal/shared"
)

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

type PortRange struct {
	Min int
	Max int
}

type EngineConfig struct {
	ICEServers []ICEServerConfig
	PortRange  PortRange
}

// WebRTCEngine is the pion-backed media plane. One PeerConnection per
// transport; producers relay RTP to per-consumer out-tracks that can be
// paused without renegotiation.
type WebRTCEngine struct {
	cfg    EngineConfig
	api    *webrtc.API
	logger *slog.Logger
}

func NewWebRTCEngine(cfg EngineConfig, logger *slog.Logger) (*WebRTCEngine, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	se := &webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > cfg.PortRange.Min {
		if err := se.SetEphemeralUDPPortRange(uint16(cfg.PortRange.Min), uint16(cfg.PortRange.Max)); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(*se),
	)

	return &WebRTCEngine{
		cfg:    cfg,
		api:    api,
		logger: logger.With("component", "webrtc_engine"),
	}, nil
}

func (e *WebRTCEngine) NewRouter(roomID string) (Router, error) {
	return &webrtcRouter{engine: e, roomID: roomID}, nil
}

func (e *WebRTCEngine) Close() error {
	return nil
}

func (e *WebRTCEngine) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(e.cfg.ICEServers))
	for _, s := range e.cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	return servers
}

type webrtcRouter struct {
	engine *WebRTCEngine
	roomID string
}

func (r *webrtcRouter) Capabilities() Capabilities {
	return Capabilities{Codecs: []string{webrtc.MimeTypeOpus}}
}

func (r *webrtcRouter) CanConsume(caps Capabilities) bool {
	return caps.Supports(webrtc.MimeTypeOpus)
}

func (r *webrtcRouter) NewTransport(dir Direction) (Transport, error) {
	pc, err := r.engine.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: r.engine.iceServers(),
	})
	if err != nil {
		return nil, err
	}
	return newWebRTCTransport(pc, dir, r.engine.logger), nil
}

func (r *webrtcRouter) Close() error {
	return nil
}

var errWrongDirection = errors.New("sfu: operation not valid for transport direction")

type webrtcTransport struct {
	id     string
	dir    Direction
	pc     *webrtc.PeerConnection
	logger *slog.Logger

	producerCh chan Producer

	mu        sync.Mutex
	closed    bool
	closedFns []func()
	negotiate func(offer webrtc.SessionDescription)
}

func newWebRTCTransport(pc *webrtc.PeerConnection, dir Direction, logger *slog.Logger) *webrtcTransport {
	t := &webrtcTransport{
		id:         shared.NewID("trans_"),
		dir:        dir,
		pc:         pc,
		logger:     logger.With("transport_id", ""),
		producerCh: make(chan Producer, 1),
	}
	t.logger = logger.With("transport_id", t.id, "direction", string(dir))

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			t.fireClosed()
		}
	})

	if dir == DirectionSend {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			if track.Kind() != webrtc.RTPCodecTypeAudio {
				return
			}
			producer := newWebRTCProducer(track, t.logger)
			select {
			case t.producerCh <- producer:
			default:
				t.logger.Warn("unclaimed producer track replaced", "producer_id", producer.ID())
			}
		})
	}

	// Server-initiated renegotiation when consumers add tracks.
	pc.OnNegotiationNeeded(func() {
		t.mu.Lock()
		fn := t.negotiate
		t.mu.Unlock()
		if fn == nil || pc.RemoteDescription() == nil {
			return
		}
		if pc.SignalingState() != webrtc.SignalingStateStable {
			return
		}

		offer, err := pc.CreateOffer(nil)
		if err != nil {
			t.logger.Error("renegotiation offer failed", "error", err)
			return
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			t.logger.Error("set local description failed", "error", err)
			return
		}
		fn(offer)
	})

	return t
}

func (t *webrtcTransport) ID() string {
	return t.id
}

func (t *webrtcTransport) Direction() Direction {
	return t.dir
}

func (t *webrtcTransport) Connect(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	return *t.pc.LocalDescription(), nil
}

func (t *webrtcTransport) Answer(_ context.Context, answer webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(answer)
}

func (t *webrtcTransport) Producer(ctx context.Context) (Producer, error) {
	if t.dir != DirectionSend {
		return nil, errWrongDirection
	}
	select {
	case p := <-t.producerCh:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *webrtcTransport) Consume(_ context.Context, p Producer) (Consumer, error) {
	if t.dir != DirectionRecv {
		return nil, errWrongDirection
	}

	producer, ok := p.(*webrtcProducer)
	if !ok {
		return nil, errors.New("sfu: producer does not belong to this engine")
	}

	local, err := webrtc.NewTrackLocalStaticRTP(producer.codec, shared.NewID("track_"), "squadlink")
	if err != nil {
		return nil, err
	}

	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}

	// Drain RTCP so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	consumer := newWebRTCConsumer(producer, local)
	producer.addOut(consumer)
	return consumer, nil
}

func (t *webrtcTransport) OnNegotiationNeeded(fn func(offer webrtc.SessionDescription)) {
	t.mu.Lock()
	t.negotiate = fn
	t.mu.Unlock()
}

func (t *webrtcTransport) OnClosed(fn func()) {
	t.mu.Lock()
	t.closedFns = append(t.closedFns, fn)
	t.mu.Unlock()
}

func (t *webrtcTransport) fireClosed() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	fns := t.closedFns
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (t *webrtcTransport) Close() error {
	t.fireClosed()
	return t.pc.Close()
}

const (
	levelSilence = -127.0
	levelActive  = -30.0

	// Opus DTX/comfort-noise frames are a few bytes; anything larger
	// carries voice.
	voicePayloadBytes = 8
)

type webrtcProducer struct {
	id    string
	track *webrtc.TrackRemote
	codec webrtc.RTPCodecCapability

	// level holds the last observed audio level in negated dBov so it
	// fits an integer atomic.
	level atomic.Int32

	mu   sync.RWMutex
	outs map[string]*webrtcConsumer

	closeOnce sync.Once
	done      chan struct{}
}

func newWebRTCProducer(track *webrtc.TrackRemote, logger *slog.Logger) *webrtcProducer {
	p := &webrtcProducer{
		id:    shared.NewID("prod_"),
		track: track,
		codec: track.Codec().RTPCodecCapability,
		outs:  make(map[string]*webrtcConsumer),
		done:  make(chan struct{}),
	}
	p.level.Store(int32(-levelSilence))
	go p.relay(logger.With("producer_id", p.id))
	return p
}

func (p *webrtcProducer) ID() string {
	return p.id
}

func (p *webrtcProducer) AudioLevel() float64 {
	return -float64(p.level.Load())
}

// relay reads RTP from the remote track and forwards to every unpaused
// out-track. Write failures retire only the failing consumer.
func (p *webrtcProducer) relay(logger *slog.Logger) {
	for {
		select {
		case <-p.done:
			return
		default:
		}

		pkt, _, err := p.track.ReadRTP()
		if err != nil {
			logger.Debug("producer track ended", "error", err)
			p.Close()
			return
		}

		p.observeLevel(pkt)
		p.forward(pkt, logger)
	}
}

// observeLevel estimates speech activity from the payload size. Opus DTX
// emits tiny frames during silence.
// TODO: switch to the RFC 6464 ssrc-audio-level extension once the
// negotiated extension id is plumbed through from the SDP exchange.
func (p *webrtcProducer) observeLevel(pkt *rtp.Packet) {
	if len(pkt.Payload) > voicePayloadBytes {
		p.level.Store(int32(-levelActive))
	} else {
		p.level.Store(int32(-levelSilence))
	}
}

func (p *webrtcProducer) forward(pkt *rtp.Packet, logger *slog.Logger) {
	p.mu.RLock()
	outs := make([]*webrtcConsumer, 0, len(p.outs))
	for _, c := range p.outs {
		outs = append(outs, c)
	}
	p.mu.RUnlock()

	for _, c := range outs {
		if c.Paused() {
			continue
		}
		if err := c.local.WriteRTP(pkt); err != nil {
			logger.Debug("out-track write failed, detaching consumer", "consumer_id", c.id, "error", err)
			_ = c.Close()
		}
	}
}

func (p *webrtcProducer) addOut(c *webrtcConsumer) {
	p.mu.Lock()
	p.outs[c.id] = c
	p.mu.Unlock()
}

func (p *webrtcProducer) removeOut(id string) {
	p.mu.Lock()
	delete(p.outs, id)
	p.mu.Unlock()
}

func (p *webrtcProducer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		outs := p.outs
		p.outs = make(map[string]*webrtcConsumer)
		p.mu.Unlock()
		for _, c := range outs {
			c.detach()
		}
	})
	return nil
}

type webrtcConsumer struct {
	id         string
	producerID string
	producer   *webrtcProducer
	local      *webrtc.TrackLocalStaticRTP
	paused     atomic.Bool
	detached   atomic.Bool
}

func newWebRTCConsumer(producer *webrtcProducer, local *webrtc.TrackLocalStaticRTP) *webrtcConsumer {
	c := &webrtcConsumer{
		id:         shared.NewID("cons_"),
		producerID: producer.ID(),
		producer:   producer,
		local:      local,
	}
	c.paused.Store(true)
	return c
}

func (c *webrtcConsumer) ID() string {
	return c.id
}

func (c *webrtcConsumer) ProducerID() string {
	return c.producerID
}

func (c *webrtcConsumer) Pause() {
	c.paused.Store(true)
}

func (c *webrtcConsumer) Resume() {
	c.paused.Store(false)
}

func (c *webrtcConsumer) Paused() bool {
	return c.paused.Load()
}

func (c *webrtcConsumer) detach() {
	c.detached.Store(true)
	c.paused.Store(true)
}

func (c *webrtcConsumer) Close() error {
	c.detach()
	c.producer.removeOut(c.id)
	return nil
}
