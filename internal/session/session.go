// Package session wires the crypto codec, framed transports, channel
// manager, RTSP control engine, and stream bridge into one cast
// session, the same top-level role CastSession plays over its
// sub-components in the original service.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/castengine/castplus/internal/channel"
	"github.com/castengine/castplus/internal/config"
	"github.com/castengine/castplus/internal/crypto"
	"github.com/castengine/castplus/internal/rtsp"
	"github.com/castengine/castplus/internal/stream"
	"github.com/castengine/castplus/internal/transport"
)

// Variant is the cast protocol flavor this session negotiates, per
// SPEC_FULL.md §3's "protocol variant" field.
type Variant int

const (
	VariantMirror Variant = iota
	VariantStream
	VariantCooperation
	VariantHiCar
	VariantSuperLauncher
)

// requiresAudioChannel reports whether variant projects an audio
// channel alongside video. hicar and super_launcher carry only video.
func (v Variant) requiresAudioChannel() bool {
	switch v {
	case VariantHiCar, VariantSuperLauncher:
		return false
	default:
		return true
	}
}

// Listener is the session-level callback surface a caller implements to
// observe negotiation, playback, and lifecycle events.
type Listener interface {
	rtsp.Listener
	stream.PlayerListener
	OnDeviceGone()
	// OnStreamDeviceDisconnected fires when the stream variant's media
	// channel drops unexpectedly. Unlike OnDeviceGone it is not fatal
	// to the session: the RTSP control channel may still be live, and
	// the caller decides whether to wait for the peer to reconnect or
	// tear the session down itself.
	OnStreamDeviceDisconnected()
}

// session.Handler What codes, dispatched on the state machine's own
// goroutine.
const (
	whatChannelOpened = iota
	whatChannelClosed
	whatChannelConnectFailed
	whatNegotiated
	whatDeviceGone
	whatStreamDeviceDisconnected
)

// Session is a single source-or-sink cast session: one peer device,
// one negotiated parameter set, the channels and engines that carry
// media and control traffic to it.
type Session struct {
	cfg      config.Config
	log      zerolog.Logger
	local    transport.DeviceInfo
	role     transport.Role
	variant  Variant
	listener Listener

	channels *channel.Manager
	codec    *crypto.Codec

	mu            sync.Mutex
	remote        transport.DeviceInfo
	rtspChannel   transport.Channel
	rtspCtrl      *rtsp.Controller
	streamChannel transport.Channel
	streamMgr     *stream.Manager

	sm *StateMachine

	idleState        *idleState
	negotiatingState *negotiatingState
	activeState      *activeState
	closedState      *closedState
}

// NewSession builds a Session bound to one local device identity. Call
// Start to actually open channels against a remote peer.
func NewSession(cfg config.Config, local transport.DeviceInfo, role transport.Role, variant Variant, listener Listener, log zerolog.Logger) *Session {
	log = log.With().Str("component", "session").Str("localDevice", local.DeviceID).Logger()

	s := &Session{
		cfg:      cfg,
		log:      log,
		local:    local,
		role:     role,
		variant:  variant,
		listener: listener,
		channels: channel.NewManager(cfg.Transport.MaxFrameBytes, cfg.Transport.SendBufferBytes, cfg.Transport.RecvBufferBytes, variant.requiresAudioChannel(), log),
		codec:    crypto.NewCodec(),
	}

	s.idleState = &idleState{session: s}
	s.negotiatingState = &negotiatingState{session: s, BaseState: BaseState{Parent: s.idleState}}
	s.activeState = &activeState{session: s, BaseState: BaseState{Parent: s.idleState}}
	s.closedState = &closedState{session: s}

	s.sm = NewStateMachine(log)
	s.sm.Send(Message{What: -1, Task: func() { s.sm.TransferState(s.idleState) }})

	return s
}

// localParams returns the parameter set this side advertises: protocol
// version 1 with VTP not supported. It reads nothing from cfg, and every
// other field is left at its zero value.
func (s *Session) localParams() rtsp.Params {
	return rtsp.Params{
		Version:    1,
		SupportVtp: rtsp.VtpNotSupported,
	}
}

// videoClamp builds the peer-offer clamp bounds from cfg.RTSP.
func (s *Session) videoClamp() rtsp.VideoClamp {
	r := s.cfg.RTSP
	return rtsp.VideoClamp{
		FPSMin:     r.VideoFPSMin,
		FPSMax:     r.VideoFPSMax,
		GopMin:     r.VideoGopMin,
		GopMax:     r.VideoGopMax,
		BitrateMin: r.VideoBitrateMin,
		BitrateMax: r.VideoBitrateMax,
	}
}

// localUibc builds this side's advertised UIBC capability from cfg.RTSP.
func (s *Session) localUibc() rtsp.LocalUibcSupport {
	u := s.cfg.RTSP.Uibc
	return rtsp.LocalUibcSupport{
		Supported:     u.Supported,
		Generic:       u.Generic,
		Hidc:          u.Hidc,
		Vendor:        u.Vendor,
		SupportVendor: u.SupportVendor,
	}
}

// Start opens the RTSP control channel against remote and builds the
// controller for it. It sends nothing; on the source side the caller
// then runs the ANNOUNCE/OPTIONS/GET_PARAMETER/SET_PARAMETER handshake
// with Negotiate.
func (s *Session) Start(ctx context.Context, remote transport.DeviceInfo, remotePort int) error {
	s.mu.Lock()
	s.remote = remote
	s.mu.Unlock()

	req := transport.Request{
		Module:     transport.ModuleRTSP,
		Link:       transport.LinkTCP,
		Role:       s.role,
		Local:      s.local,
		Remote:     remote,
		RemotePort: remotePort,
	}

	ch, _, err := s.channels.CreateChannel(req, &rtspChannelListener{session: s})
	if err != nil {
		return fmt.Errorf("session: failed to create rtsp channel: %w", err)
	}

	s.mu.Lock()
	s.rtspChannel = ch
	s.rtspCtrl = rtsp.NewController(&channelSender{channel: ch, codec: s.codec}, &rtspListenerAdapter{session: s}, s.localParams(), s.videoClamp(), s.localUibc(), s.log)
	s.mu.Unlock()

	return nil
}

// StartStreamBridge opens the stream module's channel, used by the
// stream-projection variant once RTSP negotiation has completed.
func (s *Session) StartStreamBridge(remotePort int) error {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	req := transport.Request{
		Module:     transport.ModuleStream,
		Link:       transport.LinkTCP,
		Role:       s.role,
		Local:      s.local,
		Remote:     remote,
		RemotePort: remotePort,
	}

	ch, _, err := s.channels.CreateChannel(req, &streamChannelListener{session: s})
	if err != nil {
		return fmt.Errorf("session: failed to create stream channel: %w", err)
	}

	s.mu.Lock()
	s.streamChannel = ch
	s.streamMgr = stream.NewManager(ch, s.listener, 32, s.log)
	s.mu.Unlock()

	return nil
}

// StreamManager exposes the stream bridge for callers that need to
// drive playback directly (SendControlAction) rather than just observe
// it through Listener.
func (s *Session) StreamManager() *stream.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamMgr
}

// Negotiate runs the handshake on the caller's goroutine. Only the
// source side calls this; the sink side replies from handleRequest
// inside rtsp.Controller as frames arrive.
func (s *Session) Negotiate(ctx context.Context) error {
	s.mu.Lock()
	ctrl := s.rtspCtrl
	s.mu.Unlock()
	if ctrl == nil {
		return fmt.Errorf("session: rtsp channel not open yet")
	}

	if _, err := ctrl.Announce(ctx, crypto.CTRName); err != nil {
		return fmt.Errorf("session: announce failed: %w", err)
	}
	if _, err := ctrl.RequestOptions(ctx); err != nil {
		return fmt.Errorf("session: options failed: %w", err)
	}
	if _, err := ctrl.RequestGetParameter(ctx); err != nil {
		return fmt.Errorf("session: get_parameter failed: %w", err)
	}
	if _, err := ctrl.SetParameter(ctx, s.localParams(), s.local.IPAddress); err != nil {
		return fmt.Errorf("session: set_parameter failed: %w", err)
	}

	ctrl.StartKeepAlive(ctx, s.cfg.RTSP.NegotiationTimeout/2)
	return nil
}

// Close tears down every channel and stops the session's state
// machine loop.
func (s *Session) Close() {
	s.mu.Lock()
	ctrl := s.rtspCtrl
	streamMgr := s.streamMgr
	s.mu.Unlock()

	if ctrl != nil {
		ctrl.StopKeepAlive()
	}
	if streamMgr != nil {
		streamMgr.Close()
	}

	s.channels.DestroyAllChannels()
	s.sm.Stop(true)
}

// --- channel.ModuleListener adapters ---

type rtspChannelListener struct{ session *Session }

func (l *rtspChannelListener) OnChannelOpened(ch transport.Channel) {
	l.session.sm.SendWhat(whatChannelOpened)
}
func (l *rtspChannelListener) OnChannelConnectFailed(req transport.Request, err error) {
	l.session.log.Warn().Err(err).Msg("rtsp channel connect failed")
	l.session.sm.SendWhat(whatChannelConnectFailed)
}
func (l *rtspChannelListener) OnChannelError(ch transport.Channel, err error) {
	l.session.log.Warn().Err(err).Msg("rtsp channel error")
}
func (l *rtspChannelListener) OnChannelClosed(ch transport.Channel) {
	l.session.sm.SendWhat(whatChannelClosed)
}
func (l *rtspChannelListener) OnDataReceived(ch transport.Channel, data []byte) {
	l.session.mu.Lock()
	ctrl := l.session.rtspCtrl
	codec := l.session.codec
	l.session.mu.Unlock()
	if ctrl == nil {
		return
	}
	plain, err := codec.Decrypt(data)
	if err != nil {
		l.session.log.Warn().Err(err).Msg("failed to decrypt rtsp frame, dropping")
		return
	}
	ctrl.HandleIncoming(plain)
}

type streamChannelListener struct{ session *Session }

func (l *streamChannelListener) OnChannelOpened(ch transport.Channel)  {}
func (l *streamChannelListener) OnChannelConnectFailed(req transport.Request, err error) {
	l.session.log.Warn().Err(err).Msg("stream channel connect failed")
}
func (l *streamChannelListener) OnChannelError(ch transport.Channel, err error) {
	l.session.log.Warn().Err(err).Msg("stream channel error")
}
func (l *streamChannelListener) OnChannelClosed(ch transport.Channel) {
	// An unexpected drop of the stream sink's media channel does not
	// tear the session down; it's reported as a disconnect event and
	// the session stays active awaiting either a reconnect or an
	// explicit RTSP-level teardown.
	l.session.sm.SendWhat(whatStreamDeviceDisconnected)
}
func (l *streamChannelListener) OnDataReceived(ch transport.Channel, data []byte) {
	l.session.mu.Lock()
	mgr := l.session.streamMgr
	l.session.mu.Unlock()
	if mgr != nil {
		mgr.HandleFrame(data)
	}
}

// --- rtsp.Listener adapter ---

type rtspListenerAdapter struct{ session *Session }

func (l *rtspListenerAdapter) OnNegotiated(local, remote rtsp.Params) {
	l.session.listener.OnNegotiated(local, remote)
	l.session.sm.SendWhat(whatNegotiated)
}
func (l *rtspListenerAdapter) OnTrigger(action string) {
	l.session.listener.OnTrigger(action)
}
func (l *rtspListenerAdapter) OnKeepAliveTimeout() {
	l.session.listener.OnKeepAliveTimeout()
	l.session.sm.SendWhat(whatDeviceGone)
}

// --- rtsp.Sender adapter ---

type channelSender struct {
	channel transport.Channel
	codec   *crypto.Codec
}

func (s *channelSender) Send(raw []byte) error {
	// Codec.Encrypt is a pass-through until Arm is called. Nothing in
	// the session or the handshake arms the codec, so control frames go
	// out plain.
	out, err := s.codec.Encrypt(raw)
	if err != nil {
		return err
	}
	return s.channel.Send(out)
}
