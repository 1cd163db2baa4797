package rtsp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// version is the only handshake version this engine will negotiate;
// CheckVersion rejects anything else rather than attempting
// cross-version compatibility the original never implemented either
// (SPEC_FULL.md §9, "GetVersion()==1" made an explicit check here).
const version = 1

// ErrUnsupportedVersion is returned by CheckVersion for any version
// other than the one this engine speaks. The handshake code does not
// call CheckVersion on a peer's his_version value.
type ErrUnsupportedVersion struct{ Got int }

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("rtsp: unsupported protocol version %d (only %d is supported)", e.Got, version)
}

// CheckVersion rejects any announced version other than 1.
func CheckVersion(v int) error {
	if v != version {
		return ErrUnsupportedVersion{Got: v}
	}
	return nil
}

// Sender is the narrow surface the controller needs from its channel —
// satisfied by transport.Channel without this package importing it.
type Sender interface {
	Send([]byte) error
}

// Listener receives fully-negotiated session events and inbound trigger
// methods the controller can't answer on its own (PLAY/PAUSE/TEARDOWN
// requests coming from the peer).
type Listener interface {
	OnNegotiated(local, remote Params)
	OnTrigger(action string)
	OnKeepAliveTimeout()
}

type pendingRequest struct {
	method Method
	result chan requestResult
}

type requestResult struct {
	msg *Message
	err error
}

// Controller drives the ANNOUNCE/OPTIONS/GET_PARAMETER/SET_PARAMETER
// handshake and subsequent keep-alive/trigger traffic over one channel,
// correlating requests to responses by CSeq the way RtspController's
// wait-table does, without blocking the receive goroutine on anything
// but a channel send.
type Controller struct {
	log      zerolog.Logger
	sender   Sender
	listener Listener

	seq atomic.Int64

	mu      sync.Mutex
	pending map[int]*pendingRequest

	local  Params
	remote Params

	clamp      VideoClamp
	localUibc  LocalUibcSupport
	negotiated bool

	keepAliveCSeq int
	keepAliveStop chan struct{}
}

// NewController constructs an unstarted controller for one channel.
// clamp bounds the peer's advertised video parameters (config.RTSPConfig
// in the caller); localUibc gates which UIBC categories an incoming
// his_uibc_capability offer can be granted.
func NewController(sender Sender, listener Listener, local Params, clamp VideoClamp, localUibc LocalUibcSupport, log zerolog.Logger) *Controller {
	return &Controller{
		log:       log.With().Str("component", "rtsp-controller").Logger(),
		sender:    sender,
		listener:  listener,
		pending:   make(map[int]*pendingRequest),
		local:     local,
		clamp:     clamp,
		localUibc: localUibc,
	}
}

func (c *Controller) nextSeq() int {
	return int(c.seq.Add(1))
}

// do sends a request and blocks until its response arrives or ctx is
// canceled (with no deadline on ctx it waits indefinitely) — the active
// half of what the wait-table handles in the original.
func (c *Controller) do(ctx context.Context, method Method, raw string, cseq int) (*Message, error) {
	pr := &pendingRequest{method: method, result: make(chan requestResult, 1)}

	c.mu.Lock()
	c.pending[cseq] = pr
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, cseq)
		c.mu.Unlock()
	}()

	if err := c.sender.Send([]byte(raw)); err != nil {
		return nil, err
	}

	select {
	case res := <-pr.result:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Announce sends the ANNOUNCE request that kicks off a handshake,
// advertising the encryption algorithms this side will accept.
func (c *Controller) Announce(ctx context.Context, algorithms string) (*Message, error) {
	cseq := c.nextSeq()
	body := fmt.Sprintf("encrypt_description: encrypt_list=%s;version=%d%s", algorithms, version, msgSeparator)
	raw := EncapRequestWithBody(MethodAnnounce, "*", cseq, body)
	return c.do(ctx, MethodAnnounce, raw, cseq)
}

// RequestOptions sends OPTIONS and returns the peer's advertised method
// list in the response.
func (c *Controller) RequestOptions(ctx context.Context) (*Message, error) {
	cseq := c.nextSeq()
	raw := EncapRequest(MethodOptions, "*", cseq, "Require: com.huawei.hisight1.0")
	return c.do(ctx, MethodOptions, raw, cseq)
}

// RequestGetParameter asks the peer for its capability set.
func (c *Controller) RequestGetParameter(ctx context.Context) (*Message, error) {
	cseq := c.nextSeq()
	body := "his_version\r\nhis_video_formats\r\nhis_audio_codecs\r\nhis_audio_formats\r\n" +
		"his_feature\r\nhis_vtp\r\nhis_device_type\r\n"
	raw := EncapRequestWithBody(MethodGetParameter, fmt.Sprintf("rtsp://localhost/hisight%d", version), cseq, body)
	return c.do(ctx, MethodGetParameter, raw, cseq)
}

// SetParameter pushes the negotiated parameter set to the peer. A
// successful "200 OK" response means the peer accepted the handshake, so
// this side's own negotiation is now complete too (ProcessSetParamM5Response
// in the original has no further work beyond the status check).
func (c *Controller) SetParameter(ctx context.Context, p Params, ip string) (*Message, error) {
	cseq := c.nextSeq()
	body := EncodeVideoAndAudioFormats(p) + EncodeAudioFormats(p)
	body += EncodeFeatureSet(p.FeatureSet)
	body += EncodeDeviceType(p.DeviceType)
	body += EncodeProjectionMode(p.ProjectionMode)
	body += EncodeUibcCapability(c.localUibc)
	body += fmt.Sprintf("his_presentation_URL: rtsp://%s/hisight%d/streamid=0 none%s", ip, version, msgSeparator)
	body += fmt.Sprintf("his_version: %d%s", version, msgSeparator)
	body += EncodeVtp(p.SupportVtp)
	raw := EncapRequestWithBody(MethodSetParameter, fmt.Sprintf("rtsp://localhost/hisight%d", version), cseq, body)

	msg, err := c.do(ctx, MethodSetParameter, raw, cseq)
	if err == nil && msg.IsOK {
		c.finalizeNegotiation()
	}
	return msg, err
}

// finalizeNegotiation fires Listener.OnNegotiated exactly once: the
// first time either this side's own SET_PARAMETER is accepted (source)
// or a peer's SET_PARAMETER is processed (sink).
func (c *Controller) finalizeNegotiation() {
	c.mu.Lock()
	if c.negotiated {
		c.mu.Unlock()
		return
	}
	c.negotiated = true
	local, remote := c.local, c.remote
	c.mu.Unlock()

	c.listener.OnNegotiated(local, remote)
}

// SendTrigger sends a his_trigger_method SET_PARAMETER, used for
// PLAY/PAUSE/etc. action requests that flow source->sink.
func (c *Controller) SendTrigger(ctx context.Context, action string) (*Message, error) {
	cseq := c.nextSeq()
	body := fmt.Sprintf("his_trigger_method: %s%s", action, msgSeparator)
	raw := EncapRequestWithBody(MethodSetParameter, fmt.Sprintf("rtsp://localhost/hisight%d", version), cseq, body)
	return c.do(ctx, MethodSetParameter, raw, cseq)
}

// StartKeepAlive spawns a ticker that periodically sends a bodyless
// GET_PARAMETER, matching OnTimeKeepAlive. The listener's
// OnKeepAliveTimeout fires only when sending the probe fails; a reply
// carrying the latest probe's CSeq is consumed by HandleIncoming, and a
// reply that never arrives is not detected.
func (c *Controller) StartKeepAlive(ctx context.Context, interval time.Duration) {
	c.keepAliveStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sendKeepAlive(ctx)
			case <-c.keepAliveStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopKeepAlive stops the keep-alive ticker started by StartKeepAlive.
func (c *Controller) StopKeepAlive() {
	if c.keepAliveStop != nil {
		close(c.keepAliveStop)
		c.keepAliveStop = nil
	}
}

func (c *Controller) sendKeepAlive(ctx context.Context) {
	cseq := c.nextSeq()
	c.mu.Lock()
	c.keepAliveCSeq = cseq
	c.mu.Unlock()

	raw := EncapRequest(MethodGetParameter, fmt.Sprintf("rtsp://localhost/hisight%d", version), cseq)
	if err := c.sender.Send([]byte(raw)); err != nil {
		c.log.Warn().Err(err).Msg("keepalive send failed")
		c.listener.OnKeepAliveTimeout()
	}
}

// HandleIncoming is called by the channel manager with each frame
// received on the RTSP channel. A message whose CSeq matches a pending
// request completes that request; anything else is an unsolicited
// request from the peer and is dispatched by method.
func (c *Controller) HandleIncoming(raw []byte) {
	msg, err := ParseMessage(string(raw))
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to parse rtsp message")
		return
	}

	c.mu.Lock()
	pr, ok := c.pending[msg.CSeq]
	isKeepAliveReply := msg.CSeq != 0 && msg.CSeq == c.keepAliveCSeq
	c.mu.Unlock()

	if ok {
		pr.result <- requestResult{msg: msg}
		return
	}
	if isKeepAliveReply {
		return
	}

	c.handleRequest(msg)
}

func (c *Controller) handleRequest(msg *Message) {
	switch {
	case hasPrefix(msg.FirstLine, string(MethodSetParameter)):
		c.handleSetParameter(msg)
	case hasPrefix(msg.FirstLine, string(MethodGetParameter)):
		c.handleGetParameter(msg)
	case hasPrefix(msg.FirstLine, string(MethodAnnounce)):
		// Peer-initiated ANNOUNCE is not part of this engine's handshake
		// direction; acknowledge and move on.
		_ = c.sender.Send([]byte(EncapCommonResponse(msg, statusOKLine)))
	default:
		c.log.Debug().Str("firstLine", msg.FirstLine).Msg("unhandled rtsp request")
	}
}

func (c *Controller) handleGetParameter(msg *Message) {
	// Every incoming GET_PARAMETER, keep-alive probe and capability
	// request alike, is answered with a bare 200 OK; no parameter values
	// are returned.
	_ = c.sender.Send([]byte(EncapCommonResponse(msg, statusOKLine)))
}

// handleSetParameter processes an incoming SET_PARAMETER. A his_trigger_method
// header makes it a playback trigger (PLAY/PAUSE/...); otherwise it is the
// peer's capability offer (M4 in the original) and every recognized
// parameter field narrows c.remote before the handshake completes.
func (c *Controller) handleSetParameter(msg *Message) {
	if trigger, ok := msg.Headers["his_trigger_method"]; ok {
		c.listener.OnTrigger(trigger)
		_ = c.sender.Send([]byte(EncapCommonResponse(msg, statusOKLine)))
		return
	}

	if deviceType, ok := msg.Headers["his_device_type"]; ok {
		c.remote.DeviceType = ParseDeviceType(deviceType)
	}

	if videoFormats, ok := msg.Headers["his_video_formats"]; ok {
		c.remote.Video = ParseVideoFormats(videoFormats, c.local.Video, c.clamp.FPSMin, c.clamp.FPSMax, c.clamp.GopMin, c.clamp.GopMax)
		c.remote.Video = ClampVideo(c.remote.Video, c.clamp.FPSMin, c.clamp.FPSMax, c.clamp.GopMin, c.clamp.GopMax, c.clamp.BitrateMin, c.clamp.BitrateMax)
	}

	audio := c.local.Audio
	if codecs, ok := msg.Headers["his_audio_codecs"]; ok {
		audio.Codec = ParseAudioCodecs(codecs)
	}
	if audioFormats, ok := msg.Headers["his_audio_formats"]; ok {
		audio = ParseAudioFormats(audioFormats, audio)
	}
	c.remote.Audio = audio

	if feature, ok := msg.Headers["his_feature"]; ok {
		peerFeatures := ProcessFeatureSet(feature)
		c.remote.FeatureSet = IntersectFeatureSets(c.local.FeatureSet, peerFeatures)
		// ProcessSinkVtp is deliberately fed msg.Headers["his_vtp"] only
		// when "his_feature" was present, mirroring the original
		// handshake code's key-mismatch: the presence check guards
		// his_feature but the value read is his_vtp's. A peer that sends
		// his_vtp without his_feature will not have its VTP offer parsed
		// here; that asymmetry is preserved rather than "fixed", since
		// peers observed in the wild always send both together. The
		// result itself is always VtpNotSupported regardless (see
		// ProcessSinkVtp).
		c.remote.SupportVtp = ProcessSinkVtp(msg.Headers["his_vtp"])
		c.log.Debug().Str("his_vtp", msg.Headers["his_vtp"]).Msg("peer vtp offer coerced to not supported")
	}

	if extended, ok := msg.Headers["his_extended_field"]; ok {
		c.remote.ProjectionMode = ParseProjectionMode(extended, c.remote.ProjectionMode)
	}

	if uibc, ok := msg.Headers["his_uibc_capability"]; ok {
		c.remote.Uibc = ParseUibcCapability(uibc, c.localUibc)
	} else {
		c.remote.Uibc = UibcCapability{}
	}

	_ = c.sender.Send([]byte(EncapCommonResponse(msg, statusOKLine)))
	c.finalizeNegotiation()
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
