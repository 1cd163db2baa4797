package stream

import (
	"github.com/rs/zerolog"

	"github.com/castengine/castplus/internal/transport"
)

// Manager bridges the stream channel to a PlayerListener: it decodes
// inbound action/callback envelopes through a Dispatcher and encodes
// outbound ones through the channel, playing the role CastStreamManager
// plays between the session and the player stub.
type Manager struct {
	log      zerolog.Logger
	channel  transport.Channel
	listener PlayerListener
	dispatch *Dispatcher
	reflect  *PlayerReflector
}

// NewManager wires a Manager around an already-open stream channel.
// queueDepth bounds the action dispatcher's backlog.
func NewManager(channel transport.Channel, listener PlayerListener, queueDepth int, log zerolog.Logger) *Manager {
	m := &Manager{
		log:      log.With().Str("component", "stream-manager").Logger(),
		channel:  channel,
		listener: listener,
	}
	m.reflect = NewPlayerReflector(m)
	m.dispatch = NewDispatcher(m.controlHandlers(), queueDepth, m.log)
	return m
}

// Reflector exposes the embedded PlayerReflector so callers can push
// local player-state changes out to the peer.
func (m *Manager) Reflector() *PlayerReflector { return m.reflect }

// Close stops the dispatcher and the position-echo ticker.
func (m *Manager) Close() {
	m.dispatch.Close()
	m.reflect.StopPositionEcho()
}

// HandleFrame is the transport.Listener.OnDataReceived hook for the
// stream module: every inbound frame is a JSON action or callback
// envelope, and which event kind it is determines which key names the
// action (see DispatchFrame).
func (m *Manager) HandleFrame(data []byte) {
	if err := m.dispatch.DispatchFrame(EventControl, data); err != nil {
		// A frame with no "action" key but a "callback_action" key is a
		// peer-originated callback rather than a control request; retry
		// it as one before giving up, since both event kinds share one
		// channel.
		if cbErr := m.dispatch.DispatchFrame(EventCallback, data); cbErr != nil {
			m.log.Warn().Err(err).Msg("failed to dispatch stream frame")
		}
	}
}

// SendControlAction implements Sink: it is also the method used
// directly by the session layer to drive playback on the peer.
func (m *Manager) SendControlAction(action string, param any) error {
	raw, err := EncodeAction(action, param)
	if err != nil {
		return err
	}
	return m.channel.Send(raw)
}

// SendCallbackAction implements Sink.
func (m *Manager) SendCallbackAction(action string, param any) error {
	raw, err := EncodeCallback(action, param)
	if err != nil {
		return err
	}
	return m.channel.Send(raw)
}

func (m *Manager) controlHandlers() map[string]ActionHandler {
	return map[string]ActionHandler{
		ActionPlayerStatusChanged: m.onPlayerStatusChanged,
		ActionPositionChanged:     m.onPositionChanged,
		ActionMediaItemChanged:    m.onMediaItemChanged,
		ActionVolumeChanged:       m.onVolumeChanged,
		ActionPlayerError:         m.onPlayerError,
	}
}

func (m *Manager) onPlayerStatusChanged(param map[string]any) {
	var decoded struct {
		PlaybackState   int  `mapstructure:"playback_state"`
		IsPlayWhenReady bool `mapstructure:"is_play_when_ready"`
	}
	if err := DecodeParam(param, &decoded); err != nil {
		m.log.Warn().Err(err).Msg("bad player_status_changed param")
		return
	}
	m.listener.OnPlayerStatusChanged(PlayerState(decoded.PlaybackState), decoded.IsPlayWhenReady)
}

func (m *Manager) onPositionChanged(param map[string]any) {
	var decoded struct {
		Position       int `mapstructure:"position"`
		BufferPosition int `mapstructure:"buffer_position"`
		Duration       int `mapstructure:"duration"`
	}
	if err := DecodeParam(param, &decoded); err != nil {
		m.log.Warn().Err(err).Msg("bad position_changed param")
		return
	}
	m.listener.OnPositionChanged(decoded.Position, decoded.BufferPosition, decoded.Duration)
}

func (m *Manager) onMediaItemChanged(param map[string]any) {
	var info MediaInfo
	if err := DecodeParam(param, &info); err != nil {
		m.log.Warn().Err(err).Msg("bad media_item_changed param")
		return
	}
	m.listener.OnMediaItemChanged(info)
}

func (m *Manager) onVolumeChanged(param map[string]any) {
	var decoded struct {
		Volume    int `mapstructure:"volume"`
		MaxVolume int `mapstructure:"max_volume"`
	}
	if err := DecodeParam(param, &decoded); err != nil {
		m.log.Warn().Err(err).Msg("bad volume_changed param")
		return
	}
	m.listener.OnVolumeChanged(decoded.Volume, decoded.MaxVolume)
}

func (m *Manager) onPlayerError(param map[string]any) {
	var decoded struct {
		Code int    `mapstructure:"error_code"`
		Msg  string `mapstructure:"error_msg"`
	}
	if err := DecodeParam(param, &decoded); err != nil {
		m.log.Warn().Err(err).Msg("bad player_error param")
		return
	}
	m.listener.OnError(decoded.Code, decoded.Msg)
}
