package stream

import (
	"context"
	"sync"
	"time"
)

// PlayerState is the reflected playback state, mirroring PlayerStates.
type PlayerState int

// Player states.
const (
	PlayerStateIdle PlayerState = iota
	PlayerStatePlaying
	PlayerStatePaused
	PlayerStateBuffering
	PlayerStateStopped
	PlayerStateError
)

// LoopMode mirrors LoopMode.
type LoopMode int

// Loop modes.
const (
	LoopModeSequential LoopMode = iota
	LoopModeSingle
	LoopModeList
	LoopModeShuffle
)

// PlaybackSpeed mirrors PlaybackSpeed, stored as a fixed-point ratio over
// 100 (1.5x == 150) to keep the wire value an integer like the original.
type PlaybackSpeed int

// Named speeds.
const (
	SpeedForward0_75x PlaybackSpeed = 75
	SpeedForward1_00x PlaybackSpeed = 100
	SpeedForward1_25x PlaybackSpeed = 125
	SpeedForward1_75x PlaybackSpeed = 175
	SpeedForward2_00x PlaybackSpeed = 200
)

// MediaInfo is the metadata describing one playable item, mirroring
// MediaInfo's field set from EncapMediaInfo/ParseMediaInfo.
type MediaInfo struct {
	MediaID                 string `json:"media_id" mapstructure:"media_id"`
	MediaName               string `json:"media_name" mapstructure:"media_name"`
	MediaURL                string `json:"media_url" mapstructure:"media_url"`
	MediaType               string `json:"media_type" mapstructure:"media_type"`
	MediaSize               int64  `json:"media_size" mapstructure:"media_size"`
	StartPosition            int   `json:"start_position" mapstructure:"start_position"`
	Duration                int   `json:"duration" mapstructure:"duration"`
	ClosingCreditsPosition  int    `json:"closing_credits_position" mapstructure:"closing_credits_position"`
	AlbumCoverURL           string `json:"album_cover_url" mapstructure:"album_cover_url"`
	AlbumTitle              string `json:"album_title" mapstructure:"album_title"`
	MediaArtist             string `json:"media_artist" mapstructure:"media_artist"`
	LrcURL                  string `json:"lrc_url" mapstructure:"lrc_url"`
	LrcContent              string `json:"lrc_content" mapstructure:"lrc_content"`
	AppIconURL              string `json:"app_icon_url" mapstructure:"app_icon_url"`
	AppName                 string `json:"app_name" mapstructure:"app_name"`
}

// PlayerListener receives reflected player events, the Go-idiomatic
// analogue of ICastStreamListener's player-facing callbacks.
type PlayerListener interface {
	OnPlayerStatusChanged(state PlayerState, isPlayWhenReady bool)
	OnPositionChanged(position, bufferPosition, duration int)
	OnMediaItemChanged(info MediaInfo)
	OnVolumeChanged(volume, maxVolume int)
	OnError(code int, message string)
}

// Sink is the narrow action-sending surface PlayerReflector needs from
// its session, satisfied by Manager.
type Sink interface {
	SendControlAction(action string, param any) error
	SendCallbackAction(action string, param any) error
}

// PlayerReflector tracks one side's view of playback state and mirrors
// changes to the peer as callback actions, plus a ticker-driven position
// echo that corrects for clock drift between the two local players —
// the original polls GetPosition() on its own UI thread rather than a
// dedicated timer, but a ticker is the direct idiomatic translation of
// "periodically resample and tell the peer," and it avoids coupling
// this package to whatever drives the original's UI loop.
type PlayerReflector struct {
	sink Sink

	mu              sync.Mutex
	state           PlayerState
	position        int
	bufferPosition  int
	duration        int
	volume          int
	maxVolume       int
	mode            LoopMode
	speed           PlaybackSpeed

	cancel context.CancelFunc
}

// NewPlayerReflector constructs a reflector with default zero state.
func NewPlayerReflector(sink Sink) *PlayerReflector {
	return &PlayerReflector{sink: sink, maxVolume: 100}
}

// StartPositionEcho starts the periodic position-changed callback that
// keeps the peer's displayed position from drifting away from this
// side's actual playback clock.
func (p *PlayerReflector) StartPositionEcho(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.echoPosition()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopPositionEcho stops the ticker started by StartPositionEcho.
func (p *PlayerReflector) StopPositionEcho() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *PlayerReflector) echoPosition() {
	p.mu.Lock()
	position, buffer, duration := p.position, p.bufferPosition, p.duration
	p.mu.Unlock()

	_ = p.sink.SendCallbackAction(ActionPositionChanged, map[string]any{
		KeyPosition:       position,
		KeyBufferPosition: buffer,
		KeyDuration:       duration,
	})
}

// SetPosition updates the locally tracked position; the next echo tick
// carries it to the peer.
func (p *PlayerReflector) SetPosition(position, bufferPosition, duration int) {
	p.mu.Lock()
	p.position, p.bufferPosition, p.duration = position, bufferPosition, duration
	p.mu.Unlock()
}

// SetState updates and immediately reflects a player-state change,
// unlike position which only reflects on the echo tick, matching how
// NotifyPeerPlayerStatusChanged is called synchronously on every
// transition rather than sampled.
func (p *PlayerReflector) SetState(state PlayerState, isPlayWhenReady bool) error {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	return p.sink.SendCallbackAction(ActionPlayerStatusChanged, map[string]any{
		KeyPlaybackState:     int(state),
		KeyIsPlayWhenReady: isPlayWhenReady,
	})
}

// State returns the last-set player state.
func (p *PlayerReflector) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
