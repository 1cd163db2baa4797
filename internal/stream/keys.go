package stream

// Action names, matching the ACTION_* string table.
const (
	ActionPlay              = "play"
	ActionPause             = "pause"
	ActionStop              = "stop"
	ActionSeek              = "seek"
	ActionSetVolume         = "set_volume"
	ActionSetLoopMode       = "set_loop_mode"
	ActionSetSpeed          = "set_speed"
	ActionSetMediaList      = "set_media_list"
	ActionEndOfStream       = "end_of_stream"
	ActionPlayerStatusChanged = "player_status_changed"
	ActionPositionChanged   = "position_changed"
	ActionMediaItemChanged  = "media_item_changed"
	ActionVolumeChanged     = "volume_changed"
	ActionRepeatModeChanged = "repeat_mode_changed"
	ActionSpeedChanged      = "speed_changed"
	ActionPlayerError       = "player_error"
)

// Param keys, matching the KEY_* string table.
const (
	KeyIsLooping         = "is_looping"
	KeyPlaybackState     = "playback_state"
	KeyIsPlayWhenReady   = "is_play_when_ready"
	KeyPosition          = "position"
	KeyBufferPosition    = "buffer_position"
	KeyDuration          = "duration"
	KeyVolume            = "volume"
	KeyMaxVolume         = "max_volume"
	KeyMode              = "mode"
	KeySpeed             = "speed"
	KeyErrorCode         = "error_code"
	KeyErrorMsg          = "error_msg"
)
