package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castengine/castplus/internal/transport"
)

type fakeChannel struct {
	mu   sync.Mutex
	sent [][]byte
	req  transport.Request
}

func (c *fakeChannel) Send(payload []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, payload)
	c.mu.Unlock()
	return nil
}
func (c *fakeChannel) Close() error                 { return nil }
func (c *fakeChannel) Request() transport.Request    { return c.req }

type recordingPlayerListener struct {
	mu         sync.Mutex
	statuses   []PlayerState
	positions  int
	mediaItems []MediaInfo
	volumes    int
	errors     int
}

func (l *recordingPlayerListener) OnPlayerStatusChanged(state PlayerState, isPlayWhenReady bool) {
	l.mu.Lock()
	l.statuses = append(l.statuses, state)
	l.mu.Unlock()
}
func (l *recordingPlayerListener) OnPositionChanged(position, bufferPosition, duration int) {
	l.mu.Lock()
	l.positions++
	l.mu.Unlock()
}
func (l *recordingPlayerListener) OnMediaItemChanged(info MediaInfo) {
	l.mu.Lock()
	l.mediaItems = append(l.mediaItems, info)
	l.mu.Unlock()
}
func (l *recordingPlayerListener) OnVolumeChanged(volume, maxVolume int) {
	l.mu.Lock()
	l.volumes++
	l.mu.Unlock()
}
func (l *recordingPlayerListener) OnError(code int, message string) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestManagerSendControlActionWritesToChannel(t *testing.T) {
	ch := &fakeChannel{}
	m := NewManager(ch, &recordingPlayerListener{}, 8, zerolog.Nop())
	defer m.Close()

	require.NoError(t, m.SendControlAction(ActionPlay, map[string]any{}))

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.sent, 1)
	assert.Contains(t, string(ch.sent[0]), `"action":"play"`)
}

func TestManagerHandleFrameDispatchesPlayerStatusChanged(t *testing.T) {
	ch := &fakeChannel{}
	listener := &recordingPlayerListener{}
	m := NewManager(ch, listener, 8, zerolog.Nop())
	defer m.Close()

	raw, err := EncodeCallback(ActionPlayerStatusChanged, map[string]any{
		"playback_state":      int(PlayerStatePlaying),
		"is_play_when_ready": true,
	})
	require.NoError(t, err)

	m.HandleFrame(raw)

	require.Eventually(t, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return len(listener.statuses) == 1
	}, time.Second, 10*time.Millisecond)
}
