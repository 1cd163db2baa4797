package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchFrameRunsHandlerInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	handlers := map[string]ActionHandler{
		"tick": func(param map[string]any) {
			mu.Lock()
			seen = append(seen, int(param["n"].(float64)))
			mu.Unlock()
		},
	}

	d := NewDispatcher(handlers, 16, zerolog.Nop())
	defer d.Close()

	for i := 0; i < 5; i++ {
		raw, err := EncodeAction("tick", map[string]any{"n": i})
		require.NoError(t, err)
		require.NoError(t, d.DispatchFrame(EventControl, raw))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestDispatchFrameRejectsUnknownAction(t *testing.T) {
	d := NewDispatcher(map[string]ActionHandler{}, 4, zerolog.Nop())
	defer d.Close()

	raw, err := EncodeAction("unknown", map[string]any{})
	require.NoError(t, err)
	assert.Error(t, d.DispatchFrame(EventControl, raw))
}

func TestDispatchFrameRejectsGarbage(t *testing.T) {
	d := NewDispatcher(map[string]ActionHandler{}, 4, zerolog.Nop())
	defer d.Close()
	assert.Error(t, d.DispatchFrame(EventControl, []byte("not json")))
}

func TestEncodeCallbackUsesCallbackActionKey(t *testing.T) {
	raw, err := EncodeCallback("position_changed", map[string]any{"position": 5})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"callback_action":"position_changed"`)
}

func TestDecodeParam(t *testing.T) {
	var out struct {
		Position int `mapstructure:"position"`
	}
	require.NoError(t, DecodeParam(map[string]any{"position": 42}, &out))
	assert.Equal(t, 42, out.Position)
}
