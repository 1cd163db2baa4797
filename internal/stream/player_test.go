package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	control  []string
	callback []string
}

func (s *recordingSink) SendControlAction(action string, param any) error {
	s.mu.Lock()
	s.control = append(s.control, action)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) SendCallbackAction(action string, param any) error {
	s.mu.Lock()
	s.callback = append(s.callback, action)
	s.mu.Unlock()
	return nil
}

func TestSetStateReflectsImmediately(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayerReflector(sink)

	require.NoError(t, p.SetState(PlayerStatePlaying, true))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{ActionPlayerStatusChanged}, sink.callback)
	assert.Equal(t, PlayerStatePlaying, p.State())
}

func TestPositionEchoFiresOnTicker(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayerReflector(sink)
	p.SetPosition(10, 20, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.StartPositionEcho(ctx, 20*time.Millisecond)
	defer p.StopPositionEcho()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.callback) >= 1
	}, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, ActionPositionChanged, sink.callback[0])
}
