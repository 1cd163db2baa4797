package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRunsMessagesInArrivalOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	h := NewHandler(func(msg Message) {
		mu.Lock()
		seen = append(seen, msg.What)
		mu.Unlock()
	})
	defer h.Stop(true)

	for i := 0; i < 5; i++ {
		h.SendWhat(i)
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

func TestHandlerRunsTaskMessages(t *testing.T) {
	done := make(chan struct{})
	h := NewHandler(func(msg Message) {})
	defer h.Stop(true)

	h.Send(Message{What: 1, Task: func() { close(done) }})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task message never ran")
	}
}

func TestHandlerSendDelayedWaitsBeforeRunning(t *testing.T) {
	var mu sync.Mutex
	var firedAt time.Time

	start := time.Now()
	h := NewHandler(func(msg Message) {
		mu.Lock()
		firedAt = time.Now()
		mu.Unlock()
	})
	defer h.Stop(true)

	h.SendDelayed(1, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !firedAt.IsZero()
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, firedAt.Sub(start), 45*time.Millisecond)
}

func TestHandlerRemoveWhatDropsQueuedMessage(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	h := NewHandler(func(msg Message) {
		mu.Lock()
		seen = append(seen, msg.What)
		mu.Unlock()
	})
	defer h.Stop(true)

	h.SendDelayed(1, 200*time.Millisecond)
	h.RemoveWhat(1)
	h.SendWhat(2)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2}, seen)
}

func TestHandlerStopUnsafeDiscardsQueue(t *testing.T) {
	var mu sync.Mutex
	var count int

	h := NewHandler(func(msg Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	h.SendDelayed(1, time.Hour)
	h.Stop(false)
	h.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestHandlerStopSafeDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var count int

	h := NewHandler(func(msg Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	h.SendWhat(1)
	h.SendWhat(2)
	h.Stop(true)
	h.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}
