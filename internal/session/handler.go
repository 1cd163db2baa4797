package session

import (
	"container/heap"
	"sync"
	"time"
)

// messageHeap orders pending messages by When, soonest first, replacing
// the original's sort-then-pop-from-back queue with container/heap.
// Messages with equal When are not kept in insertion order.
type messageHeap []Message

func (h messageHeap) Len() int            { return len(h) }
func (h messageHeap) Less(i, j int) bool  { return h[i].When.Before(h[j].When) }
func (h messageHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *messageHeap) Push(x interface{}) { *h = append(*h, x.(Message)) }
func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// HandleFunc processes one dequeued Message. It is called on the
// Handler's own goroutine, never concurrently with itself.
type HandleFunc func(Message)

// Handler runs a single-goroutine, deadline-ordered message loop, the
// same role the original's abstract Handler base class plays for every
// session-side subsystem that needs serialized, possibly-delayed work.
type Handler struct {
	handle HandleFunc

	mu            sync.Mutex
	queue         messageHeap
	wake          chan struct{}
	stop          bool
	stopWhenEmpty bool
	done          chan struct{}
}

// NewHandler starts a Handler's loop goroutine, dispatching every
// dequeued Message to handle.
func NewHandler(handle HandleFunc) *Handler {
	h := &Handler{
		handle: handle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	heap.Init(&h.queue)
	go h.loop()
	return h
}

func (h *Handler) loop() {
	defer close(h.done)
	for {
		h.mu.Lock()
		if h.shouldQuitLocked() {
			h.mu.Unlock()
			return
		}

		if len(h.queue) == 0 {
			h.mu.Unlock()
			<-h.wake
			continue
		}

		wait := time.Until(h.queue[0].When)
		if wait > 0 {
			h.mu.Unlock()
			select {
			case <-time.After(wait):
			case <-h.wake:
			}
			continue
		}

		msg := heap.Pop(&h.queue).(Message)
		h.mu.Unlock()

		h.handleInner(msg)
	}
}

func (h *Handler) shouldQuitLocked() bool {
	return h.stop || (h.stopWhenEmpty && len(h.queue) == 0)
}

func (h *Handler) handleInner(msg Message) {
	if msg.Task != nil {
		msg.Task()
		return
	}
	if msg.What < 0 {
		return
	}
	h.handle(msg)
}

func (h *Handler) notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Send enqueues msg, replacing any previously queued task message with
// the same What (the original's find-then-erase-then-push dedup).
func (h *Handler) Send(msg Message) {
	if msg.When.IsZero() {
		msg.When = time.Now()
	}

	h.mu.Lock()
	for i, existing := range h.queue {
		if existing.sameSlot(msg) {
			h.queue[i] = h.queue[len(h.queue)-1]
			h.queue = h.queue[:len(h.queue)-1]
			heap.Init(&h.queue)
			break
		}
	}
	heap.Push(&h.queue, msg)
	h.mu.Unlock()

	h.notify()
}

// SendWhat enqueues a bare What code to run immediately.
func (h *Handler) SendWhat(what int) {
	h.Send(NewMessage(what))
}

// SendDelayed enqueues a What code to run no sooner than delay from now.
func (h *Handler) SendDelayed(what int, delay time.Duration) {
	h.Send(NewMessageDelayed(what, delay))
}

// RemoveWhat drops every queued message carrying the given What.
func (h *Handler) RemoveWhat(what int) {
	h.mu.Lock()
	filtered := h.queue[:0]
	for _, m := range h.queue {
		if m.What != what {
			filtered = append(filtered, m)
		}
	}
	h.queue = filtered
	heap.Init(&h.queue)
	h.mu.Unlock()
	h.notify()
}

// RemoveAll drops every queued message without stopping the loop.
func (h *Handler) RemoveAll() {
	h.mu.Lock()
	h.queue = h.queue[:0]
	h.mu.Unlock()
}

// Stop halts the loop. If safe is true, any already-queued messages
// still run before the loop exits; if false, the loop exits immediately
// and unprocessed messages are discarded.
func (h *Handler) Stop(safe bool) {
	h.mu.Lock()
	if safe {
		h.stopWhenEmpty = true
	} else {
		h.stop = true
	}
	h.mu.Unlock()
	h.notify()
}

// IsQuitting reports whether Stop has been called.
func (h *Handler) IsQuitting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop || h.stopWhenEmpty
}

// Wait blocks until the loop goroutine has exited.
func (h *Handler) Wait() {
	<-h.done
}
