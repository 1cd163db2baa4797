// Package stream implements the stream-mode remote-player bridge: a
// JSON action/callback protocol carried on the stream channel, served
// by a single FIFO worker goroutine per session, mirroring
// CastStreamManager's single handler thread and work queue.
package stream

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
)

// Event identifies which side of the action/callback protocol a frame
// belongs to: a source-issued control action, or a sink-issued callback.
type Event int

// Event kinds, matching MODULE_EVENT_ID_CONTROL_EVENT / _CALLBACK_EVENT.
const (
	EventControl Event = iota
	EventCallback
)

// Envelope is the top-level JSON object carried on the stream channel:
// {"data": {"action": "...", "param": {...}}}.
type Envelope struct {
	Data EnvelopeData `json:"data"`
}

// EnvelopeData is the "data" object inside an Envelope.
type EnvelopeData struct {
	Action         string          `json:"action,omitempty"`
	CallbackAction string          `json:"callback_action,omitempty"`
	Param          json.RawMessage `json:"param,omitempty"`
}

// ActionHandler processes one decoded action's param payload. param is
// handed in as a generic map; handlers decode it into their own typed
// struct with mapstructure, matching DATA[KEY_DATA]'s dynamic field set
// in the original (different actions carry unrelated param shapes).
type ActionHandler func(param map[string]any)

type queuedWork struct {
	handler ActionHandler
	param   map[string]any
}

// Dispatcher is the FIFO single-worker action queue: ProcessEvent
// decodes and enqueues, one goroutine drains it in order. This replaces
// workQueue_/condition_/handleThread_ with a buffered channel and one
// goroutine, since Go's channel already provides the wait/notify the
// original built by hand with a mutex and condition variable.
type Dispatcher struct {
	log      zerolog.Logger
	handlers map[string]ActionHandler

	mu      sync.Mutex
	queue   chan queuedWork
	stop    chan struct{}
	stopped bool
}

// NewDispatcher constructs a dispatcher with the given action-name to
// handler table. depth bounds the work queue; the original's queue was
// unbounded but a cast session's action rate is bursty, not unbounded,
// so a generous buffer (sized by the caller) plus DispatchFrame
// blocking while the queue is full behaves better under a misbehaving
// peer.
func NewDispatcher(handlers map[string]ActionHandler, depth int, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		log:      log.With().Str("component", "stream-dispatcher").Logger(),
		handlers: handlers,
		queue:    make(chan queuedWork, depth),
		stop:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for {
		select {
		case work := <-d.queue:
			work.handler(work.param)
		case <-d.stop:
			return
		}
	}
}

// Close stops accepting new work and lets the worker goroutine exit;
// work still in the queue may be dropped without running. This mirrors
// the original's isRunning_ flag plus a final condition_.notify_all()
// to unblock the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()
	close(d.stop)
}

// DispatchFrame decodes one stream-channel frame and enqueues the
// matching handler, mirroring ProcessActionsEvent. event selects
// whether "action" or "callback_action" names the handler.
func (d *Dispatcher) DispatchFrame(event Event, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("stream: invalid action envelope: %w", err)
	}

	action := env.Data.Action
	if event == EventCallback {
		action = env.Data.CallbackAction
	}
	if action == "" {
		return fmt.Errorf("stream: envelope missing action name")
	}

	handler, ok := d.handlers[action]
	if !ok {
		return fmt.Errorf("stream: unsupported action %q", action)
	}

	var param map[string]any
	if len(env.Data.Param) > 0 {
		if err := json.Unmarshal(env.Data.Param, &param); err != nil {
			return fmt.Errorf("stream: invalid param for action %q: %w", action, err)
		}
	}

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return fmt.Errorf("stream: dispatcher closed")
	}

	d.queue <- queuedWork{handler: handler, param: param}
	d.log.Debug().Str("action", action).Msg("enqueued action")
	return nil
}

// DecodeParam decodes a generic param map into a typed struct using
// mapstructure, the way the untyped DATA object's fields get pulled
// into concrete request types throughout the original's action handlers.
func DecodeParam(param map[string]any, out any) error {
	return mapstructure.Decode(param, out)
}

// EncodeAction builds the wire envelope for an outgoing control action.
func EncodeAction(action string, param any) ([]byte, error) {
	raw, err := json.Marshal(param)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Data: EnvelopeData{Action: action, Param: raw}})
}

// EncodeCallback builds the wire envelope for an outgoing callback.
func EncodeCallback(action string, param any) ([]byte, error) {
	raw, err := json.Marshal(param)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Data: EnvelopeData{CallbackAction: action, Param: raw}})
}
