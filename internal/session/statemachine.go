package session

import "github.com/rs/zerolog"

// State is one node in a hierarchical state machine. HandleMessage
// returns false to let the message fall through to ParentState, the
// same chain-of-responsibility a StateMachine walks in HandleMessage.
type State interface {
	Enter()
	Exit()
	HandleMessage(msg Message) bool
	ParentState() State
}

// BaseState gives concrete states a default no-op Enter/Exit and a
// fixed parent, so a leaf state only has to implement HandleMessage.
type BaseState struct {
	Parent State
}

func (s *BaseState) Enter()              {}
func (s *BaseState) Exit()               {}
func (s *BaseState) ParentState() State  { return s.Parent }

// StateMachine layers hierarchical-state dispatch and deferred-message
// replay on top of a Handler's serialized message loop, the same split
// of responsibility the original's StateMachine has over Handler.
type StateMachine struct {
	handler  *Handler
	log      zerolog.Logger
	current  State
	deferred []Message
}

// NewStateMachine builds a StateMachine with no current state; call
// TransferState to enter one.
func NewStateMachine(log zerolog.Logger) *StateMachine {
	sm := &StateMachine{log: log.With().Str("component", "session-statemachine").Logger()}
	sm.handler = NewHandler(sm.handleMessage)
	return sm
}

// Send enqueues a message for the state machine's own goroutine.
func (sm *StateMachine) Send(msg Message) { sm.handler.Send(msg) }

// SendWhat enqueues a bare What code to run immediately.
func (sm *StateMachine) SendWhat(what int) { sm.handler.SendWhat(what) }

// Stop halts the underlying handler loop.
func (sm *StateMachine) Stop(safe bool) { sm.handler.Stop(safe) }

// Wait blocks until the handler loop has exited.
func (sm *StateMachine) Wait() { sm.handler.Wait() }

// CurrentState returns the state most recently transitioned into.
func (sm *StateMachine) CurrentState() State { return sm.current }

func (sm *StateMachine) handleMessage(msg Message) {
	cur := sm.current
	for cur != nil {
		if cur.HandleMessage(msg) {
			return
		}
		cur = cur.ParentState()
	}
	sm.log.Warn().Int("what", msg.What).Msg("message unhandled in any state")
}

// TransferState exits every state between the current one and their
// common ancestor with state, then enters every state between that
// ancestor and state, innermost-last — Android HSM semantics. Any
// messages deferred during the transition are replayed once the new
// state is active.
func (sm *StateMachine) TransferState(state State) {
	if state == sm.current {
		return
	}

	var exiting []State
	for cur := sm.current; cur != nil; cur = cur.ParentState() {
		exiting = append(exiting, cur)
	}

	var entering []State
	for cur := state; cur != nil; cur = cur.ParentState() {
		entering = append(entering, cur)
	}

	for len(exiting) > 0 && len(entering) > 0 && exiting[len(exiting)-1] == entering[len(entering)-1] {
		exiting = exiting[:len(exiting)-1]
		entering = entering[:len(entering)-1]
	}

	sm.current = state

	for _, s := range exiting {
		s.Exit()
	}
	for i := len(entering) - 1; i >= 0; i-- {
		entering[i].Enter()
	}

	sm.processDeferredMessages()
}

// DeferMessage holds msg for replay against the post-transition state,
// used by a state's HandleMessage when it needs a transition to
// complete first (e.g. waiting on SETUP to finish before PLAY).
func (sm *StateMachine) DeferMessage(msg Message) {
	sm.deferred = append(sm.deferred, msg)
}

func (sm *StateMachine) processDeferredMessages() {
	pending := sm.deferred
	sm.deferred = nil
	for _, msg := range pending {
		if sm.current != nil {
			sm.current.HandleMessage(msg)
		}
	}
}
