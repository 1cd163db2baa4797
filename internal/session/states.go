package session

// idleState is the root state: no channel is open yet, or the previous
// one just closed. It absorbs whatChannelClosed/whatDeviceGone as
// no-ops so child states can fall through to it without every leaf
// state having to handle teardown itself.
type idleState struct {
	BaseState
	session *Session
}

func (s *idleState) HandleMessage(msg Message) bool {
	switch msg.What {
	case whatChannelOpened:
		s.session.sm.TransferState(s.session.negotiatingState)
		return true
	case whatChannelClosed, whatDeviceGone, whatChannelConnectFailed, whatStreamDeviceDisconnected:
		return true
	default:
		return false
	}
}

// negotiatingState covers the window between the RTSP channel opening
// and OnNegotiated firing.
type negotiatingState struct {
	BaseState
	session *Session
}

func (s *negotiatingState) HandleMessage(msg Message) bool {
	switch msg.What {
	case whatNegotiated:
		s.session.sm.TransferState(s.session.activeState)
		return true
	case whatChannelConnectFailed:
		s.session.sm.TransferState(s.session.idleState)
		return true
	default:
		return false
	}
}

// activeState covers a fully negotiated, live session.
type activeState struct {
	BaseState
	session *Session
}

func (s *activeState) HandleMessage(msg Message) bool {
	switch msg.What {
	case whatDeviceGone, whatChannelClosed:
		s.session.listener.OnDeviceGone()
		s.session.sm.TransferState(s.session.closedState)
		return true
	case whatStreamDeviceDisconnected:
		// The stream sink's media channel dropped, but the control
		// channel is still up; stay active and let the caller decide
		// whether to wait for a reconnect or tear the session down.
		s.session.listener.OnStreamDeviceDisconnected()
		return true
	default:
		return false
	}
}

// closedState is terminal; every message is absorbed without further
// dispatch so a session that outlives its last channel doesn't log
// spurious "unhandled message" warnings.
type closedState struct {
	BaseState
	session *Session
}

func (s *closedState) HandleMessage(msg Message) bool { return true }
