package transport

// Channel is the uniform send/close contract the channel manager (C3)
// speaks to, regardless of the concrete transport underneath. This
// replaces the original's multiple-inheritance of Connection+Channel
// (SPEC_FULL.md §9 "Inheritance and multi-inheritance") with composition:
// a transport-specific Connection type implements this narrow interface,
// and nothing upstream of it needs to know which transport it is.
type Channel interface {
	// Send transmits one application payload. It may block up to the
	// underlying transport.
	Send(payload []byte) error
	// Close is idempotent.
	Close() error
	// Request returns the ChannelRequest this Channel was created from.
	Request() Request
}

// Listener receives transport-level events for one channel. The channel
// manager implements this and fans events out to the RTSP engine or
// stream bridge depending on module type.
type Listener interface {
	OnConnectionOpened(ch Channel)
	OnConnectionConnectFailed(req Request, err error)
	OnConnectionError(ch Channel, err error)
	OnConnectionClosed(ch Channel)
	OnDataReceived(ch Channel, data []byte)
}
