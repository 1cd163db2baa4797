// Package channel implements the channel manager: it turns a
// transport.Request into a live transport.Channel (TCP, VTP-over-TCP, or
// system bus) and demultiplexes connection events back to whichever
// module registered interest in that channel.
package channel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/castengine/castplus/internal/transport"
)

// ModuleListener is the per-module callback surface the channel manager
// fans transport events out to. RTSP, the stream bridge, and the
// local-file bridge each implement one of these and register it when
// they open a channel for their module.
type ModuleListener interface {
	OnChannelOpened(ch transport.Channel)
	OnChannelConnectFailed(req transport.Request, err error)
	OnChannelError(ch transport.Channel, err error)
	OnChannelClosed(ch transport.Channel)
	OnDataReceived(ch transport.Channel, data []byte)
}

// mediaReadyMask bits, one per media-carrying module, tracking which
// channels have reached the open state. IsMediaChannelReady reports
// true once the bits the negotiated variant requires are set, matching
// the readiness gate the stream bridge waits on before it will start a
// cast.
const (
	mediaBitVideo = 1 << iota
	mediaBitAudio
)

// Manager owns every live channel created through it and routes
// transport events to the listener registered for that channel's
// module, replacing IChannelManagerListener's single fan-in callback
// with direct per-module dispatch.
type Manager struct {
	log zerolog.Logger

	busRegistry *transport.BusRegistry

	maxFrameBytes uint32
	sendBufBytes  int
	recvBufBytes  int

	// requireAudio controls IsMediaChannelReady's gate: mirror,
	// stream, and cooperation protocols project both the video and
	// audio channels, but hicar and super_launcher never open an
	// audio channel at all, so the gate must be satisfiable on video
	// alone for those variants.
	requireAudio bool

	connID atomic.Int64

	mu          sync.Mutex
	connections map[transport.RequestKey]transport.Channel
	listeners   map[transport.ModuleType]ModuleListener

	mediaMu   sync.Mutex
	mediaMask int
}

// NewManager constructs an empty channel manager. requireAudio selects
// which side of the protocol table's media-ready gate applies: true
// for variants that project both video and audio, false for
// video-only variants.
func NewManager(maxFrameBytes uint32, sendBufBytes, recvBufBytes int, requireAudio bool, log zerolog.Logger) *Manager {
	return &Manager{
		log:           log.With().Str("component", "channel-manager").Logger(),
		busRegistry:   transport.NewBusRegistry(),
		maxFrameBytes: maxFrameBytes,
		sendBufBytes:  sendBufBytes,
		recvBufBytes:  recvBufBytes,
		requireAudio:  requireAudio,
		connections:   make(map[transport.RequestKey]transport.Channel),
		listeners:     make(map[transport.ModuleType]ModuleListener),
	}
}

// IsRequestValid mirrors ChannelManager::IsRequestValid: a non-bus
// request needs a remote IP to dial or bind against, a bus request
// needs a remote device id to name its session after.
func IsRequestValid(req transport.Request) bool {
	if req.Link != transport.LinkSoftBus && req.Remote.IPAddress == "" {
		return false
	}
	if req.Link == transport.LinkSoftBus && req.Remote.DeviceID == "" {
		return false
	}
	return true
}

// CreateChannel validates req, builds the transport.Channel for its
// link type, registers listener for req.Module, and starts the
// connection on whichever side the role table in SPEC_FULL.md §4.2
// (and transport.Side) assigns it to. It returns the bound local port
// when the channel ends up listening, or 0 when it dials out.
func (m *Manager) CreateChannel(req transport.Request, listener ModuleListener) (transport.Channel, int, error) {
	return m.createChannel(req, listener, false)
}

// CreateReverseChannel swaps which side listens versus dials, relative
// to CreateChannel — mirroring the ChannelManager::CreateChannel
// overload used for the remote-control channel, where the normally
// Connect()-ing side instead binds a port that the caller reports back
// to its peer out of band.
func (m *Manager) CreateReverseChannel(req transport.Request, listener ModuleListener) (transport.Channel, int, error) {
	return m.createChannel(req, listener, true)
}

func (m *Manager) createChannel(req transport.Request, listener ModuleListener, reverse bool) (transport.Channel, int, error) {
	if listener == nil || !IsRequestValid(req) {
		return nil, 0, fmt.Errorf("channel: invalid request or nil listener for module %v", req.Module)
	}

	req.ConnectionID = int(m.connID.Add(1))

	m.mu.Lock()
	m.listeners[req.Module] = listener
	m.mu.Unlock()

	ch, err := m.buildChannel(req)
	if err != nil {
		return nil, 0, err
	}

	m.mu.Lock()
	m.connections[req.Key()] = ch
	m.mu.Unlock()

	side := transport.Side(req.Link, req.Role)
	if reverse {
		if side == transport.SideListen {
			side = transport.SideConnect
		} else {
			side = transport.SideListen
		}
	}

	m.log.Info().
		Str("module", req.Module.String()).
		Bool("reverse", reverse).
		Bool("listen", side == transport.SideListen).
		Msg("CreateChannel")

	port := 0
	switch conn := ch.(type) {
	case *transport.TCPConnection:
		if side == transport.SideListen {
			port, err = conn.StartListen(m)
		} else {
			err = conn.StartConnection(m)
		}
	case *transport.BusConnection:
		if side == transport.SideListen {
			err = conn.StartListen(m, fmt.Sprintf(":%d", req.LocalPort))
		} else {
			err = conn.StartConnection(m, fmt.Sprintf("ws://%s:%d", req.Remote.IPAddress, req.RemotePort))
		}
	default:
		err = fmt.Errorf("channel: unknown channel implementation for module %v", req.Module)
	}

	if err != nil {
		m.mu.Lock()
		delete(m.connections, req.Key())
		m.mu.Unlock()
		return nil, 0, err
	}

	return ch, port, nil
}

func (m *Manager) buildChannel(req transport.Request) (transport.Channel, error) {
	switch req.Link {
	case transport.LinkTCP, transport.LinkVTP:
		return transport.NewTCPConnection(req, m.maxFrameBytes, m.sendBufBytes, m.recvBufBytes, m.log), nil
	case transport.LinkSoftBus:
		return transport.NewBusConnection(req, m.busRegistry, m.log)
	default:
		return nil, fmt.Errorf("channel: invalid link type %v", req.Link)
	}
}

// DestroyChannel closes and forgets the channel that was created from
// the same request as ch.
func (m *Manager) DestroyChannel(ch transport.Channel) bool {
	key := ch.Request().Key()

	m.mu.Lock()
	conn, ok := m.connections[key]
	if ok {
		delete(m.connections, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	_ = conn.Close()
	return true
}

// DestroyModuleChannel closes the first channel registered for module.
func (m *Manager) DestroyModuleChannel(module transport.ModuleType) bool {
	m.mu.Lock()
	var found transport.Channel
	var foundKey transport.RequestKey
	for k, c := range m.connections {
		if k.Module == module {
			found, foundKey = c, k
			break
		}
	}
	if found != nil {
		delete(m.connections, foundKey)
	}
	m.mu.Unlock()

	if found == nil {
		return false
	}
	_ = found.Close()
	return true
}

// DestroyAllChannels closes every live channel.
func (m *Manager) DestroyAllChannels() {
	m.mu.Lock()
	all := make([]transport.Channel, 0, len(m.connections))
	for k, c := range m.connections {
		all = append(all, c)
		delete(m.connections, k)
	}
	m.mu.Unlock()

	for _, c := range all {
		_ = c.Close()
	}
}

func (m *Manager) listenerFor(module transport.ModuleType) ModuleListener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listeners[module]
}

func (m *Manager) markMediaOpen(module transport.ModuleType) {
	var bit int
	switch module {
	case transport.ModuleVideo:
		bit = mediaBitVideo
	case transport.ModuleAudio:
		bit = mediaBitAudio
	default:
		return
	}
	m.mediaMu.Lock()
	m.mediaMask |= bit
	m.mediaMu.Unlock()
}

func (m *Manager) markMediaClosed(module transport.ModuleType) {
	var bit int
	switch module {
	case transport.ModuleVideo:
		bit = mediaBitVideo
	case transport.ModuleAudio:
		bit = mediaBitAudio
	default:
		return
	}
	m.mediaMu.Lock()
	m.mediaMask &^= bit
	m.mediaMu.Unlock()
}

// IsMediaChannelReady reports whether the protocol's required media
// channels have reached the open state: video and audio together for
// variants that project both, video alone for the ones that don't.
func (m *Manager) IsMediaChannelReady() bool {
	m.mediaMu.Lock()
	defer m.mediaMu.Unlock()
	want := mediaBitVideo
	if m.requireAudio {
		want |= mediaBitAudio
	}
	return m.mediaMask&want == want
}

// The methods below implement transport.Listener; the manager is
// passed as the Listener to every Connection it creates, then
// redispatches to the module-specific ModuleListener.

func (m *Manager) OnConnectionOpened(ch transport.Channel) {
	module := ch.Request().Module
	m.markMediaOpen(module)
	if l := m.listenerFor(module); l != nil {
		l.OnChannelOpened(ch)
	}
}

func (m *Manager) OnConnectionConnectFailed(req transport.Request, err error) {
	if l := m.listenerFor(req.Module); l != nil {
		l.OnChannelConnectFailed(req, err)
	}
}

func (m *Manager) OnConnectionError(ch transport.Channel, err error) {
	if l := m.listenerFor(ch.Request().Module); l != nil {
		l.OnChannelError(ch, err)
	}
}

func (m *Manager) OnConnectionClosed(ch transport.Channel) {
	module := ch.Request().Module
	m.markMediaClosed(module)

	if module == transport.ModuleStream {
		m.log.Debug().Msg("stream channel closed")
	}

	if l := m.listenerFor(module); l != nil {
		l.OnChannelClosed(ch)
	}
}

func (m *Manager) OnDataReceived(ch transport.Channel, data []byte) {
	if l := m.listenerFor(ch.Request().Module); l != nil {
		l.OnDataReceived(ch, data)
	}
}
