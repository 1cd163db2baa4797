package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/randutil"
	"github.com/rs/zerolog"
)

// BusPayloadKind is the payload kind negotiated for a bus session.
type BusPayloadKind int

// Payload kinds.
const (
	BusPayloadBytes BusPayloadKind = iota
	BusPayloadStream
	BusPayloadFile
)

// sessionNamePrefix is the fixed prefix every bus session name carries.
const sessionNamePrefix = "CastPlusNetSession"

// moduleSessionFactor returns the MODULE_FACTOR token used to build a
// session name, per SPEC_FULL.md §6. UI_FILES/UI_BYTES are the
// supplemented module kinds named in SPEC_FULL.md §2c.
func moduleSessionFactor(m ModuleType) (string, bool) {
	switch m {
	case ModuleAuth:
		return "AUTH", true
	case ModuleRTSP:
		return "RTSP", true
	case ModuleRTCP:
		return "RTCP", true
	case ModuleVideo:
		return "VIDEO", true
	case ModuleAudio:
		return "AUDIO", true
	case ModuleRemoteControl:
		return "CONTROL", true
	case ModuleStream:
		return "CAST_STREAM", true
	case ModuleUIFiles:
		return "FILES", true
	case ModuleUIBytes:
		return "BYTES", true
	default:
		return "", false
	}
}

// ModuleSessionType maps a module kind to the payload kind the bus will
// carry for it, per SPEC_FULL.md §4.2's "Module→kind mapping" table,
// completed with the ui_files/ui_bytes rows from SPEC_FULL.md §2c.
func ModuleSessionType(m ModuleType) BusPayloadKind {
	switch m {
	case ModuleAuth, ModuleRTSP, ModuleRTCP, ModuleRemoteControl, ModuleStream:
		return BusPayloadBytes
	case ModuleVideo, ModuleAudio:
		return BusPayloadStream
	case ModuleUIFiles:
		return BusPayloadFile
	case ModuleUIBytes:
		return BusPayloadBytes
	default:
		return BusPayloadBytes
	}
}

// CreateSessionName derives the deterministic session name for a module
// and numeric session id, matching SoftBusConnection::CreateSessionName.
func CreateSessionName(module ModuleType, sessionID int) (string, error) {
	factor, ok := moduleSessionFactor(module)
	if !ok {
		return "", fmt.Errorf("transport: no session-name factor for module %v", module)
	}
	return fmt.Sprintf("%s%s%d", sessionNamePrefix, factor, sessionID), nil
}

// BusRegistry is the process-wide session registry the real softbus
// implementation keeps as module-level state (connectionMap_ /
// sessionIdToNameMap_ in softbus_connection.cpp). SPEC_FULL.md §9 asks
// for an explicit, constructible singleton rather than bare package
// globals so tests can use their own instance; a package-level Default()
// registry plays the role of the process-wide instance in production.
type BusRegistry struct {
	mu          sync.Mutex
	bySession   map[string]*BusConnection // session name -> connection
	idToSession map[int]string            // opaque session id -> session name

	upgrader websocket.Upgrader
	randGen  randutil.SequenceGenerator
}

// NewBusRegistry constructs an empty registry.
func NewBusRegistry() *BusRegistry {
	return &BusRegistry{
		bySession:   make(map[string]*BusConnection),
		idToSession: make(map[int]string),
		upgrader:    websocket.Upgrader{},
		randGen:     randutil.NewMathRandomGenerator(),
	}
}

var defaultRegistry = NewBusRegistry()

// Default returns the process-wide bus registry.
func Default() *BusRegistry { return defaultRegistry }

func (r *BusRegistry) register(name string, c *BusConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[name] = c
}

func (r *BusRegistry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, name)
}

func (r *BusRegistry) bindSessionID(id int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idToSession[id] = name
}

func (r *BusRegistry) unbindSessionID(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.idToSession, id)
}

func (r *BusRegistry) lookupBySessionID(id int) (*BusConnection, bool) {
	r.mu.Lock()
	name, ok := r.idToSession[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	conn, ok := r.bySession[name]
	r.mu.Unlock()
	return conn, ok
}

// allocateSessionID stands in for the opaque id the real softbus hands
// back on OpenSoftBusSession; non-cryptographic randomness is
// sufficient since this id has no security role, only a
// disambiguation one (see DESIGN.md for why this isn't crypto/rand).
func (r *BusRegistry) allocateSessionID() int {
	return int(r.randGen.Uint32() & 0x7fffffff)
}

// BusConnection is an opaque-session-bus Channel, addressed by a
// deterministic session name and backed by a websocket connection —
// the closest idiomatic Go analogue to a message-framed, full-duplex,
// session-addressed transport (see DESIGN.md / SPEC_FULL.md §2b).
type BusConnection struct {
	req         Request
	sessionName string
	sessionID   int
	payloadKind BusPayloadKind
	activelyOpen bool

	registry *BusRegistry
	listener Listener
	log      zerolog.Logger

	mu            sync.Mutex
	ws            *websocket.Conn
	ln            net.Listener
	closed        bool
	passiveClose  bool
	writeMu       sync.Mutex
}

// listenerAddr returns the bound address after a successful StartListen,
// for tests and for callers that bound to an ephemeral port.
func (c *BusConnection) listenerAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return ""
	}
	return c.ln.Addr().String()
}

// NewBusConnection constructs an unstarted bus connection for req.
func NewBusConnection(req Request, registry *BusRegistry, log zerolog.Logger) (*BusConnection, error) {
	name, err := CreateSessionName(req.Module, req.Remote.SessionID)
	if err != nil {
		return nil, err
	}

	return &BusConnection{
		req:          req,
		sessionName:  name,
		payloadKind:  ModuleSessionType(req.Module),
		registry:     registry,
		log:          log.With().Str("session", name).Logger(),
		activelyOpen: req.Role == RoleSource,
	}, nil
}

// Request implements Channel.
func (c *BusConnection) Request() Request { return c.req }

// StartListen registers this connection under its session name and
// serves a websocket upgrade at the given address, playing the "server"
// side of the role table (source opens the bus listener).
func (c *BusConnection) StartListen(listener Listener, addr string) error {
	c.listener = listener
	c.registry.register(c.sessionName, c)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.ln = ln
	c.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/"+c.sessionName, func(w http.ResponseWriter, r *http.Request) {
		ws, err := c.registry.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.onAccepted(ws)
	})

	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(ln) }()
	return nil
}

// StartConnection actively dials the peer's bus listener, playing the
// "client" side of the role table (sink/source per link, see the role
// table in SPEC_FULL.md §4.2).
func (c *BusConnection) StartConnection(listener Listener, url string) error {
	c.listener = listener
	c.registry.register(c.sessionName, c)

	ws, _, err := websocket.DefaultDialer.Dial(url+"/"+c.sessionName, nil)
	if err != nil {
		listener.OnConnectionConnectFailed(c.req, err)
		return err
	}

	sessionID := c.registry.allocateSessionID()
	c.bindSession(sessionID)
	listener.OnConnectionOpened(c)
	c.spawnReceive(ws)
	return nil
}

func (c *BusConnection) onAccepted(ws *websocket.Conn) {
	sessionID := c.registry.allocateSessionID()
	c.bindSession(sessionID)
	c.listener.OnConnectionOpened(c)
	c.spawnReceive(ws)
}

func (c *BusConnection) bindSession(id int) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
	c.registry.bindSessionID(id, c.sessionName)
}

func (c *BusConnection) spawnReceive(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				c.mu.Lock()
				passive := c.passiveClose
				c.mu.Unlock()
				if !passive {
					c.listener.OnConnectionError(c, err)
				}
				return
			}
			c.listener.OnDataReceived(c, data)
		}
	}()
}

// Send implements Channel.
func (c *BusConnection) Send(payload []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return fmt.Errorf("transport: bus session not open")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.BinaryMessage, payload)
}

// Close implements Channel and is idempotent, matching
// SoftBusConnection::CloseConnection's passive-close-flag short circuit.
func (c *BusConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	ln := c.ln
	sessionID := c.sessionID
	passive := c.passiveClose
	c.mu.Unlock()

	c.registry.unregister(c.sessionName)
	if sessionID != 0 {
		c.registry.unbindSessionID(sessionID)
	}

	if ws != nil && !passive {
		_ = ws.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}

	if c.listener != nil {
		c.listener.OnConnectionClosed(c)
	}
	return nil
}

// onPeerClosed marks this connection as having been closed by the peer,
// matching OnConnectionSessionClosed's SetPassiveCloseFlag(true) before
// tearing the connection down, so Close() does not redundantly signal
// the already-gone peer.
func (c *BusConnection) onPeerClosed() {
	c.mu.Lock()
	c.passiveClose = true
	c.mu.Unlock()
	_ = c.Close()
}
