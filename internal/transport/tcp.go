package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
)

// maxVideoAudioAccepts bounds the dual-accept listener (SPEC_FULL.md §8
// "only two accepts occur even if more peers connect"); netutil.LimitListener
// turns that boundary behavior into an enforced invariant rather than a race
// between the two Accept() calls racing a third peer.
const maxVideoAudioAccepts = 2

// TCPConnection is a length-framed TCP connection, implementing Channel.
// It owns at most one accepted peer socket, one receive goroutine, and —
// for the video/audio dual-accept case — one owned sibling connection.
type TCPConnection struct {
	id     string
	req    Request
	maxLen uint32
	sendSz int
	recvSz int
	log    zerolog.Logger

	mu        sync.Mutex
	listener  Listener
	nconn     net.Conn   // active connection (client dial, or the side's own accepted socket)
	rawLn     net.Listener
	audioConn *TCPConnection // owned sibling, video server side only
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTCPConnection constructs an unstarted connection for req.
func NewTCPConnection(req Request, maxFrameBytes uint32, sendBufBytes, recvBufBytes int, log zerolog.Logger) *TCPConnection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &TCPConnection{
		id:     id,
		req:    req,
		maxLen: maxFrameBytes,
		sendSz: sendBufBytes,
		recvSz: recvBufBytes,
		log:    log.With().Str("connId", id).Str("module", req.Module.String()).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Request implements Channel.
func (c *TCPConnection) Request() Request { return c.req }

// StartConnection dials the remote side (client role, per SPEC_FULL.md §4.2
// role table), mirroring TcpConnection::Connect.
func (c *TCPConnection) StartConnection(listener Listener) error {
	c.listener = listener

	if c.req.Remote.IPAddress == "" || c.req.RemotePort == 0 {
		return fmt.Errorf("transport: missing remote address/port")
	}

	addr := fmt.Sprintf("%s:%d", c.req.Remote.IPAddress, c.req.RemotePort)
	dialer := net.Dialer{
		LocalAddr: c.localAddr(),
	}

	nconn, err := dialer.DialContext(c.ctx, "tcp", addr)
	if err != nil {
		listener.OnConnectionConnectFailed(c.req, err)
		return err
	}

	if tc, ok := nconn.(*net.TCPConn); ok {
		_ = tuneBuffers(tc, c.sendSz, c.recvSz)
	}

	c.mu.Lock()
	c.nconn = nconn
	c.mu.Unlock()

	listener.OnConnectionOpened(c)

	if c.req.IsReceiver {
		c.spawnReceive(nconn)
	}

	return nil
}

func (c *TCPConnection) localAddr() net.Addr {
	if c.req.Local.IPAddress == "" && c.req.LocalPort == 0 {
		return nil
	}
	return &net.TCPAddr{IP: net.ParseIP(c.req.Local.IPAddress), Port: c.req.LocalPort}
}

// StartListen binds and listens (server role), returning the bound port.
// When the module is video and the peer isn't HiCar, it spawns the
// dual-accept loop instead of a single accept, mirroring
// TcpConnection::StartListen.
func (c *TCPConnection) StartListen(listener Listener) (int, error) {
	c.listener = listener

	lc := net.ListenConfig{Control: listenControl}
	addr := fmt.Sprintf("%s:%d", c.req.Local.IPAddress, c.req.LocalPort)

	ln, err := lc.Listen(c.ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}

	dualAccept := c.req.Module == ModuleVideo && c.req.Remote.DeviceType != DeviceTypeHiCar
	if dualAccept {
		ln = netutil.LimitListener(ln, maxVideoAudioAccepts)
	}

	c.mu.Lock()
	c.rawLn = ln
	c.mu.Unlock()

	port := ln.Addr().(*net.TCPAddr).Port

	c.wg.Add(1)
	if dualAccept {
		go c.acceptVideoAndAudio(ln)
	} else {
		go c.acceptOnce(ln)
	}

	return port, nil
}

// acceptVideoAndAudio performs exactly two accepts, attributing the first
// to video and the second to an owned audio sibling, per SPEC_FULL.md §4.2
// "Dual-accept for media".
func (c *TCPConnection) acceptVideoAndAudio(ln net.Listener) {
	defer c.wg.Done()
	c.accept(ln)
	c.accept(ln)
}

func (c *TCPConnection) acceptOnce(ln net.Listener) {
	defer c.wg.Done()
	c.accept(ln)
}

func (c *TCPConnection) accept(ln net.Listener) {
	nconn, err := ln.Accept()
	if err != nil {
		select {
		case <-c.ctx.Done():
			return // clean shutdown, not a failure to surface
		default:
		}
		c.listener.OnConnectionConnectFailed(c.req, err)
		return
	}

	if tc, ok := nconn.(*net.TCPConn); ok {
		_ = tuneBuffers(tc, c.sendSz, c.recvSz)
	}

	remotePort := nconn.RemoteAddr().(*net.TCPAddr).Port

	isAudioPeer := c.req.Module == ModuleVideo &&
		remotePort != c.req.RemotePort &&
		c.req.Remote.DeviceType != DeviceTypeHiCar

	if isAudioPeer {
		audio := c.newAudioSibling(nconn)
		c.mu.Lock()
		c.audioConn = audio
		c.mu.Unlock()
		c.listener.OnConnectionOpened(audio)
		if audio.req.IsReceiver {
			audio.spawnReceive(nconn)
		}
		return
	}

	c.mu.Lock()
	c.nconn = nconn
	c.mu.Unlock()
	c.listener.OnConnectionOpened(c)
	if c.req.IsReceiver {
		c.spawnReceive(nconn)
	}
}

// newAudioSibling builds the owned twin connection, switching ModuleType
// to audio, per SetAudioConnection.
func (c *TCPConnection) newAudioSibling(nconn net.Conn) *TCPConnection {
	audioReq := c.req
	audioReq.Module = ModuleAudio

	sib := &TCPConnection{
		id:       uuid.NewString(),
		req:      audioReq,
		maxLen:   c.maxLen,
		sendSz:   c.sendSz,
		recvSz:   c.recvSz,
		log:      c.log.With().Str("sibling", "audio").Logger(),
		listener: c.listener,
		nconn:    nconn,
	}
	sib.ctx, sib.cancel = context.WithCancel(c.ctx)
	return sib
}

func (c *TCPConnection) spawnReceive(nconn net.Conn) {
	c.wg.Add(1)
	go c.readLoop(nconn)
}

// readLoop is the per-socket receive goroutine (ReadLooper/HandleReceivedData).
func (c *TCPConnection) readLoop(nconn net.Conn) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		frame, err := ReadFrame(nconn, c.req.Module, c.maxLen)
		if err != nil {
			select {
			case <-c.ctx.Done():
				return // Close() already triggered teardown, don't double-report
			default:
			}
			c.listener.OnConnectionError(c, err)
			return
		}

		c.listener.OnDataReceived(c, frame)
	}
}

// Send implements Channel. It frames payload and writes header+body in a
// single Write call, matching TcpConnection::Send.
func (c *TCPConnection) Send(payload []byte) error {
	c.mu.Lock()
	nconn := c.nconn
	c.mu.Unlock()

	if nconn == nil {
		return fmt.Errorf("transport: connection not established")
	}
	if len(payload) == 0 {
		return fmt.Errorf("transport: empty payload")
	}

	_, err := nconn.Write(EncodeFrame(payload))
	return err
}

// Close implements Channel. It is idempotent: it signals the receive
// loop, closes the peer/listening sockets, closes any owned audio
// sibling, and notifies the listener exactly once.
func (c *TCPConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	audio := c.audioConn
	nconn := c.nconn
	ln := c.rawLn
	c.mu.Unlock()

	c.cancel()

	if audio != nil {
		_ = audio.Close()
	}
	if nconn != nil {
		_ = nconn.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}

	c.wg.Wait()

	if c.listener != nil {
		c.listener.OnConnectionClosed(c)
	}
	return nil
}
