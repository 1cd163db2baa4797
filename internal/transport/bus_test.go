package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionNameIsDeterministic(t *testing.T) {
	name, err := CreateSessionName(ModuleStream, 7)
	require.NoError(t, err)
	assert.Equal(t, "CastPlusNetSessionCAST_STREAM7", name)

	again, err := CreateSessionName(ModuleStream, 7)
	require.NoError(t, err)
	assert.Equal(t, name, again)
}

func TestCreateSessionNameRejectsUnknownModule(t *testing.T) {
	_, err := CreateSessionName(ModuleType(99), 1)
	assert.Error(t, err)
}

func TestModuleSessionTypeMapping(t *testing.T) {
	assert.Equal(t, BusPayloadStream, ModuleSessionType(ModuleVideo))
	assert.Equal(t, BusPayloadStream, ModuleSessionType(ModuleAudio))
	assert.Equal(t, BusPayloadFile, ModuleSessionType(ModuleUIFiles))
	assert.Equal(t, BusPayloadBytes, ModuleSessionType(ModuleStream))
	assert.Equal(t, BusPayloadBytes, ModuleSessionType(ModuleRTSP))
}

type recordingListener struct {
	mu      sync.Mutex
	opened  []Channel
	closed  []Channel
	failed  []Request
	errored []error
	data    [][]byte

	openedCh chan struct{}
	dataCh   chan []byte
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		openedCh: make(chan struct{}, 8),
		dataCh:   make(chan []byte, 8),
	}
}

func (l *recordingListener) OnConnectionOpened(ch Channel) {
	l.mu.Lock()
	l.opened = append(l.opened, ch)
	l.mu.Unlock()
	l.openedCh <- struct{}{}
}

func (l *recordingListener) OnConnectionConnectFailed(req Request, err error) {
	l.mu.Lock()
	l.failed = append(l.failed, req)
	l.mu.Unlock()
}

func (l *recordingListener) OnConnectionError(ch Channel, err error) {
	l.mu.Lock()
	l.errored = append(l.errored, err)
	l.mu.Unlock()
}

func (l *recordingListener) OnConnectionClosed(ch Channel) {
	l.mu.Lock()
	l.closed = append(l.closed, ch)
	l.mu.Unlock()
}

func (l *recordingListener) OnDataReceived(ch Channel, data []byte) {
	l.mu.Lock()
	l.data = append(l.data, data)
	l.mu.Unlock()
	l.dataCh <- data
}

func TestBusConnectionRoundTrip(t *testing.T) {
	registry := NewBusRegistry()
	log := zerolog.Nop()

	serverReq := Request{Module: ModuleStream, Role: RoleSink, Remote: DeviceInfo{SessionID: 42}}
	server, err := NewBusConnection(serverReq, registry, log)
	require.NoError(t, err)

	serverListener := newRecordingListener()
	require.NoError(t, server.StartListen(serverListener, "127.0.0.1:0"))

	// StartListen's net.Listen binds an ephemeral port asynchronously from
	// the caller's perspective only in that the HTTP server goroutine needs
	// a moment to start Serve(); give it a short grace window.
	time.Sleep(50 * time.Millisecond)

	clientReq := Request{Module: ModuleStream, Role: RoleSource, Remote: DeviceInfo{SessionID: 42}}
	client, err := NewBusConnection(clientReq, registry, log)
	require.NoError(t, err)

	clientListener := newRecordingListener()

	addr := server.listenerAddr()
	require.NotEmpty(t, addr)

	err = client.StartConnection(clientListener, "ws://"+addr)
	require.NoError(t, err)

	select {
	case <-clientListener.openedCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client open")
	}
	select {
	case <-serverListener.openedCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server open")
	}

	require.NoError(t, client.Send([]byte("hello")))

	select {
	case got := <-serverListener.dataCh:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server data")
	}

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
}

func TestBusConnectionCloseIsIdempotent(t *testing.T) {
	registry := NewBusRegistry()
	req := Request{Module: ModuleStream, Remote: DeviceInfo{SessionID: 1}}
	c, err := NewBusConnection(req, registry, zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
