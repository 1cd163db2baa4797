package channel

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castengine/castplus/internal/transport"
)

func TestIsRequestValid(t *testing.T) {
	assert.False(t, IsRequestValid(transport.Request{Link: transport.LinkTCP}))
	assert.True(t, IsRequestValid(transport.Request{
		Link:   transport.LinkTCP,
		Remote: transport.DeviceInfo{IPAddress: "10.0.0.2"},
	}))
	assert.False(t, IsRequestValid(transport.Request{Link: transport.LinkSoftBus}))
	assert.True(t, IsRequestValid(transport.Request{
		Link:   transport.LinkSoftBus,
		Remote: transport.DeviceInfo{DeviceID: "peer-1"},
	}))
}

func TestCreateChannelRejectsInvalidRequest(t *testing.T) {
	m := NewManager(10*1024*1024, 4096, 4096, true, zerolog.Nop())
	_, _, err := m.CreateChannel(transport.Request{Link: transport.LinkTCP}, &stubListener{})
	assert.Error(t, err)
}

func TestCreateChannelRejectsNilListener(t *testing.T) {
	m := NewManager(10*1024*1024, 4096, 4096, true, zerolog.Nop())
	req := transport.Request{Link: transport.LinkTCP, Remote: transport.DeviceInfo{IPAddress: "127.0.0.1"}}
	_, _, err := m.CreateChannel(req, nil)
	assert.Error(t, err)
}

type stubListener struct {
	opened chan transport.Channel
	data   chan []byte
}

func newStubListener() *stubListener {
	return &stubListener{opened: make(chan transport.Channel, 4), data: make(chan []byte, 4)}
}

func (s *stubListener) OnChannelOpened(ch transport.Channel)                      { s.opened <- ch }
func (s *stubListener) OnChannelConnectFailed(req transport.Request, err error)   {}
func (s *stubListener) OnChannelError(ch transport.Channel, err error)            {}
func (s *stubListener) OnChannelClosed(ch transport.Channel)                      {}
func (s *stubListener) OnDataReceived(ch transport.Channel, data []byte) {
	if s.data != nil {
		s.data <- data
	}
}

func TestCreateChannelTCPListenThenConnect(t *testing.T) {
	// Two managers stand in for the two endpoints of one channel; a
	// single manager only ever registers one listener per module.
	serverMgr := NewManager(10*1024*1024, 4096, 4096, true, zerolog.Nop())
	clientMgr := NewManager(10*1024*1024, 4096, 4096, true, zerolog.Nop())

	sinkListener := newStubListener()
	sinkReq := transport.Request{
		Module: transport.ModuleRTSP,
		Link:   transport.LinkTCP,
		Role:   transport.RoleSource, // source+TCP => listen, per the role table
		Local:  transport.DeviceInfo{IPAddress: "127.0.0.1"},
		Remote: transport.DeviceInfo{IPAddress: "127.0.0.1"},
	}
	_, port, err := serverMgr.CreateChannel(sinkReq, sinkListener)
	require.NoError(t, err)
	require.NotZero(t, port)

	sourceListener := newStubListener()
	sourceReq := transport.Request{
		Module:     transport.ModuleRTSP,
		Link:       transport.LinkTCP,
		Role:       transport.RoleSink, // sink+TCP => connect
		Remote:     transport.DeviceInfo{IPAddress: "127.0.0.1"},
		RemotePort: port,
		IsReceiver: true,
	}
	_, _, err = clientMgr.CreateChannel(sourceReq, sourceListener)
	require.NoError(t, err)

	select {
	case <-sinkListener.opened:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sink open")
	}
	select {
	case <-sourceListener.opened:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for source open")
	}
}

func TestDestroyAllChannels(t *testing.T) {
	m := NewManager(10*1024*1024, 4096, 4096, true, zerolog.Nop())
	req := transport.Request{
		Module: transport.ModuleRTSP,
		Link:   transport.LinkTCP,
		Role:   transport.RoleSource,
		Local:  transport.DeviceInfo{IPAddress: "127.0.0.1"},
		Remote: transport.DeviceInfo{IPAddress: "127.0.0.1"},
	}
	_, _, err := m.CreateChannel(req, newStubListener())
	require.NoError(t, err)

	m.DestroyAllChannels()
	assert.Empty(t, m.connections)
}

func TestIsMediaChannelReadyRequiresBothVideoAndAudio(t *testing.T) {
	m := NewManager(10*1024*1024, 4096, 4096, true, zerolog.Nop())
	assert.False(t, m.IsMediaChannelReady())

	m.markMediaOpen(transport.ModuleVideo)
	assert.False(t, m.IsMediaChannelReady())

	m.markMediaOpen(transport.ModuleAudio)
	assert.True(t, m.IsMediaChannelReady())

	m.markMediaClosed(transport.ModuleAudio)
	assert.False(t, m.IsMediaChannelReady())
}

func TestIsMediaChannelReadyVideoOnlyVariant(t *testing.T) {
	m := NewManager(10*1024*1024, 4096, 4096, false, zerolog.Nop())
	assert.False(t, m.IsMediaChannelReady())

	m.markMediaOpen(transport.ModuleVideo)
	assert.True(t, m.IsMediaChannelReady())

	// Audio opening too (some variants still carry a best-effort audio
	// channel) doesn't change a video-only gate.
	m.markMediaOpen(transport.ModuleAudio)
	assert.True(t, m.IsMediaChannelReady())

	m.markMediaClosed(transport.ModuleVideo)
	assert.False(t, m.IsMediaChannelReady())
}
