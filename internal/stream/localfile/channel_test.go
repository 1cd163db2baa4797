package localfile

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castengine/castplus/internal/transport"
)

type pipeChannel struct {
	req  transport.Request
	peer func([]byte)
}

func (c *pipeChannel) Send(payload []byte) error {
	c.peer(payload)
	return nil
}
func (c *pipeChannel) Close() error               { return nil }
func (c *pipeChannel) Request() transport.Request { return c.req }

func TestServerAnswersRangeRequestFromClient(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefghij"), 100) // 1000 bytes

	var server *Server
	var client *Client

	serverChannel := &pipeChannel{peer: func(b []byte) { client.HandleFrame(b) }}
	clientChannel := &pipeChannel{peer: func(b []byte) { server.HandleFrame(b) }}

	server = NewServer(serverChannel, zerolog.Nop())
	client = NewClient(clientChannel, zerolog.Nop())

	fileID := server.AddFile("/media/clip.bin", int64(len(content)), bytes.NewReader(content))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	body, err := client.Request(ctx, fileID, 10, 29)
	require.NoError(t, err)
	assert.Equal(t, content[10:30], body)
}

func TestServerRejectsUnknownFile(t *testing.T) {
	var server *Server
	var client *Client
	serverChannel := &pipeChannel{peer: func(b []byte) { client.HandleFrame(b) }}
	clientChannel := &pipeChannel{peer: func(b []byte) { server.HandleFrame(b) }}
	server = NewServer(serverChannel, zerolog.Nop())
	client = NewClient(clientChannel, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Request(ctx, "not-registered", 0, 9)
	assert.Error(t, err)
}

func TestLocalDataSourceOverChannelIntegration(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 50) // 500 bytes

	var server *Server
	var client *Client
	serverChannel := &pipeChannel{peer: func(b []byte) { client.HandleFrame(b) }}
	clientChannel := &pipeChannel{peer: func(b []byte) { server.HandleFrame(b) }}
	server = NewServer(serverChannel, zerolog.Nop())
	client = NewClient(clientChannel, zerolog.Nop())

	fileID := server.AddFile("/media/song.bin", int64(len(content)), bytes.NewReader(content))

	ds := NewLocalDataSource(testConfig(), fileID, int64(len(content)), client.Requester())

	out := make([]byte, 20)
	n, err := ds.ReadAt(context.Background(), 0, out)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, content[:20], out)
}
