package localfile

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/castengine/castplus/internal/transport"
)

// ServedFile is one local file the Server will answer ranged GET
// requests against, addressed by its base64 file id.
type ServedFile struct {
	FileID string
	Size   int64
	Reader io.ReaderAt
}

// Server answers ranged-GET requests arriving on a channel by reading
// out of locally registered files, the role CastLocalFileChannelServer
// plays on the sender side of a cast session.
type Server struct {
	log     zerolog.Logger
	channel transport.Channel

	mu    sync.Mutex
	files map[string]ServedFile
}

// NewServer wires a Server around an already-open local-file channel.
func NewServer(channel transport.Channel, log zerolog.Logger) *Server {
	return &Server{
		log:     log.With().Str("component", "localfile-server").Logger(),
		channel: channel,
		files:   make(map[string]ServedFile),
	}
}

// AddFile registers a readable file and returns the opaque file id the
// peer must use in its range requests, matching AddLocalFileInfo's
// contract of rewriting the media URL before it goes out in SETUP.
func (s *Server) AddFile(path string, size int64, reader io.ReaderAt) string {
	fileID := EncodeFileID(path)
	s.mu.Lock()
	s.files[fileID] = ServedFile{FileID: fileID, Size: size, Reader: reader}
	s.mu.Unlock()
	return fileID
}

// RemoveFile drops a previously registered file.
func (s *Server) RemoveFile(fileID string) {
	s.mu.Lock()
	delete(s.files, fileID)
	s.mu.Unlock()
}

// HandleFrame is the transport.Listener.OnDataReceived hook: every
// inbound frame is a ranged GET request.
func (s *Server) HandleFrame(data []byte) {
	req, err := ParseRangeRequest(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("malformed local file request")
		return
	}
	if req.Method != "GET" {
		s.log.Warn().Str("method", req.Method).Msg("unsupported local file method")
		return
	}

	s.mu.Lock()
	file, ok := s.files[req.FileID]
	s.mu.Unlock()
	if !ok {
		s.log.Warn().Str("fileId", req.FileID).Msg("request for unknown file")
		return
	}

	end := req.RangeEnd
	if end == InvalidEndPos || end > file.Size-1 {
		end = file.Size - 1
	}
	if end < req.RangeStart {
		s.log.Warn().Int64("start", req.RangeStart).Int64("end", end).Msg("invalid range")
		return
	}
	// DSoftbus single-send cap; callers already clamp request sizes to
	// this via LocalFileConfig.MaxRequestBytes, this is the server-side
	// upper bound.
	const maxSendBytes = 2*1024*1024 - 1024
	if end-req.RangeStart+1 > maxSendBytes {
		end = req.RangeStart + maxSendBytes - 1
	}

	body := make([]byte, end-req.RangeStart+1)
	n, err := file.Reader.ReadAt(body, req.RangeStart)
	if err != nil && err != io.EOF {
		s.log.Warn().Err(err).Msg("local file read failed")
		return
	}
	body = body[:n]

	resp := BuildRangeResponse(req.FileID, req.RangeStart, req.RangeStart+int64(n)-1, file.Size, body)
	if err := s.channel.Send(resp); err != nil {
		s.log.Warn().Err(err).Msg("failed to send local file response")
	}
}

// Client issues ranged GET requests over a channel on behalf of a
// LocalDataSource and routes the matching responses back to it,
// playing CastLocalFileChannelClient's role on the receiver side.
type Client struct {
	log     zerolog.Logger
	channel transport.Channel

	mu      sync.Mutex
	waiters map[string][]chan Response
}

// NewClient wires a Client around an already-open local-file channel.
func NewClient(channel transport.Channel, log zerolog.Logger) *Client {
	return &Client{
		log:     log.With().Str("component", "localfile-client").Logger(),
		channel: channel,
		waiters: make(map[string][]chan Response),
	}
}

// Requester adapts the Client into the Requester signature a
// LocalDataSource expects.
func (c *Client) Requester() Requester {
	return c.Request
}

// Request sends a ranged GET for fileID and blocks until the matching
// response arrives or ctx is done.
func (c *Client) Request(ctx context.Context, fileID string, start, end int64) ([]byte, error) {
	ch := make(chan Response, 1)
	c.mu.Lock()
	c.waiters[fileID] = append(c.waiters[fileID], ch)
	c.mu.Unlock()

	if err := c.channel.Send(BuildRangeRequest(fileID, start, end)); err != nil {
		c.removeWaiter(fileID, ch)
		return nil, fmt.Errorf("localfile: failed to send range request: %w", err)
	}

	select {
	case resp := <-ch:
		return resp.Body, nil
	case <-ctx.Done():
		c.removeWaiter(fileID, ch)
		return nil, ctx.Err()
	}
}

// HandleFrame is the transport.Listener.OnDataReceived hook: every
// inbound frame is a ranged GET response keyed by file id.
func (c *Client) HandleFrame(data []byte) {
	resp, err := ParseRangeResponse(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("malformed local file response")
		return
	}

	c.mu.Lock()
	waiters := c.waiters[resp.FileID]
	if len(waiters) == 0 {
		c.mu.Unlock()
		c.log.Warn().Str("fileId", resp.FileID).Msg("response with no pending request")
		return
	}
	next := waiters[0]
	c.waiters[resp.FileID] = waiters[1:]
	c.mu.Unlock()

	next <- resp
}

func (c *Client) removeWaiter(fileID string, target chan Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.waiters[fileID]
	for i, w := range waiters {
		if w == target {
			c.waiters[fileID] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}
