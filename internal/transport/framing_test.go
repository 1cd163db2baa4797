package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte("hello, cast")
	encoded := EncodeFrame(payload)

	got, err := ReadFrame(bytes.NewReader(encoded), ModuleRTSP, 10*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsOversizedFrame(t *testing.T) {
	const max = 10 * 1024 * 1024

	big := make([]byte, HeaderLen)
	putUint32(big, max+1)
	_, err := ReadFrame(bytes.NewReader(big), ModuleRTSP, max)
	require.Error(t, err)
	assert.IsType(t, ErrFrameTooLarge{}, err)
}

func TestReadFrameAcceptsExactlyMaxFrame(t *testing.T) {
	const max = 16 // keep the test fast; boundary logic doesn't care about absolute scale
	payload := bytes.Repeat([]byte{0xAB}, max)
	encoded := EncodeFrame(payload)

	got, err := ReadFrame(bytes.NewReader(encoded), ModuleRTSP, max)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRemoteControlIncludesHeaderAndMasksLength(t *testing.T) {
	payload := []byte("ctl")
	// Simulate the original's convention: the declared length already
	// counts the 4-byte header, and only the low 16 bits are meaningful.
	declared := uint32(HeaderLen+len(payload)) | 0x10000

	header := make([]byte, HeaderLen)
	putUint32(header, declared)

	buf := append(header, payload...)

	got, err := ReadFrame(bytes.NewReader(buf), ModuleRemoteControl, 1024)
	require.NoError(t, err)
	assert.Equal(t, append(header, payload...), got)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
