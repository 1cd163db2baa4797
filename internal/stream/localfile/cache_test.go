package localfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheWriteAndRead(t *testing.T) {
	c := NewCache(16)
	c.Write(100, []byte("abcdefgh"))

	assert.True(t, c.IsMatch(100))
	assert.True(t, c.IsMatch(107))
	assert.False(t, c.IsMatch(108))
	assert.False(t, c.IsMatch(99))

	out := make([]byte, 4)
	n := c.Read(102, out)
	assert.Equal(t, 4, n)
	assert.Equal(t, "cdef", string(out))
}

func TestCacheIsNeedReqData(t *testing.T) {
	c := NewCache(16)
	c.Write(0, []byte("0123456789"))

	assert.Equal(t, NeedReqInNextCache, c.IsNeedReqData(50, 4))
	assert.Equal(t, NeedReqInCurrentCache, c.IsNeedReqData(8, 4))
	assert.Equal(t, NoNeedReq, c.IsNeedReqData(2, 4))
}

func TestCachePendingSuppressesRepeatRequest(t *testing.T) {
	c := NewCache(16)
	c.Write(0, []byte("0123456789"))
	c.MarkPending()
	assert.Equal(t, NoNeedReq, c.IsNeedReqData(8, 4))
}

func TestCacheAppendExtendsWindow(t *testing.T) {
	c := NewCache(32)
	c.Write(0, []byte("01234"))
	c.Append(5, []byte("56789"))

	out := make([]byte, 10)
	n := c.Read(0, out)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789", string(out))
}

func TestCacheAppendIgnoresNonContiguous(t *testing.T) {
	c := NewCache(32)
	c.Write(0, []byte("01234"))
	c.Append(10, []byte("xxxxx"))
	assert.Equal(t, int64(5), c.End())
}

func TestCacheReset(t *testing.T) {
	c := NewCache(16)
	c.Write(0, []byte("0123"))
	c.Reset()
	assert.False(t, c.IsValid())
	assert.False(t, c.IsMatch(0))
}
