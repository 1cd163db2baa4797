package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCTRRoundTrip(t *testing.T) {
	var key [KeySize]byte
	key[KeySize-1] = 0x01 // 15 zero bytes + one non-zero byte, per spec scenario 2

	c := NewCodec()
	c.Arm(AlgorithmCTR, key)

	out, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)
	assert.Len(t, out, ivSize+len("hello"))

	plain, err := c.Decrypt(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))
}

func TestCTRFreshIVPerMessage(t *testing.T) {
	var key [KeySize]byte
	key[0] = 0xAB

	c := NewCodec()
	c.Arm(AlgorithmCTR, key)

	a, err := c.Encrypt([]byte("same payload"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same payload"))
	require.NoError(t, err)

	assert.NotEqual(t, a[:ivSize], b[:ivSize])
}

func TestZeroKeyIsPassthrough(t *testing.T) {
	var key [KeySize]byte

	c := NewCodec()
	c.Arm(AlgorithmCTR, key)

	out, err := c.Encrypt([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))
}

func TestUnarmedCodecIsPassthrough(t *testing.T) {
	c := NewCodec()

	out, err := c.Encrypt([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	var key [KeySize]byte
	key[0] = 1

	c := NewCodec()
	c.Arm(AlgorithmCTR, key)

	_, err := c.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidCiphertext{})
}

func TestParseAlgorithmName(t *testing.T) {
	assert.Equal(t, AlgorithmCTR, ParseAlgorithmName(CTRName))
	assert.Equal(t, AlgorithmGCM, ParseAlgorithmName(GCMName))
	assert.Equal(t, AlgorithmNone, ParseAlgorithmName("unknown"))
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion(1))
	assert.Error(t, CheckVersion(2))
}

func TestGCMRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	iv := make([]byte, 12)
	aad := []byte("session-aad")

	ct, err := EncryptGCM(key, iv, aad, []byte("stream payload"))
	require.NoError(t, err)

	pt, err := DecryptGCM(key, iv, aad, ct)
	require.NoError(t, err)
	assert.Equal(t, "stream payload", string(pt))
}

func TestGCMReservedNotWiredIntoCodec(t *testing.T) {
	var key [KeySize]byte
	key[0] = 1

	c := NewCodec()
	c.Arm(AlgorithmGCM, key)

	_, err := c.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrGCMReserved{})
}
