// Package crypto implements the session control-channel cipher: AES-128-CTR,
// wired into the RTSP control engine, and AES-128-GCM, reserved but unused.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
)

// KeySize is the fixed session key length, in bytes.
const KeySize = 16

// ivSize is the length of the random prefix placed in front of every
// ciphertext; for CTR it doubles as the counter block, for GCM as the nonce
// padded out to the same on-wire width as CTR.
const ivSize = 16

// Algorithm identifies a negotiated cipher.
type Algorithm int

// Algorithm ids, matching the wire values carried in SET_PARAMETER bodies.
const (
	AlgorithmNone Algorithm = 0
	AlgorithmCTR  Algorithm = 1
	AlgorithmGCM  Algorithm = 2
)

// CTRName is the canonical capability string announced in RTSP ANNOUNCE.
// A peer string is matched against it by exact equality, never prefix or
// case-insensitive comparison.
const CTRName = "aes128ctr"

// GCMName is the canonical capability string for the reserved GCM path.
const GCMName = "aes128gcm"

// ParseAlgorithmName maps an announced capability string to its Algorithm,
// or AlgorithmNone if unrecognized.
func ParseAlgorithmName(name string) Algorithm {
	switch name {
	case CTRName:
		return AlgorithmCTR
	case GCMName:
		return AlgorithmGCM
	default:
		return AlgorithmNone
	}
}

// ErrInvalidKeyLength is returned when a key is not exactly KeySize bytes.
type ErrInvalidKeyLength struct{ Got int }

func (e ErrInvalidKeyLength) Error() string {
	return "crypto: invalid key length"
}

// ErrInvalidCiphertext is returned when a ciphertext is too short to hold
// an IV prefix.
type ErrInvalidCiphertext struct{}

func (e ErrInvalidCiphertext) Error() string { return "crypto: ciphertext shorter than IV" }

// ErrUnsupportedVersion is returned by CheckVersion for any
// encrypt_description version other than the only one this codec
// understands. GetVersion() in the original always returns 1;
// CheckVersion states that constraint explicitly. Nothing in the
// handshake calls it on a peer's advertised version.
type ErrUnsupportedVersion struct{ Got int }

func (e ErrUnsupportedVersion) Error() string { return "crypto: unsupported protocol version" }

// Version is the only encrypt_description version this codec understands.
const Version = 1

// CheckVersion rejects any version other than Version.
func CheckVersion(v int) error {
	if v != Version {
		return ErrUnsupportedVersion{Got: v}
	}
	return nil
}

// isZeroKey reports whether key is the all-zero session key, which the
// spec treats as "no encryption negotiated" — every Codec call becomes a
// pass-through in that case.
func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}

// Codec encrypts and decrypts control-channel payloads for one session.
// Encrypt and Decrypt may be called concurrently with each other; Arm
// writes the algorithm and key without locking and must not run
// concurrently with them.
type Codec struct {
	alg Algorithm
	key [KeySize]byte
}

// NewCodec returns a Codec that is a no-op pass-through until Arm is called.
func NewCodec() *Codec {
	return &Codec{alg: AlgorithmNone}
}

// Arm sets the negotiated algorithm and key, activating encryption on
// subsequent Encrypt/Decrypt calls. Arming with AlgorithmNone or an
// all-zero key keeps the codec a pass-through, matching the bus transport
// (which provides its own confidentiality) and the "no encryption
// negotiated" case.
func (c *Codec) Arm(alg Algorithm, key [KeySize]byte) {
	c.alg = alg
	c.key = key
}

// Encrypt returns IV||ciphertext for CTR, or plain passes data through
// unchanged when encryption is not active.
func (c *Codec) Encrypt(data []byte) ([]byte, error) {
	if c.alg == AlgorithmNone || isZeroKey(c.key) {
		return data, nil
	}

	switch c.alg {
	case AlgorithmCTR:
		return encryptCTR(c.key, data)
	case AlgorithmGCM:
		return nil, ErrGCMReserved{}
	default:
		return data, nil
	}
}

// Decrypt is the inverse of Encrypt.
func (c *Codec) Decrypt(data []byte) ([]byte, error) {
	if c.alg == AlgorithmNone || isZeroKey(c.key) {
		return data, nil
	}

	switch c.alg {
	case AlgorithmCTR:
		return decryptCTR(c.key, data)
	case AlgorithmGCM:
		return nil, ErrGCMReserved{}
	default:
		return data, nil
	}
}

// ErrGCMReserved is returned by any GCM call reached through Codec: the
// algorithm is negotiable and validated (see EncryptGCM/DecryptGCM) but
// never wired into the control channel.
type ErrGCMReserved struct{}

func (e ErrGCMReserved) Error() string { return "crypto: GCM path is reserved, not wired" }

func encryptCTR(key [KeySize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, ivSize+len(plaintext))
	iv := out[:ivSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out[ivSize:], plaintext)
	return out, nil
}

func decryptCTR(key [KeySize]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < ivSize {
		return nil, ErrInvalidCiphertext{}
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:ivSize]
	body := ciphertext[ivSize:]
	out := make([]byte, len(body))

	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out, body)
	return out, nil
}

// EncryptGCM validates inputs and performs AES-128-GCM encryption. It is
// reachable only through direct calls (never through Codec.Encrypt) because
// the control channel only ever negotiates CTR; kept for parity with the
// original's EncryptDecrypt::AES128GCMEncry, which validates AAD/key/iv/tag
// lengths and returns invalid-* errors on mismatch.
func EncryptGCM(key, iv, aad, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength{Got: len(key)}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, ErrInvalidGCMParam{Field: "iv"}
	}

	return gcm.Seal(nil, iv, plaintext, aad), nil
}

// DecryptGCM is the inverse of EncryptGCM.
func DecryptGCM(key, iv, aad, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength{Got: len(key)}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, ErrInvalidGCMParam{Field: "iv"}
	}

	return gcm.Open(nil, iv, ciphertext, aad)
}

// ErrInvalidGCMParam is returned when a GCM parameter (aad/key/iv/tag)
// fails validation.
type ErrInvalidGCMParam struct{ Field string }

func (e ErrInvalidGCMParam) Error() string { return "crypto: invalid GCM parameter: " + e.Field }
