// aead.go implements Authenticated Encryption with Associated Data using
// XChaCha20-Poly1305.
//
// XChaCha20-Poly1305 extends ChaCha20-Poly1305 with a 192-bit (24-byte)
// nonce, large enough to draw nonces from a CSPRNG per message without
// tracking a per-key counter: random 24-byte nonces make accidental reuse
// under the same key negligible, unlike the 96-bit nonces used by the
// standard construction.
package crypto

import (
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

// AEAD wraps an XChaCha20-Poly1305 cipher keyed once at construction.
type AEAD struct {
	key []byte
}

// NewAEAD creates an AEAD cipher bound to a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != constants.AEADKeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}
	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)
	return &AEAD{key: keyCopy}, nil
}

// Seal encrypts plaintext under a freshly generated random nonce and returns
// (nonce, ciphertext||tag). The caller is responsible for storing the nonce
// alongside the ciphertext — this package never reuses a nonce because each
// call draws a new one from the CSPRNG.
func (a *AEAD) Seal(plaintext, additionalData []byte) (nonce, sealed []byte, err error) {
	nonce, err = SecureRandomBytes(constants.AEADNonceSize)
	if err != nil {
		return nil, nil, err
	}
	sealed, err = a.SealWithNonce(nonce, plaintext, additionalData)
	if err != nil {
		return nil, nil, err
	}
	return nonce, sealed, nil
}

// SealWithNonce encrypts plaintext under an explicit 24-byte nonce. The
// caller must guarantee the (key, nonce) pair is never reused.
func (a *AEAD) SealWithNonce(nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(nonce) != constants.AEADNonceSize {
		return nil, qerrors.ErrInvalidNonceLength
	}
	cipher, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, qerrors.NewCryptoError("AEAD.Seal", err)
	}
	return cipher.Seal(nil, nonce, plaintext, additionalData), nil
}

// Open decrypts sealed (ciphertext||tag) using the given nonce, returning
// ErrAuthenticationFailed on any tag mismatch. This failure is
// non-recoverable per spec.md §4.1.
func (a *AEAD) Open(nonce, sealed, additionalData []byte) ([]byte, error) {
	if len(nonce) != constants.AEADNonceSize {
		return nil, qerrors.ErrInvalidNonceLength
	}
	if len(sealed) < constants.AEADTagSize {
		return nil, qerrors.ErrChunkDataTooShort
	}
	cipher, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, qerrors.NewCryptoError("AEAD.Open", err)
	}
	plaintext, err := cipher.Open(nil, nonce, sealed, additionalData)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Zeroize wipes the cipher's key from memory. The AEAD must not be used
// afterward.
func (a *AEAD) Zeroize() {
	Zeroize(a.key)
}

// Overhead is the fixed number of ciphertext-overhead bytes (tag only —
// the nonce is carried and accounted for separately on the wire).
func Overhead() int { return constants.AEADTagSize }
