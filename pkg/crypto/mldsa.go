// mldsa.go implements the ML-DSA-65 post-quantum signature wrapper.
//
// ML-DSA (Module-Lattice-based Digital Signature Algorithm) is standardized
// in NIST FIPS 204. ML-DSA-65 targets NIST Category 3, matching ML-KEM-768's
// security level, and is the signature half of alg_suite_id 0x01.
//
// The file signing key is always derived deterministically from a 32-byte
// seed (spec.md §4.5: seed = BLAKE3(user_key || "zkim/ml-dsa-65/file")), so
// this wrapper only exposes seed-based key generation, not random keygen.
package crypto

import (
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

// MLDSAPublicKey wraps an ML-DSA-65 verification key.
type MLDSAPublicKey struct {
	key *mldsa65.PublicKey
}

// MLDSAPrivateKey wraps an ML-DSA-65 signing key.
type MLDSAPrivateKey struct {
	key *mldsa65.PrivateKey
}

// MLDSAKeyPair is an ML-DSA-65 key pair.
type MLDSAKeyPair struct {
	PublicKey  *MLDSAPublicKey
	PrivateKey *MLDSAPrivateKey
}

// NewMLDSAKeyPairFromSeed deterministically derives an ML-DSA-65 key pair
// from a 32-byte seed. The same seed always yields the same key pair.
func NewMLDSAKeyPairFromSeed(seed []byte) (*MLDSAKeyPair, error) {
	if len(seed) != constants.MLDSASeedSize {
		return nil, qerrors.ErrInvalidKeyLength
	}
	var seedArr [mldsa65.SeedSize]byte
	copy(seedArr[:], seed)

	pk, sk := mldsa65.NewKeyFromSeed(&seedArr)
	return &MLDSAKeyPair{
		PublicKey:  &MLDSAPublicKey{key: pk},
		PrivateKey: &MLDSAPrivateKey{key: sk},
	}, nil
}

// Sign produces a deterministic ML-DSA-65 signature over message using sk.
func Sign(sk *MLDSAPrivateKey, message []byte) ([]byte, error) {
	if sk == nil || sk.key == nil {
		return nil, qerrors.ErrInvalidKeyLength
	}
	sig := make([]byte, mldsa65.SignatureSize)
	mldsa65.SignTo(sk.key, message, sig)
	return sig, nil
}

// Verify reports whether sig is a valid ML-DSA-65 signature over message
// under pk.
func Verify(pk *MLDSAPublicKey, message, sig []byte) bool {
	if pk == nil || pk.key == nil {
		return false
	}
	if len(sig) != constants.MLDSASignatureSize {
		return false
	}
	return mldsa65.Verify(pk.key, message, sig)
}

// PublicKeyBytes returns the packed encoding of pk.
func (pk *MLDSAPublicKey) PublicKeyBytes() []byte {
	if pk == nil || pk.key == nil {
		return nil
	}
	buf := make([]byte, mldsa65.PublicKeySize)
	pk.key.Pack(buf)
	return buf
}

// Zeroize drops the key pair's references.
func (kp *MLDSAKeyPair) Zeroize() {
	if kp == nil {
		return
	}
	kp.PrivateKey = nil
	kp.PublicKey = nil
}
