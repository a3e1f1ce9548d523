// oprf.go implements the Ristretto255 oblivious pseudo-random function used
// by the searchable index (spec.md §4.8): F(k, x) = (BASE · h(x)) · k, where
// h(x) reduces a BLAKE3 digest of x to a Ristretto255 scalar.
//
// The 32-byte BLAKE3 digest is reduced as a little-endian integer modulo the
// group order via Scalar.SetReduced, which takes a 64-byte buffer; the high
// 32 bytes are left zero so the value reduced is exactly the digest
// interpreted as a little-endian integer (see DESIGN.md Open Question 3).
package crypto

import (
	"github.com/bwesterb/go-ristretto"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

// OPRFSecretKey is the server-held OPRF evaluation key.
type OPRFSecretKey struct {
	raw []byte // 32-byte seed the scalar is derived from
}

// GenerateOPRFSecretKey draws a fresh 32-byte OPRF secret from the CSPRNG.
func GenerateOPRFSecretKey() (*OPRFSecretKey, error) {
	raw, err := SecureRandomBytes(constants.KeySize)
	if err != nil {
		return nil, err
	}
	return &OPRFSecretKey{raw: raw}, nil
}

// NewOPRFSecretKeyFromBytes wraps an existing 32-byte OPRF secret.
func NewOPRFSecretKeyFromBytes(raw []byte) (*OPRFSecretKey, error) {
	if len(raw) != constants.KeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &OPRFSecretKey{raw: cp}, nil
}

// Bytes returns the raw 32-byte secret.
func (k *OPRFSecretKey) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.raw
}

// Zeroize wipes the raw secret.
func (k *OPRFSecretKey) Zeroize() {
	if k == nil {
		return
	}
	Zeroize(k.raw)
}

// scalarFromBytes reduces a 32-byte digest to a Ristretto255 scalar, per the
// little-endian zero-padded-to-64-bytes convention documented above.
func scalarFromBytes(digest []byte) ristretto.Scalar {
	var buf [64]byte
	copy(buf[:32], digest)

	var s ristretto.Scalar
	s.SetReduced(&buf)
	return s
}

// OPRFEvaluate computes F(k, x): it hashes x with BLAKE3, maps the digest to
// a base-point multiple, and scales that point by the reduced secret-key
// scalar. The result is the 32-byte Ristretto255 encoding of R.
func OPRFEvaluate(key *OPRFSecretKey, x string) []byte {
	hx := Hash([]byte(x))
	hScalar := scalarFromBytes(hx)

	var p ristretto.Point
	p.ScalarMultBase(&hScalar)

	kScalar := scalarFromBytes(key.Bytes())

	var r ristretto.Point
	r.ScalarMult(&p, &kScalar)

	return r.Bytes()
}
