// mlkem.go implements the ML-KEM-768 key encapsulation mechanism wrapper.
//
// ML-KEM (Module-Lattice-based Key-Encapsulation Mechanism) is standardized
// in NIST FIPS 203; security rests on the Module Learning With Errors
// problem. ML-KEM-768 targets NIST Category 3 (~192-bit post-quantum
// security), the suite fixed by alg_suite_id 0x01.
package crypto

import (
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

// MLKEMPublicKey wraps an ML-KEM-768 encapsulation key.
type MLKEMPublicKey struct {
	key *mlkem768.PublicKey
}

// MLKEMPrivateKey wraps an ML-KEM-768 decapsulation key.
type MLKEMPrivateKey struct {
	key *mlkem768.PrivateKey
}

// MLKEMKeyPair is an ML-KEM-768 key pair for post-quantum key encapsulation.
type MLKEMKeyPair struct {
	EncapsulationKey *MLKEMPublicKey
	DecapsulationKey *MLKEMPrivateKey
}

// GenerateMLKEMKeyPair generates a fresh ML-KEM-768 key pair from the
// system CSPRNG.
func GenerateMLKEMKeyPair() (*MLKEMKeyPair, error) {
	pk, sk, err := mlkem768.GenerateKeyPair(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("MLKEMKeyPair.Generate", err)
	}
	return &MLKEMKeyPair{
		EncapsulationKey: &MLKEMPublicKey{key: pk},
		DecapsulationKey: &MLKEMPrivateKey{key: sk},
	}, nil
}

// deterministicReader replays a fixed seed as "randomness". No function in
// this package reads from it; the ML-DSA-65 file signing key is derived
// through mldsa65.NewKeyFromSeed instead (see mldsa.go).
type deterministicReader struct {
	data   []byte
	offset int
}

func (r *deterministicReader) Read(p []byte) (n int, err error) {
	n = copy(p, r.data[r.offset:])
	r.offset += n
	return n, nil
}

// MLKEMEncapsulate performs key encapsulation against ek, returning the
// fixed-size ciphertext (constants.MLKEMCiphertextSize bytes) and the
// 32-byte shared secret.
func MLKEMEncapsulate(ek *MLKEMPublicKey) (ciphertext, sharedSecret []byte, err error) {
	if ek == nil || ek.key == nil {
		return nil, nil, qerrors.ErrInvalidKeyLength
	}

	ct := make([]byte, mlkem768.CiphertextSize)
	ss := make([]byte, mlkem768.SharedKeySize)

	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if err := SecureRandom(seed); err != nil {
		return nil, nil, qerrors.NewCryptoError("MLKEMEncapsulate", err)
	}

	ek.key.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// MLKEMDecapsulate recovers the shared secret bound to ciphertext using the
// decapsulation key dk.
func MLKEMDecapsulate(dk *MLKEMPrivateKey, ciphertext []byte) ([]byte, error) {
	if dk == nil || dk.key == nil {
		return nil, qerrors.ErrInvalidKeyLength
	}
	if len(ciphertext) != constants.MLKEMCiphertextSize {
		return nil, qerrors.ErrInvalidKemCiphertextLength
	}

	ss := make([]byte, mlkem768.SharedKeySize)
	dk.key.DecapsulateTo(ss, ciphertext)
	return ss, nil
}

// Bytes returns the packed encoding of the public key.
func (pk *MLKEMPublicKey) Bytes() []byte {
	if pk == nil || pk.key == nil {
		return nil
	}
	buf := make([]byte, mlkem768.PublicKeySize)
	pk.key.Pack(buf)
	return buf
}

// PublicKeyBytes returns the packed encoding of the key pair's public key.
func (kp *MLKEMKeyPair) PublicKeyBytes() []byte {
	return kp.EncapsulationKey.Bytes()
}

// ParseMLKEMPublicKey parses an ML-KEM-768 public key from its packed form.
func ParseMLKEMPublicKey(data []byte) (*MLKEMPublicKey, error) {
	if len(data) != constants.MLKEMPublicKeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}
	pk := new(mlkem768.PublicKey)
	if err := pk.Unpack(data); err != nil {
		return nil, qerrors.NewCryptoError("ParseMLKEMPublicKey", err)
	}
	return &MLKEMPublicKey{key: pk}, nil
}

// Bytes returns the packed encoding of the decapsulation key. Callers that
// persist this value are responsible for protecting it (see
// pkg/keypipeline, which seals it under the user key before handing it to
// storage).
func (dk *MLKEMPrivateKey) Bytes() []byte {
	if dk == nil || dk.key == nil {
		return nil
	}
	buf := make([]byte, mlkem768.PrivateKeySize)
	dk.key.Pack(buf)
	return buf
}

// ParseMLKEMPrivateKey parses an ML-KEM-768 decapsulation key from its
// packed form.
func ParseMLKEMPrivateKey(data []byte) (*MLKEMPrivateKey, error) {
	if len(data) != constants.MLKEMPrivateKeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}
	sk := new(mlkem768.PrivateKey)
	if err := sk.Unpack(data); err != nil {
		return nil, qerrors.NewCryptoError("ParseMLKEMPrivateKey", err)
	}
	return &MLKEMPrivateKey{key: sk}, nil
}

// Zeroize drops the key pair's references so the underlying key material
// becomes eligible for collection. CIRCL does not expose in-place
// zeroization of its internal representation.
func (kp *MLKEMKeyPair) Zeroize() {
	if kp == nil {
		return
	}
	kp.DecapsulationKey = nil
	kp.EncapsulationKey = nil
}
