// Package merkle builds the chunk Merkle tree and the file signature input
// (spec.md §4.5). A chunk's integrity hash is computed one of two ways
// depending on what the caller has in hand: LeafFromPlaintext at creation
// time (the plaintext chunk is available), LeafFromWireChunk when
// reconstructing from a parsed wire buffer (only nonce‖ciphertext is
// available). Callers must not mix the two bases for the same file: a
// FileResult built at creation time carries plaintext-basis leaves, and
// those cannot be rederived from a bare wire blob (the format does not make
// that reconstruction possible by design). ValidateIntegrity therefore does
// not recompute the root; it verifies the file signature over the stored
// root.
package merkle

import (
	"encoding/binary"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
	"github.com/cloud10922/zkim/pkg/crypto"
)

// LeafFromPlaintext computes a chunk's integrity hash from its plaintext,
// used when building the tree at container-creation time.
func LeafFromPlaintext(plaintext []byte) []byte {
	return crypto.Hash(plaintext)
}

// LeafFromWireChunk computes a chunk's integrity hash from its wire
// encoding (nonce ‖ ciphertext), used when the plaintext is unavailable.
func LeafFromWireChunk(nonce, ciphertext []byte) []byte {
	return crypto.Hash(nonce, ciphertext)
}

// Root builds the Merkle root over a sequence of chunk integrity hashes.
// Each leaf is re-hashed with BLAKE3 before pairing; a level with an odd
// count duplicates its last element before pairing. Zero leaves yield a
// 32-byte all-zero root.
func Root(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return make([]byte, constants.MerkleRootSize)
	}

	level := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		level[i] = crypto.Hash(leaf)
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, crypto.Hash(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// ManifestHash computes manifest_hash = BLAKE3(EH_USER, 32).
func ManifestHash(ehUser []byte) []byte {
	return crypto.Hash(ehUser)
}

// SignatureInput builds BLAKE3("zkim/root" ‖ merkle_root ‖ manifest_hash ‖
// u8(alg_suite_id) ‖ u16_le(version)), the message that gets ML-DSA-65
// signed as the file signature.
func SignatureInput(merkleRoot, manifestHash []byte, algSuiteID uint8, version uint16) ([]byte, error) {
	if len(merkleRoot) != constants.MerkleRootSize {
		return nil, qerrors.ErrInvalidMerkleRootLength
	}
	if len(manifestHash) != constants.HashSize {
		return nil, qerrors.NewContainerError("merkle.SignatureInput", qerrors.ErrInvalidFileStructure)
	}

	var versionLE [2]byte
	binary.LittleEndian.PutUint16(versionLE[:], version)

	return crypto.Hash(
		[]byte(constants.DomainMerkleSignature),
		merkleRoot,
		manifestHash,
		[]byte{algSuiteID},
		versionLE[:],
	), nil
}

// SigningSeed derives the deterministic ML-DSA-65 signing seed from the
// user key: seed = BLAKE3(user_key ‖ "zkim/ml-dsa-65/file").
func SigningSeed(userKey []byte) ([]byte, error) {
	if len(userKey) != constants.KeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}
	return crypto.Hash(userKey, []byte(constants.DomainSignatureSeed)), nil
}

// Sign derives the signing key pair from userKey and signs the message
// built by SignatureInput, returning the raw ML-DSA-65 signature.
func Sign(userKey, merkleRoot, manifestHash []byte, algSuiteID uint8, version uint16) ([]byte, error) {
	seed, err := SigningSeed(userKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(seed)

	kp, err := crypto.NewMLDSAKeyPairFromSeedWithCST(seed)
	if err != nil {
		return nil, qerrors.NewCryptoError("merkle.Sign", err)
	}

	message, err := SignatureInput(merkleRoot, manifestHash, algSuiteID, version)
	if err != nil {
		return nil, err
	}

	return crypto.Sign(kp.PrivateKey, message)
}

// Verify derives the verification key from userKey and checks sig against
// the signature input built from merkleRoot/manifestHash/algSuiteID/version.
func Verify(userKey, merkleRoot, manifestHash []byte, algSuiteID uint8, version uint16, sig []byte) (bool, error) {
	seed, err := SigningSeed(userKey)
	if err != nil {
		return false, err
	}
	defer crypto.Zeroize(seed)

	kp, err := crypto.NewMLDSAKeyPairFromSeed(seed)
	if err != nil {
		return false, qerrors.NewCryptoError("merkle.Verify", err)
	}

	message, err := SignatureInput(merkleRoot, manifestHash, algSuiteID, version)
	if err != nil {
		return false, err
	}

	return crypto.Verify(kp.PublicKey, message, sig), nil
}
