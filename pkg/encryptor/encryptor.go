// Package encryptor implements the three-layer AEAD encryption scheme
// (spec.md §4.4): a random content key seals each chunk of the processed
// payload individually, the content key and metadata are sealed under the
// user layer key, and search-visible metadata alone is sealed under the
// platform layer key.
//
// Content is sealed per chunk, each under its own fresh nonce, rather than
// once as a single content_ct later sliced: an AEAD tag authenticates the
// whole ciphertext it was produced with, so a slice of one big ciphertext
// cannot be its own self-contained, independently verifiable wire chunk.
// Per-chunk sealing also makes spec.md §3's per-chunk bucket padding
// possible without needing to know any other chunk's size.
package encryptor

import (
	"encoding/binary"
	"encoding/json"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
	"github.com/cloud10922/zkim/pkg/crypto"
	"github.com/cloud10922/zkim/pkg/model"
)

// LayerSeal is the output of SealLayers: the user and platform layer
// ciphertexts and nonces, plus the content key the caller must use to seal
// each chunk (via SealChunk) and must zeroize once sealing is complete.
type LayerSeal struct {
	ContentKey []byte // 32 bytes, caller-owned, never persisted directly

	UserNonce []byte
	UserCT    []byte

	PlatformNonce []byte
	PlatformCT    []byte
}

// SealLayers generates a fresh content key and produces the user and
// platform layer ciphertexts under the given layer keys. compressionUsed is
// recorded in the user layer so Decrypt can reassemble the chunk
// plaintexts without a separate wire-header field for it.
func SealLayers(fileID string, metadata model.Metadata, compressionUsed constants.CompressionType, platformLayerKey, userLayerKey []byte) (*LayerSeal, error) {
	if len(platformLayerKey) != constants.KeySize || len(userLayerKey) != constants.KeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}

	contentKey, err := crypto.SecureRandomBytes(constants.KeySize)
	if err != nil {
		return nil, qerrors.NewCryptoError("encryptor.SealLayers.contentKey", err)
	}

	userPlaintext, err := json.Marshal(model.UserLayerPlaintext{
		FileID:          fileID,
		ContentKey:      contentKey,
		Metadata:        metadata,
		CompressionUsed: compressionUsed,
	})
	if err != nil {
		crypto.Zeroize(contentKey)
		return nil, qerrors.NewContainerError("encryptor.SealLayers.userLayerMarshal", err)
	}

	userAEAD, err := crypto.NewAEAD(userLayerKey)
	if err != nil {
		crypto.Zeroize(contentKey)
		return nil, qerrors.NewCryptoError("encryptor.SealLayers.userAEAD", err)
	}
	userNonce, userCT, err := userAEAD.Seal(userPlaintext, nil)
	userAEAD.Zeroize()
	crypto.Zeroize(userPlaintext)
	if err != nil {
		crypto.Zeroize(contentKey)
		return nil, qerrors.NewCryptoError("encryptor.SealLayers.userSeal", err)
	}

	platformPlaintext, err := json.Marshal(model.PlatformLayerPlaintext{
		Metadata: metadata.ToPlatformMetadata(),
	})
	if err != nil {
		crypto.Zeroize(contentKey)
		return nil, qerrors.NewContainerError("encryptor.SealLayers.platformLayerMarshal", err)
	}

	platformAEAD, err := crypto.NewAEAD(platformLayerKey)
	if err != nil {
		crypto.Zeroize(contentKey)
		return nil, qerrors.NewCryptoError("encryptor.SealLayers.platformAEAD", err)
	}
	platformNonce, platformCT, err := platformAEAD.Seal(platformPlaintext, nil)
	platformAEAD.Zeroize()
	if err != nil {
		crypto.Zeroize(contentKey)
		return nil, qerrors.NewCryptoError("encryptor.SealLayers.platformSeal", err)
	}

	return &LayerSeal{
		ContentKey:    contentKey,
		UserNonce:     userNonce,
		UserCT:        userCT,
		PlatformNonce: platformNonce,
		PlatformCT:    platformCT,
	}, nil
}

// OpenUserLayer recovers the user layer plaintext (file id, content key,
// metadata) using userLayerKey.
func OpenUserLayer(userNonce, userCT, userLayerKey []byte) (*model.UserLayerPlaintext, error) {
	aead, err := crypto.NewAEAD(userLayerKey)
	if err != nil {
		return nil, qerrors.NewCryptoError("encryptor.OpenUserLayer", err)
	}
	defer aead.Zeroize()

	plaintext, err := aead.Open(userNonce, userCT, nil)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	defer crypto.Zeroize(plaintext)

	var out model.UserLayerPlaintext
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, qerrors.NewContainerError("encryptor.OpenUserLayer.unmarshal", err)
	}
	return &out, nil
}

// OpenPlatformLayer recovers the platform layer plaintext (search-visible
// metadata only) using platformLayerKey.
func OpenPlatformLayer(platformNonce, platformCT, platformLayerKey []byte) (*model.PlatformLayerPlaintext, error) {
	aead, err := crypto.NewAEAD(platformLayerKey)
	if err != nil {
		return nil, qerrors.NewCryptoError("encryptor.OpenPlatformLayer", err)
	}
	defer aead.Zeroize()

	plaintext, err := aead.Open(platformNonce, platformCT, nil)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}

	var out model.PlatformLayerPlaintext
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, qerrors.NewContainerError("encryptor.OpenPlatformLayer.unmarshal", err)
	}
	return &out, nil
}

// bucketFor returns the smallest entry of constants.BucketSizes that is >= n,
// or 0 if n exceeds every bucket (no padding applied).
func bucketFor(n int) int {
	for _, b := range constants.BucketSizes {
		if n <= b {
			return b
		}
	}
	return 0
}

// SealChunk seals a single processed-payload slice under contentKey with a
// fresh nonce. The plaintext is prefixed with its own length (so padding
// can be stripped on open independent of any other chunk) and padded with
// zero bytes to the smallest bucket size that fits, per spec.md §3. The
// padding buffer is drawn from crypto's bucket-sized buffer pool, since a
// multi-chunk file pads one buffer per chunk and the bucket ladder is
// small and fixed.
func SealChunk(contentKey []byte, plaintext []byte) (nonce, ciphertext []byte, err error) {
	prefixedLen := 4 + len(plaintext)
	bucket := bucketFor(prefixedLen)
	if bucket == 0 {
		bucket = prefixedLen
	}

	prefixed := crypto.GetBuffer(bucket)
	defer crypto.PutBuffer(prefixed)

	binary.LittleEndian.PutUint32(prefixed, uint32(len(plaintext)))
	copy(prefixed[4:], plaintext)

	aead, err := crypto.NewAEAD(contentKey)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("encryptor.SealChunk", err)
	}
	defer aead.Zeroize()

	return aead.Seal(prefixed, nil)
}

// OpenChunk reverses SealChunk: it opens the chunk ciphertext, then trims
// the result back to the length recorded in its own 4-byte prefix.
func OpenChunk(contentKey, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := crypto.NewAEAD(contentKey)
	if err != nil {
		return nil, qerrors.NewCryptoError("encryptor.OpenChunk", err)
	}
	defer aead.Zeroize()

	padded, err := aead.Open(nonce, ciphertext, nil)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	if len(padded) < 4 {
		return nil, qerrors.ErrChunkDataTooShort
	}

	originalLen := int(binary.LittleEndian.Uint32(padded))
	if originalLen > len(padded)-4 {
		return nil, qerrors.ErrInvalidFileStructure
	}
	return padded[4 : 4+originalLen], nil
}
