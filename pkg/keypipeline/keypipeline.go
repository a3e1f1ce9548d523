// Package keypipeline implements the container's key derivation pipeline
// (spec.md §4.2): a fresh ML-KEM-768 key pair is generated and encapsulated
// against itself purely as a way to mint a shared secret, which is then
// mixed with the platform and user keys to produce the two layer keys the
// three-layer encryptor needs. The decapsulation secret never appears in
// the container; it is sealed under the user key and handed to the storage
// backend under a reserved key.
package keypipeline

import (
	"context"
	"fmt"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
	"github.com/cloud10922/zkim/pkg/crypto"
	"github.com/cloud10922/zkim/pkg/storage"
)

// LayerKeys is the material produced by DeriveLayerKeys: everything the
// encryptor needs to seal the platform and user layers, plus the KEM
// ciphertext that goes on the wire.
type LayerKeys struct {
	KEMCiphertext    []byte // constants.MLKEMCiphertextSize bytes, goes on the wire
	PlatformLayerKey []byte // 32 bytes
	UserLayerKey     []byte // 32 bytes
}

// Zeroize wipes the derived layer keys. KEMCiphertext is not secret and is
// left untouched.
func (lk *LayerKeys) Zeroize() {
	if lk == nil {
		return
	}
	crypto.Zeroize(lk.PlatformLayerKey)
	crypto.Zeroize(lk.UserLayerKey)
}

func kemSecretStoreKey(fileID, userID string) string {
	return fmt.Sprintf("%s%s:%s", constants.KEMSecretKeyPrefix, fileID, userID)
}

// DeriveLayerKeys generates a fresh ML-KEM-768 key pair, encapsulates to its
// own public key, and mixes the resulting shared secret with platformKey
// and userKey via BLAKE3 to derive the platform and user layer keys. The
// decapsulation secret is AEAD-sealed under userKey and stored at
// "zkim-kem-key:<fileID>:<userID>" so it can later be recovered by anyone
// holding userKey.
func DeriveLayerKeys(ctx context.Context, store storage.Store, fileID, userID string, platformKey, userKey []byte) (*LayerKeys, error) {
	if len(platformKey) != constants.KeySize || len(userKey) != constants.KeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}

	kp, err := crypto.GenerateMLKEMKeyPairWithCST()
	if err != nil {
		return nil, qerrors.NewCryptoError("DeriveLayerKeys.keygen", err)
	}
	defer kp.Zeroize()

	ciphertext, sharedSecret, err := crypto.MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		return nil, qerrors.NewCryptoError("DeriveLayerKeys.encapsulate", err)
	}
	defer crypto.Zeroize(sharedSecret)

	platformLayerKey := crypto.HashN(constants.KeySize, sharedSecret, platformKey)
	userLayerKey := crypto.HashN(constants.KeySize, sharedSecret, userKey)

	if err := sealKEMSecret(ctx, store, fileID, userID, userKey, kp.DecapsulationKey.Bytes()); err != nil {
		crypto.Zeroize(platformLayerKey)
		crypto.Zeroize(userLayerKey)
		return nil, err
	}

	return &LayerKeys{
		KEMCiphertext:    ciphertext,
		PlatformLayerKey: platformLayerKey,
		UserLayerKey:     userLayerKey,
	}, nil
}

// RecoverLayerKeys reverses DeriveLayerKeys: it fetches and unseals the KEM
// decapsulation secret for (fileID, userID) under userKey, decapsulates
// kemCiphertext to recover the shared secret, and re-derives the two layer
// keys from it.
func RecoverLayerKeys(ctx context.Context, store storage.Store, fileID, userID string, kemCiphertext, platformKey, userKey []byte) (*LayerKeys, error) {
	if len(platformKey) != constants.KeySize || len(userKey) != constants.KeySize {
		return nil, qerrors.ErrInvalidKeyLength
	}
	if len(kemCiphertext) != constants.MLKEMCiphertextSize {
		return nil, qerrors.ErrInvalidKemCiphertextLength
	}

	skBytes, err := unsealKEMSecret(ctx, store, fileID, userID, userKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(skBytes)

	dk, err := crypto.ParseMLKEMPrivateKey(skBytes)
	if err != nil {
		return nil, qerrors.NewCryptoError("RecoverLayerKeys.parseKey", err)
	}

	sharedSecret, err := crypto.MLKEMDecapsulate(dk, kemCiphertext)
	if err != nil {
		return nil, qerrors.NewCryptoError("RecoverLayerKeys.decapsulate", err)
	}
	defer crypto.Zeroize(sharedSecret)

	return &LayerKeys{
		KEMCiphertext:    kemCiphertext,
		PlatformLayerKey: crypto.HashN(constants.KeySize, sharedSecret, platformKey),
		UserLayerKey:     crypto.HashN(constants.KeySize, sharedSecret, userKey),
	}, nil
}

func sealKEMSecret(ctx context.Context, store storage.Store, fileID, userID string, userKey, secret []byte) error {
	aead, err := crypto.NewAEAD(userKey)
	if err != nil {
		return qerrors.NewCryptoError("sealKEMSecret", err)
	}
	defer aead.Zeroize()

	nonce, sealed, err := aead.Seal(secret, nil)
	if err != nil {
		return qerrors.NewCryptoError("sealKEMSecret", err)
	}

	blob := make([]byte, 0, len(nonce)+len(sealed))
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	if err := store.Set(ctx, kemSecretStoreKey(fileID, userID), blob); err != nil {
		return qerrors.NewContainerError("sealKEMSecret.store", err)
	}
	return nil
}

func unsealKEMSecret(ctx context.Context, store storage.Store, fileID, userID string, userKey []byte) ([]byte, error) {
	blob, ok, err := store.Get(ctx, kemSecretStoreKey(fileID, userID))
	if err != nil {
		return nil, qerrors.NewContainerError("unsealKEMSecret.store", err)
	}
	if !ok {
		return nil, qerrors.ErrMissingDecryptionData
	}
	if len(blob) < constants.AEADNonceSize {
		return nil, qerrors.ErrInvalidNonceLength
	}

	nonce := blob[:constants.AEADNonceSize]
	sealed := blob[constants.AEADNonceSize:]

	aead, err := crypto.NewAEAD(userKey)
	if err != nil {
		return nil, qerrors.NewCryptoError("unsealKEMSecret", err)
	}
	defer aead.Zeroize()

	secret, err := aead.Open(nonce, sealed, nil)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	return secret, nil
}
