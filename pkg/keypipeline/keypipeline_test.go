package keypipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud10922/zkim/internal/constants"
	"github.com/cloud10922/zkim/pkg/storage"
)

func keyOf(fill byte) []byte {
	k := make([]byte, constants.KeySize)
	for i := range k {
		k[i] = fill
	}
	return k
}

func TestDeriveLayerKeysRejectsBadKeyLength(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	_, err := DeriveLayerKeys(ctx, store, "file-1", "alice", make([]byte, 4), keyOf(0x02))
	assert.Error(t, err)
}

func TestDeriveRecoverLayerKeysRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	platformKey := keyOf(0x01)
	userKey := keyOf(0x02)

	derived, err := DeriveLayerKeys(ctx, store, "file-1", "alice", platformKey, userKey)
	require.NoError(t, err)
	assert.Len(t, derived.KEMCiphertext, constants.MLKEMCiphertextSize)
	assert.Len(t, derived.PlatformLayerKey, constants.KeySize)
	assert.Len(t, derived.UserLayerKey, constants.KeySize)

	recovered, err := RecoverLayerKeys(ctx, store, "file-1", "alice", derived.KEMCiphertext, platformKey, userKey)
	require.NoError(t, err)
	assert.Equal(t, derived.PlatformLayerKey, recovered.PlatformLayerKey)
	assert.Equal(t, derived.UserLayerKey, recovered.UserLayerKey)
}

func TestRecoverLayerKeysFailsWithWrongUserKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	platformKey := keyOf(0x01)
	userKey := keyOf(0x02)
	wrongUserKey := keyOf(0x03)

	derived, err := DeriveLayerKeys(ctx, store, "file-1", "alice", platformKey, userKey)
	require.NoError(t, err)

	_, err = RecoverLayerKeys(ctx, store, "file-1", "alice", derived.KEMCiphertext, platformKey, wrongUserKey)
	assert.Error(t, err)
}

func TestRecoverLayerKeysFailsWhenSecretMissing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	platformKey := keyOf(0x01)
	userKey := keyOf(0x02)

	fakeCiphertext := make([]byte, constants.MLKEMCiphertextSize)
	_, err := RecoverLayerKeys(ctx, store, "missing-file", "alice", fakeCiphertext, platformKey, userKey)
	assert.Error(t, err)
}

func TestRecoverLayerKeysRejectsBadCiphertextLength(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	platformKey := keyOf(0x01)
	userKey := keyOf(0x02)

	_, err := RecoverLayerKeys(ctx, store, "file-1", "alice", make([]byte, 10), platformKey, userKey)
	assert.Error(t, err)
}

func TestDeriveLayerKeysIsolatesSecretsPerUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	platformKey := keyOf(0x01)
	aliceKey := keyOf(0x02)
	bobKey := keyOf(0x03)

	aliceDerived, err := DeriveLayerKeys(ctx, store, "file-1", "alice", platformKey, aliceKey)
	require.NoError(t, err)
	bobDerived, err := DeriveLayerKeys(ctx, store, "file-1", "bob", platformKey, bobKey)
	require.NoError(t, err)

	_, err = RecoverLayerKeys(ctx, store, "file-1", "alice", bobDerived.KEMCiphertext, platformKey, aliceKey)
	assert.Error(t, err, "alice's key must not unseal bob's KEM secret")

	recovered, err := RecoverLayerKeys(ctx, store, "file-1", "alice", aliceDerived.KEMCiphertext, platformKey, aliceKey)
	require.NoError(t, err)
	assert.Equal(t, aliceDerived.UserLayerKey, recovered.UserLayerKey)
}

func TestLayerKeysZeroizeHandlesNil(t *testing.T) {
	var lk *LayerKeys
	assert.NotPanics(t, func() { lk.Zeroize() })
}
