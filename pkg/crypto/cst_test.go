package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairwiseConsistencyTestMLKEM(t *testing.T) {
	kp, err := GenerateMLKEMKeyPair()
	require.NoError(t, err)

	result := PairwiseConsistencyTestMLKEM(kp)
	assert.True(t, result.Passed)
	assert.NoError(t, result.Error)
}

func TestPairwiseConsistencyTestMLKEMRejectsNilKeyPair(t *testing.T) {
	result := PairwiseConsistencyTestMLKEM(nil)
	assert.False(t, result.Passed)
	assert.Error(t, result.Error)
}

func TestPairwiseConsistencyTestMLDSA(t *testing.T) {
	seed := make([]byte, 32)
	kp, err := NewMLDSAKeyPairFromSeed(seed)
	require.NoError(t, err)

	result := PairwiseConsistencyTestMLDSA(kp)
	assert.True(t, result.Passed)
	assert.NoError(t, result.Error)
}

func TestPairwiseConsistencyTestMLDSARejectsNilKeyPair(t *testing.T) {
	result := PairwiseConsistencyTestMLDSA(nil)
	assert.False(t, result.Passed)
	assert.Error(t, result.Error)
}

func TestRNGHealthCheckPasses(t *testing.T) {
	result := RNGHealthCheck()
	assert.True(t, result.Passed)
	assert.NoError(t, result.Error)
}

func TestContinuousRNGTestFlagsRepeatedOutput(t *testing.T) {
	sample := []byte{1, 2, 3, 4}
	first := ContinuousRNGTest(sample)
	assert.True(t, first.Passed)

	second := ContinuousRNGTest(sample)
	assert.False(t, second.Passed)
	assert.Error(t, second.Error)
}

func TestGenerateMLKEMKeyPairWithCST(t *testing.T) {
	kp, err := GenerateMLKEMKeyPairWithCST()
	require.NoError(t, err)
	assert.NotNil(t, kp.EncapsulationKey)
	assert.NotNil(t, kp.DecapsulationKey)
}

func TestNewMLDSAKeyPairFromSeedWithCST(t *testing.T) {
	seed := make([]byte, 32)
	kp, err := NewMLDSAKeyPairFromSeedWithCST(seed)
	require.NoError(t, err)
	assert.NotNil(t, kp.PublicKey)
	assert.NotNil(t, kp.PrivateKey)
}

func TestDefaultCSTConfig(t *testing.T) {
	cfg := DefaultCSTConfig()
	assert.True(t, cfg.EnablePairwiseTest)
	assert.True(t, cfg.EnableRNGHealthCheck)
	assert.Equal(t, uint64(1000), cfg.RNGHealthCheckInterval)
}

func TestSecureRandomWithCST(t *testing.T) {
	buf := make([]byte, 16)
	err := SecureRandomWithCST(buf)
	assert.NoError(t, err)
}
