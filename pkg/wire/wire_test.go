package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

func fixedBytes(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func validContainer() *Container {
	return &Container{
		Version:       constants.Version,
		Flags:         constants.Flags,
		KEMCiphertext: fixedBytes(constants.MLKEMCiphertextSize, 0x01),
		PlatformNonce: fixedBytes(constants.AEADNonceSize, 0x02),
		PlatformTag:   fixedBytes(40, 0x03), // ciphertext + tag, longer than a bare tag
		UserNonce:     fixedBytes(constants.AEADNonceSize, 0x04),
		UserTag:       fixedBytes(60, 0x05),
		Chunks: []Chunk{
			{Index: 0, Nonce: fixedBytes(constants.AEADNonceSize, 0x06), Ciphertext: fixedBytes(100, 0x07)},
			{Index: 1, Nonce: fixedBytes(constants.AEADNonceSize, 0x08), Ciphertext: fixedBytes(50, 0x09)},
		},
		MerkleRoot: fixedBytes(constants.MerkleRootSize, 0x0a),
		Signature:  fixedBytes(constants.MLDSASignatureSize, 0x0b),
	}
}

func TestWriteParseRoundTrip(t *testing.T) {
	c := validContainer()
	data, err := Write(c)
	require.NoError(t, err)

	parsed, err := Parse(data, constants.MLDSASignatureSize)
	require.NoError(t, err)

	assert.Equal(t, c.Version, parsed.Version)
	assert.Equal(t, c.Flags, parsed.Flags)
	assert.Equal(t, c.KEMCiphertext, parsed.KEMCiphertext)
	assert.Equal(t, c.PlatformNonce, parsed.PlatformNonce)
	assert.Equal(t, c.PlatformTag, parsed.PlatformTag)
	assert.Equal(t, c.UserNonce, parsed.UserNonce)
	assert.Equal(t, c.UserTag, parsed.UserTag)
	assert.Equal(t, c.MerkleRoot, parsed.MerkleRoot)
	assert.Equal(t, c.Signature, parsed.Signature)
	require.Len(t, parsed.Chunks, 2)
	assert.Equal(t, c.Chunks[0].Ciphertext, parsed.Chunks[0].Ciphertext)
	assert.Equal(t, c.Chunks[1].Ciphertext, parsed.Chunks[1].Ciphertext)
}

func TestWriteParseRoundTripMinimalEHAndNoChunks(t *testing.T) {
	c := validContainer()
	c.PlatformTag = fixedBytes(constants.AEADTagSize, 0x03)
	c.UserTag = fixedBytes(constants.AEADTagSize, 0x05)
	c.Chunks = nil

	data, err := Write(c)
	require.NoError(t, err)

	parsed, err := Parse(data, constants.MLDSASignatureSize)
	require.NoError(t, err)
	assert.Equal(t, c.PlatformTag, parsed.PlatformTag)
	assert.Equal(t, c.UserTag, parsed.UserTag)
	assert.Empty(t, parsed.Chunks)
}

func TestWriteRejectsUndersizedPlatformTag(t *testing.T) {
	c := validContainer()
	c.PlatformTag = fixedBytes(constants.AEADTagSize-1, 0x03)
	_, err := Write(c)
	assert.ErrorIs(t, err, qerrors.ErrInvalidTagLength)
}

func TestWriteRejectsBadNonceLength(t *testing.T) {
	c := validContainer()
	c.UserNonce = fixedBytes(constants.AEADNonceSize-1, 0x04)
	_, err := Write(c)
	assert.ErrorIs(t, err, qerrors.ErrInvalidNonceLength)
}

func TestWriteRejectsMisindexedChunk(t *testing.T) {
	c := validContainer()
	c.Chunks[1].Index = 5
	_, err := Write(c)
	assert.ErrorIs(t, err, qerrors.ErrInvalidFileStructure)
}

func TestParseRejectsBadMagic(t *testing.T) {
	c := validContainer()
	data, err := Write(c)
	require.NoError(t, err)
	data[0] = 'X'

	_, err = Parse(data, constants.MLDSASignatureSize)
	assert.ErrorIs(t, err, qerrors.ErrInvalidMagic)
}

func TestParseRejectsTruncatedFile(t *testing.T) {
	c := validContainer()
	data, err := Write(c)
	require.NoError(t, err)

	_, err = Parse(data[:10], constants.MLDSASignatureSize)
	assert.ErrorIs(t, err, qerrors.ErrFileTooSmall)
}

func TestParseRejectsOversizedLengthPrefix(t *testing.T) {
	c := validContainer()
	data, err := Write(c)
	require.NoError(t, err)

	// The platform nonce sits right after header+KEM ciphertext; the u32
	// length prefix follows immediately after it.
	lenOffset := constants.HeaderSize + constants.MLKEMCiphertextSize + constants.AEADNonceSize
	data[lenOffset] = 0xff
	data[lenOffset+1] = 0xff
	data[lenOffset+2] = 0xff
	data[lenOffset+3] = 0x7f

	_, err = Parse(data, constants.MLDSASignatureSize)
	assert.Error(t, err)
}

func TestParseRejectsCorruptChunkLength(t *testing.T) {
	c := validContainer()
	data, err := Write(c)
	require.NoError(t, err)

	chunkRegionStart := constants.HeaderSize + constants.MLKEMCiphertextSize +
		constants.AEADNonceSize + 4 + len(c.PlatformTag) +
		constants.AEADNonceSize + 4 + len(c.UserTag)
	lenOffset := chunkRegionStart + constants.AEADNonceSize
	data[lenOffset] = 0xff
	data[lenOffset+1] = 0xff
	data[lenOffset+2] = 0xff
	data[lenOffset+3] = 0x7f

	_, err = Parse(data, constants.MLDSASignatureSize)
	assert.Error(t, err)
}
