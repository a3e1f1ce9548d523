package chunker

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

func TestProcessRejectsChunkSizeAboveMaxFileSize(t *testing.T) {
	_, err := Process(context.Background(), make([]byte, 1), Options{ChunkSize: constants.MaxFileSize + 1})
	assert.Error(t, err)
}

func TestProcessRejectsContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Process(ctx, []byte("data"), Options{})
	assert.Error(t, err)
}

func TestProcessDefaultsChunkSize(t *testing.T) {
	result, err := Process(context.Background(), bytes.Repeat([]byte("a"), constants.DefaultChunkSize+10), Options{})
	require.NoError(t, err)
	require.Len(t, result.Slices, 2)
	assert.Len(t, result.Slices[0], constants.DefaultChunkSize)
	assert.Len(t, result.Slices[1], 10)
}

func TestProcessRejectsBadChunkSize(t *testing.T) {
	_, err := Process(context.Background(), []byte("data"), Options{ChunkSize: constants.MinChunkSize - 1})
	assert.Error(t, err)

	_, err = Process(context.Background(), []byte("data"), Options{ChunkSize: constants.MaxChunkSize + 1})
	assert.Error(t, err)
}

func TestProcessEmptyPayloadYieldsNoSlices(t *testing.T) {
	result, err := Process(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Slices)
	assert.Equal(t, constants.CompressionNone, result.CompressionUsed)
}

func TestProcessNoCompressionRoundTrip(t *testing.T) {
	payload := []byte("hello, this is plain uncompressed payload data")
	result, err := Process(context.Background(), payload, Options{ChunkSize: 8})
	require.NoError(t, err)
	assert.Equal(t, constants.CompressionNone, result.CompressionUsed)

	reassembled, err := Reassemble(result.CompressionUsed, result.Slices)
	require.NoError(t, err)
	assert.Equal(t, payload, reassembled)
}

func TestProcessGzipRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("compress me please "), 200)
	result, err := Process(context.Background(), payload, Options{
		EnableCompression: true,
		Algorithm:         constants.CompressionGzip,
		ChunkSize:         1024,
	})
	require.NoError(t, err)
	require.Equal(t, constants.CompressionGzip, result.CompressionUsed)
	assert.Empty(t, result.Warning)

	reassembled, err := Reassemble(result.CompressionUsed, result.Slices)
	require.NoError(t, err)
	assert.Equal(t, payload, reassembled)
}

func TestProcessBrotliRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("brotli compress me please "), 200)
	result, err := Process(context.Background(), payload, Options{
		EnableCompression: true,
		Algorithm:         constants.CompressionBrotli,
		ChunkSize:         1024,
	})
	require.NoError(t, err)
	require.Equal(t, constants.CompressionBrotli, result.CompressionUsed)

	reassembled, err := Reassemble(result.CompressionUsed, result.Slices)
	require.NoError(t, err)
	assert.Equal(t, payload, reassembled)
}

func TestProcessFallsBackOnUnsupportedAlgorithm(t *testing.T) {
	payload := []byte("some data")
	result, err := Process(context.Background(), payload, Options{
		EnableCompression: true,
		Algorithm:         constants.CompressionType(99),
		ChunkSize:         8,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.CompressionNone, result.CompressionUsed)
	assert.NotEmpty(t, result.Warning)

	reassembled, err := Reassemble(result.CompressionUsed, result.Slices)
	require.NoError(t, err)
	assert.Equal(t, payload, reassembled)
}

func TestReassembleRejectsUnsupportedCompression(t *testing.T) {
	_, err := Reassemble(constants.CompressionType(99), [][]byte{[]byte("x")})
	assert.ErrorIs(t, err, qerrors.ErrUnsupportedCompression)
}

func TestReassembleRejectsCorruptGzip(t *testing.T) {
	_, err := Reassemble(constants.CompressionGzip, [][]byte{[]byte("not gzip data")})
	assert.Error(t, err)
}

func TestSplitLastSliceMayBeShorter(t *testing.T) {
	result, err := Process(context.Background(), make([]byte, 25), Options{ChunkSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Slices, 3)
	assert.Len(t, result.Slices[0], 10)
	assert.Len(t, result.Slices[1], 10)
	assert.Len(t, result.Slices[2], 5)
}
