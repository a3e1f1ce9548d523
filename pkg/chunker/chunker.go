// Package chunker implements whole-payload compression followed by
// fixed-size chunking (spec.md §4.3): compress the plaintext (falling back
// to uncompressed storage if compression fails), then split the result into
// fixed-size slices for wire storage.
package chunker

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"

	"github.com/cloudflare/brotli-go/dec"
	"github.com/cloudflare/brotli-go/enc"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

// Options configures Process.
type Options struct {
	EnableCompression bool
	Algorithm         constants.CompressionType // CompressionGzip or CompressionBrotli
	Level             int                       // gzip: 1-9; brotli: 1-11 quality; <= 0 selects the default
	ChunkSize         int                       // defaults to constants.DefaultChunkSize
}

// Result is the output of Process: the (possibly compressed) payload split
// into fixed-size slices, plus the compression type actually used (which
// may differ from the requested one if compression failed and the call
// fell back to storing the payload uncompressed).
type Result struct {
	CompressionUsed constants.CompressionType
	Slices          [][]byte
	Warning         string
}

// Process compresses plaintext per opts (falling back to uncompressed on
// failure) and splits the result into fixed-size slices.
func Process(ctx context.Context, plaintext []byte, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(plaintext) > constants.MaxFileSize {
		return nil, qerrors.ErrFileTooLarge
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = constants.DefaultChunkSize
	}
	if chunkSize < constants.MinChunkSize || chunkSize > constants.MaxChunkSize {
		return nil, qerrors.NewContainerError("chunker.Process", qerrors.ErrInvalidFileStructure)
	}

	payload := plaintext
	compressionUsed := constants.CompressionNone
	warning := ""

	if opts.EnableCompression {
		compressed, err := compress(opts.Algorithm, opts.Level, plaintext)
		if err != nil {
			warning = "compression failed, falling back to uncompressed storage: " + err.Error()
		} else {
			payload = compressed
			compressionUsed = opts.Algorithm
		}
	}

	return &Result{
		CompressionUsed: compressionUsed,
		Slices:          split(payload, chunkSize),
		Warning:         warning,
	}, nil
}

// Reassemble concatenates chunk slices back into the compressed (or plain,
// if CompressionUsed is CompressionNone) payload and decompresses it.
func Reassemble(compressionUsed constants.CompressionType, slices [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	for _, s := range slices {
		buf.Write(s)
	}
	payload := buf.Bytes()

	switch compressionUsed {
	case constants.CompressionNone:
		return payload, nil
	case constants.CompressionGzip:
		return decompressGzip(payload)
	case constants.CompressionBrotli:
		return decompressBrotli(payload)
	default:
		return nil, qerrors.ErrUnsupportedCompression
	}
}

func compress(algorithm constants.CompressionType, level int, plaintext []byte) ([]byte, error) {
	switch algorithm {
	case constants.CompressionGzip:
		return compressGzip(level, plaintext)
	case constants.CompressionBrotli:
		return compressBrotli(level, plaintext)
	default:
		return nil, qerrors.ErrUnsupportedCompression
	}
}

func compressGzip(level int, plaintext []byte) ([]byte, error) {
	if level <= 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func compressBrotli(quality int, plaintext []byte) ([]byte, error) {
	if quality <= 0 {
		quality = 5
	}
	params := enc.NewBrotliParams()
	params.SetQuality(quality)

	var buf bytes.Buffer
	w := enc.NewBrotliWriter(params, &buf)
	if _, err := w.Write(plaintext); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressBrotli(data []byte) ([]byte, error) {
	r := dec.NewBrotliReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

// split divides payload into chunkSize slices, the last possibly shorter.
// An empty payload yields zero slices.
func split(payload []byte, chunkSize int) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	slices := make([][]byte, 0, (len(payload)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(payload); offset += chunkSize {
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		slice := make([]byte, end-offset)
		copy(slice, payload[offset:end])
		slices = append(slices, slice)
	}
	return slices
}
