// Package wire implements the ZKIM binary container codec (spec.md §4.6):
// a fixed header, a fixed-size KEM ciphertext, two length-prefixed
// encryption header blobs, a variable run of chunks, and a trailing Merkle
// root and signature. The layout is a public contract; every length is
// validated on write and on parse before any offset is trusted.
//
// The platform and user encryption headers each carry nonce(24) ||
// length(4) || ciphertext(length), the same length-prefixed shape as a
// chunk, since the sealed layer plaintext (metadata, content key) is never
// a fixed size. Each chunk entry carries its own explicit u32 little-endian
// ciphertext length ahead of its ciphertext for the same reason: per-chunk
// bucket padding (spec.md §3) means sibling chunks can pad to different
// bucket sizes, so chunk boundaries are not otherwise recoverable without
// decrypting first — and decrypting needs the boundary already known. See
// DESIGN.md for the full writeup.
package wire

import (
	"encoding/binary"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
)

// chunkLengthPrefixSize is the width of the per-chunk ciphertext length field.
const chunkLengthPrefixSize = 4

// Chunk is a single wire chunk: nonce ‖ length ‖ ciphertext, where
// ciphertext already includes its trailing AEAD tag.
type Chunk struct {
	Index      int
	Nonce      []byte // constants.AEADNonceSize
	Ciphertext []byte // includes the trailing AEAD tag
}

// Container is the fully assembled in-memory wire representation.
type Container struct {
	Version uint16
	Flags   uint16

	KEMCiphertext []byte // constants.MLKEMCiphertextSize

	PlatformNonce []byte // constants.AEADNonceSize
	PlatformTag   []byte // full sealed blob (ciphertext‖AEAD tag), length-prefixed on wire

	UserNonce []byte
	UserTag   []byte // full sealed blob (ciphertext‖AEAD tag), length-prefixed on wire

	Chunks []Chunk

	MerkleRoot []byte // constants.MerkleRootSize
	Signature  []byte // constants.MLDSASignatureSize
}

// Write validates c and serializes it to the ZKIM wire format.
func Write(c *Container) ([]byte, error) {
	if err := validateForWrite(c); err != nil {
		return nil, err
	}

	chunksSize := 0
	for _, chunk := range c.Chunks {
		chunksSize += constants.AEADNonceSize + chunkLengthPrefixSize + len(chunk.Ciphertext)
	}

	total := constants.HeaderSize +
		constants.MLKEMCiphertextSize +
		constants.AEADNonceSize + chunkLengthPrefixSize + len(c.PlatformTag) +
		constants.AEADNonceSize + chunkLengthPrefixSize + len(c.UserTag) +
		chunksSize +
		constants.MerkleRootSize +
		len(c.Signature)

	buf := make([]byte, total)
	offset := 0

	copy(buf[offset:], []byte(constants.Magic))
	offset += 4
	binary.LittleEndian.PutUint16(buf[offset:], c.Version)
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], c.Flags)
	offset += 2

	copy(buf[offset:], c.KEMCiphertext)
	offset += constants.MLKEMCiphertextSize

	copy(buf[offset:], c.PlatformNonce)
	offset += constants.AEADNonceSize
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(c.PlatformTag)))
	offset += chunkLengthPrefixSize
	copy(buf[offset:], c.PlatformTag)
	offset += len(c.PlatformTag)

	copy(buf[offset:], c.UserNonce)
	offset += constants.AEADNonceSize
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(c.UserTag)))
	offset += chunkLengthPrefixSize
	copy(buf[offset:], c.UserTag)
	offset += len(c.UserTag)

	for _, chunk := range c.Chunks {
		copy(buf[offset:], chunk.Nonce)
		offset += constants.AEADNonceSize
		binary.LittleEndian.PutUint32(buf[offset:], uint32(len(chunk.Ciphertext)))
		offset += chunkLengthPrefixSize
		copy(buf[offset:], chunk.Ciphertext)
		offset += len(chunk.Ciphertext)
	}

	copy(buf[offset:], c.MerkleRoot)
	offset += constants.MerkleRootSize

	copy(buf[offset:], c.Signature)
	offset += len(c.Signature)

	return buf, nil
}

func validateForWrite(c *Container) error {
	if c == nil {
		return qerrors.ErrInvalidFileStructure
	}
	if len(c.KEMCiphertext) != constants.MLKEMCiphertextSize {
		return qerrors.ErrInvalidKemCiphertextLength
	}
	if len(c.PlatformNonce) != constants.AEADNonceSize || len(c.UserNonce) != constants.AEADNonceSize {
		return qerrors.ErrInvalidNonceLength
	}
	if len(c.PlatformTag) < constants.AEADTagSize || len(c.UserTag) < constants.AEADTagSize {
		return qerrors.ErrInvalidTagLength
	}
	if len(c.MerkleRoot) != constants.MerkleRootSize {
		return qerrors.ErrInvalidMerkleRootLength
	}
	if len(c.Signature) != constants.MLDSASignatureSize {
		return qerrors.ErrInvalidSignatureLength
	}
	for i, chunk := range c.Chunks {
		if chunk.Index != i {
			return qerrors.ErrInvalidFileStructure
		}
		if len(chunk.Nonce) != constants.AEADNonceSize {
			return qerrors.ErrInvalidChunkNonceLength
		}
		if len(chunk.Ciphertext) < constants.AEADTagSize {
			return qerrors.ErrChunkDataTooShort
		}
		if len(chunk.Ciphertext) > constants.MaxChunkCiphertextSize {
			return qerrors.ErrInvalidFileStructure
		}
	}
	return nil
}

// Parse validates the fixed header regions and recovers chunks from the
// variable region between EH_USER and MERKLE_ROOT||SIGNATURE. sigSize is
// the expected file signature length (constants.MLDSASignatureSize for
// this suite; exposed as a parameter so a future suite could vary it).
func Parse(data []byte, sigSize int) (*Container, error) {
	minSize := constants.HeaderSize +
		constants.MLKEMCiphertextSize +
		2*(constants.AEADNonceSize+chunkLengthPrefixSize+constants.AEADTagSize) +
		constants.MerkleRootSize +
		sigSize
	if len(data) < minSize {
		return nil, qerrors.ErrFileTooSmall
	}

	offset := 0
	if string(data[offset:offset+4]) != constants.Magic {
		return nil, qerrors.ErrInvalidMagic
	}
	offset += 4

	version := binary.LittleEndian.Uint16(data[offset:])
	if version != constants.Version {
		return nil, qerrors.ErrInvalidVersion
	}
	offset += 2

	flags := binary.LittleEndian.Uint16(data[offset:])
	if flags != constants.Flags {
		return nil, qerrors.ErrInvalidFlags
	}
	offset += 2

	c := &Container{Version: version, Flags: flags}

	c.KEMCiphertext = cloneAt(data, offset, constants.MLKEMCiphertextSize)
	offset += constants.MLKEMCiphertextSize

	c.PlatformNonce = cloneAt(data, offset, constants.AEADNonceSize)
	offset += constants.AEADNonceSize
	platformTag, newOffset, err := parseLengthPrefixed(data, offset, constants.AEADTagSize)
	if err != nil {
		return nil, err
	}
	c.PlatformTag, offset = platformTag, newOffset

	c.UserNonce = cloneAt(data, offset, constants.AEADNonceSize)
	offset += constants.AEADNonceSize
	userTag, newOffset, err := parseLengthPrefixed(data, offset, constants.AEADTagSize)
	if err != nil {
		return nil, err
	}
	c.UserTag, offset = userTag, newOffset

	trailerSize := constants.MerkleRootSize + sigSize
	if len(data)-offset < trailerSize {
		return nil, qerrors.ErrFileTooSmall
	}
	chunksEnd := len(data) - trailerSize

	chunks, err := parseChunks(data[offset:chunksEnd])
	if err != nil {
		return nil, err
	}
	c.Chunks = chunks

	c.MerkleRoot = cloneAt(data, chunksEnd, constants.MerkleRootSize)
	c.Signature = cloneAt(data, chunksEnd+constants.MerkleRootSize, sigSize)

	return c, nil
}

func parseChunks(region []byte) ([]Chunk, error) {
	var chunks []Chunk
	offset := 0
	minEntrySize := constants.AEADNonceSize + chunkLengthPrefixSize + constants.AEADTagSize

	for len(region)-offset >= minEntrySize {
		nonce := cloneAt(region, offset, constants.AEADNonceSize)
		offset += constants.AEADNonceSize

		ciphertextLen := int(binary.LittleEndian.Uint32(region[offset:]))
		offset += chunkLengthPrefixSize

		if ciphertextLen < constants.AEADTagSize || ciphertextLen > constants.MaxChunkCiphertextSize {
			return nil, qerrors.ErrInvalidFileStructure
		}
		if len(region)-offset < ciphertextLen {
			return nil, qerrors.ErrChunkDataTooShort
		}

		ciphertext := cloneAt(region, offset, ciphertextLen)
		offset += ciphertextLen

		chunks = append(chunks, Chunk{Index: len(chunks), Nonce: nonce, Ciphertext: ciphertext})
	}

	if offset != len(region) {
		return nil, qerrors.ErrInvalidFileStructure
	}
	return chunks, nil
}

func cloneAt(data []byte, offset, length int) []byte {
	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out
}

// parseLengthPrefixed reads a u32 little-endian length followed by that many
// bytes from data at offset, enforcing a minimum of minLen (an EH blob can
// never be shorter than a bare AEAD tag). It returns the blob and the offset
// immediately past it.
func parseLengthPrefixed(data []byte, offset, minLen int) ([]byte, int, error) {
	if len(data)-offset < chunkLengthPrefixSize {
		return nil, 0, qerrors.ErrFileTooSmall
	}
	length := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += chunkLengthPrefixSize

	if length < minLen || length > constants.MaxChunkCiphertextSize {
		return nil, 0, qerrors.ErrInvalidTagLength
	}
	if len(data)-offset < length {
		return nil, 0, qerrors.ErrFileTooSmall
	}

	blob := cloneAt(data, offset, length)
	return blob, offset + length, nil
}
