// blake3.go wraps BLAKE3 as the container's sole hash/KDF primitive: chunk
// integrity hashes, the Merkle tree, layer-key derivation, the signature
// input, and OPRF point derivation all route through the functions here.
// Hash and HashN add no domain separation of their own; each caller places
// any domain string in the inputs it passes.
package crypto

import (
	"lukechampine.com/blake3"

	"github.com/cloud10922/zkim/internal/constants"
)

// Hash returns the 32-byte BLAKE3 digest of data.
func Hash(data ...[]byte) []byte {
	return HashN(constants.HashSize, data...)
}

// HashN returns an n-byte BLAKE3 digest of the concatenation of data.
func HashN(n int, data ...[]byte) []byte {
	h := blake3.New(n, nil)
	for _, d := range data {
		h.Write(d) //nolint:errcheck // hash.Hash.Write never errors
	}
	return h.Sum(nil)
}
