// post.go implements Power-On Self-Tests (POST): self-checks that run once
// when the crypto package is loaded, verifying the cryptographic primitives
// behave consistently before any container is processed. This catches gross
// breakage (corrupted binary, broken build) independent of any single call
// site's error handling.
//
// Unlike a textbook Known Answer Test against externally-published fixed
// vectors, these checks pin determinism and round-trip correctness of this
// module's own primitives. BLAKE3 and XChaCha20-Poly1305 are checked against
// fixed inputs computed twice for equality; ML-DSA-65 is checked by a full
// sign/verify round trip from a fixed deterministic seed; ML-KEM-768 has no
// seed-based keygen in this module (spec.md always generates it randomly),
// so it is checked by a full keygen/encapsulate/decapsulate round trip
// instead.
package crypto

import (
	"bytes"
	"fmt"
	"sync"
)

var (
	postKATHashInput = []byte("zkim-post-kat-blake3-input")

	postKATAEADKey        = bytes.Repeat([]byte{0x11}, 32)
	postKATAEADNonce      = bytes.Repeat([]byte{0x22}, 24)
	postKATAEADPlaintext  = []byte("zkim-post-kat-aead-plaintext")

	postKATMLDSASeed = bytes.Repeat([]byte{0x44}, 32)
)

// POSTResult is the outcome of the Power-On Self-Test suite.
type POSTResult struct {
	Passed      bool
	HashPassed  bool
	AEADPassed  bool
	MLKEMPassed bool
	MLDSAPassed bool
	Errors      []string
}

var (
	postResult     *POSTResult
	postResultOnce sync.Once
	postRan        bool
)

// RunPOST executes the Power-On Self-Tests. Safe to call repeatedly; the
// tests only ever run once per process.
func RunPOST() *POSTResult {
	postResultOnce.Do(func() {
		postResult = &POSTResult{Passed: true}

		if err := runHashKAT(); err != nil {
			postResult.Passed = false
			postResult.Errors = append(postResult.Errors, fmt.Sprintf("BLAKE3 self-test failed: %v", err))
		} else {
			postResult.HashPassed = true
		}

		if err := runAEADKAT(); err != nil {
			postResult.Passed = false
			postResult.Errors = append(postResult.Errors, fmt.Sprintf("AEAD self-test failed: %v", err))
		} else {
			postResult.AEADPassed = true
		}

		if err := runMLKEMKAT(); err != nil {
			postResult.Passed = false
			postResult.Errors = append(postResult.Errors, fmt.Sprintf("ML-KEM-768 self-test failed: %v", err))
		} else {
			postResult.MLKEMPassed = true
		}

		if err := runMLDSAKAT(); err != nil {
			postResult.Passed = false
			postResult.Errors = append(postResult.Errors, fmt.Sprintf("ML-DSA-65 self-test failed: %v", err))
		} else {
			postResult.MLDSAPassed = true
		}

		postRan = true
	})
	return postResult
}

// POSTRan reports whether POST has executed.
func POSTRan() bool { return postRan }

// POSTPassed reports whether POST has run and every check passed.
func POSTPassed() bool {
	if postResult == nil {
		return false
	}
	return postResult.Passed
}

func runHashKAT() error {
	a := Hash(postKATHashInput)
	b := Hash(postKATHashInput)
	if !bytes.Equal(a, b) {
		return fmt.Errorf("BLAKE3 is not deterministic for a fixed input")
	}
	if len(a) != 32 {
		return fmt.Errorf("BLAKE3 digest size mismatch: got %d, want 32", len(a))
	}
	if isAllZero(a) {
		return fmt.Errorf("BLAKE3 digest of a non-zero input was all-zero")
	}
	return nil
}

func runAEADKAT() error {
	aead, err := NewAEAD(postKATAEADKey)
	if err != nil {
		return fmt.Errorf("NewAEAD failed: %w", err)
	}

	sealed, err := aead.SealWithNonce(postKATAEADNonce, postKATAEADPlaintext, nil)
	if err != nil {
		return fmt.Errorf("SealWithNonce failed: %w", err)
	}
	sealedAgain, err := aead.SealWithNonce(postKATAEADNonce, postKATAEADPlaintext, nil)
	if err != nil {
		return fmt.Errorf("SealWithNonce (2nd call) failed: %w", err)
	}
	if !bytes.Equal(sealed, sealedAgain) {
		return fmt.Errorf("AEAD output is not deterministic for a fixed (key, nonce, plaintext)")
	}

	plaintext, err := aead.Open(postKATAEADNonce, sealed, nil)
	if err != nil {
		return fmt.Errorf("Open failed: %w", err)
	}
	if !bytes.Equal(plaintext, postKATAEADPlaintext) {
		return fmt.Errorf("round-tripped plaintext mismatch")
	}
	return nil
}

func runMLKEMKAT() error {
	kp, err := GenerateMLKEMKeyPair()
	if err != nil {
		return fmt.Errorf("GenerateMLKEMKeyPair failed: %w", err)
	}

	pkBytes := kp.PublicKeyBytes()
	if len(pkBytes) != 1184 {
		return fmt.Errorf("public key size mismatch: got %d, want 1184", len(pkBytes))
	}

	ciphertext, sharedSecret1, err := MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		return fmt.Errorf("MLKEMEncapsulate failed: %w", err)
	}
	if len(ciphertext) != 1088 {
		return fmt.Errorf("ciphertext size mismatch: got %d, want 1088", len(ciphertext))
	}
	if len(sharedSecret1) != 32 {
		return fmt.Errorf("shared secret size mismatch: got %d, want 32", len(sharedSecret1))
	}

	sharedSecret2, err := MLKEMDecapsulate(kp.DecapsulationKey, ciphertext)
	if err != nil {
		return fmt.Errorf("MLKEMDecapsulate failed: %w", err)
	}
	if !bytes.Equal(sharedSecret1, sharedSecret2) {
		return fmt.Errorf("shared secret mismatch after decapsulation")
	}
	return nil
}

func runMLDSAKAT() error {
	kp, err := NewMLDSAKeyPairFromSeed(postKATMLDSASeed)
	if err != nil {
		return fmt.Errorf("NewMLDSAKeyPairFromSeed failed: %w", err)
	}

	msg := []byte("zkim-post-kat-mldsa-message")
	sig, err := Sign(kp.PrivateKey, msg)
	if err != nil {
		return fmt.Errorf("Sign failed: %w", err)
	}
	if len(sig) != 3309 {
		return fmt.Errorf("signature size mismatch: got %d, want 3309", len(sig))
	}
	if !Verify(kp.PublicKey, msg, sig) {
		return fmt.Errorf("signature failed to verify")
	}
	if Verify(kp.PublicKey, append(append([]byte(nil), msg...), 0x00), sig) {
		return fmt.Errorf("signature verified against a tampered message")
	}
	return nil
}

// init runs POST automatically when the package loads.
func init() {
	RunPOST()
}
