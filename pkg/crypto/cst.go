// cst.go implements Conditional Self-Tests (CST) in the style of FIPS 140-3
// conditional testing: checks that run during specific operations (key
// generation, RNG draws) rather than once at startup.
//
//  1. Pairwise Consistency Test: a freshly generated key pair is exercised
//     immediately (encapsulate/decapsulate, or sign/verify) to confirm the
//     two halves actually correspond.
//  2. RNG health check: periodic sampling verifies the CSPRNG is not stuck
//     or degenerate.
//
// Failures return errors; nothing here panics, since the container format
// has no FIPS-mode distinction to escalate to.
package crypto

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
)

// CSTConfig configures Conditional Self-Test behavior.
type CSTConfig struct {
	EnablePairwiseTest   bool
	EnableRNGHealthCheck bool

	// RNGHealthCheckInterval is how often to run a full RNG health check
	// (number of SecureRandom calls between checks).
	RNGHealthCheckInterval uint64
}

// DefaultCSTConfig returns the default CST configuration: both checks
// enabled, health check every 1000 draws.
func DefaultCSTConfig() CSTConfig {
	return CSTConfig{
		EnablePairwiseTest:     true,
		EnableRNGHealthCheck:   true,
		RNGHealthCheckInterval: 1000,
	}
}

var (
	cstConfig     CSTConfig
	cstConfigOnce sync.Once
	rngCallCount  atomic.Uint64
	lastRNGOutput []byte
	lastRNGMutex  sync.Mutex
)

// InitCST installs a custom CST configuration. Must be called before any
// cryptographic operation that should observe it; if never called, defaults
// apply.
func InitCST(config CSTConfig) {
	cstConfigOnce.Do(func() {
		cstConfig = config
	})
}

func getConfig() CSTConfig {
	cstConfigOnce.Do(func() {
		cstConfig = DefaultCSTConfig()
	})
	return cstConfig
}

// CSTResult is the outcome of a single Conditional Self-Test.
type CSTResult struct {
	Passed bool
	Error  error
}

// PairwiseConsistencyTestMLKEM verifies an ML-KEM-768 key pair by round
// tripping an encapsulation through it.
func PairwiseConsistencyTestMLKEM(kp *MLKEMKeyPair) *CSTResult {
	if kp == nil || kp.EncapsulationKey == nil || kp.DecapsulationKey == nil {
		return &CSTResult{Error: fmt.Errorf("invalid key pair")}
	}

	ciphertext, secret1, err := MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		return &CSTResult{Error: fmt.Errorf("encapsulation failed: %w", err)}
	}

	secret2, err := MLKEMDecapsulate(kp.DecapsulationKey, ciphertext)
	if err != nil {
		return &CSTResult{Error: fmt.Errorf("decapsulation failed: %w", err)}
	}

	if !ConstantTimeCompare(secret1, secret2) {
		return &CSTResult{Error: fmt.Errorf("shared secrets do not match")}
	}
	if isAllZero(secret1) {
		return &CSTResult{Error: fmt.Errorf("shared secret is all zeros")}
	}
	return &CSTResult{Passed: true}
}

// PairwiseConsistencyTestMLDSA verifies an ML-DSA-65 key pair by signing and
// verifying a fixed probe message.
func PairwiseConsistencyTestMLDSA(kp *MLDSAKeyPair) *CSTResult {
	if kp == nil || kp.PublicKey == nil || kp.PrivateKey == nil {
		return &CSTResult{Error: fmt.Errorf("invalid key pair")}
	}

	probe := []byte("zkim/cst-pairwise-probe")
	sig, err := Sign(kp.PrivateKey, probe)
	if err != nil {
		return &CSTResult{Error: fmt.Errorf("sign failed: %w", err)}
	}
	if !Verify(kp.PublicKey, probe, sig) {
		return &CSTResult{Error: fmt.Errorf("signature failed to verify")}
	}
	return &CSTResult{Passed: true}
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func runPairwiseTestMLKEM(kp *MLKEMKeyPair) error {
	if !getConfig().EnablePairwiseTest {
		return nil
	}
	result := PairwiseConsistencyTestMLKEM(kp)
	if !result.Passed {
		return result.Error
	}
	return nil
}

func runPairwiseTestMLDSA(kp *MLDSAKeyPair) error {
	if !getConfig().EnablePairwiseTest {
		return nil
	}
	result := PairwiseConsistencyTestMLDSA(kp)
	if !result.Passed {
		return result.Error
	}
	return nil
}

// RNGHealthCheck draws two samples from the CSPRNG and checks they are
// non-zero, non-degenerate, and distinct from each other.
func RNGHealthCheck() *CSTResult {
	sample1 := make([]byte, 32)
	sample2 := make([]byte, 32)

	if err := SecureRandom(sample1); err != nil {
		return &CSTResult{Error: fmt.Errorf("RNG read 1 failed: %w", err)}
	}
	if err := SecureRandom(sample2); err != nil {
		return &CSTResult{Error: fmt.Errorf("RNG read 2 failed: %w", err)}
	}

	if isAllZero(sample1) {
		return &CSTResult{Error: fmt.Errorf("RNG produced all-zero sample 1")}
	}
	if isAllZero(sample2) {
		return &CSTResult{Error: fmt.Errorf("RNG produced all-zero sample 2")}
	}
	if bytes.Equal(sample1, sample2) {
		return &CSTResult{Error: fmt.Errorf("RNG produced identical consecutive samples")}
	}

	return &CSTResult{Passed: true}
}

// ContinuousRNGTest compares output against the output passed to the
// previous ContinuousRNGTest call and fails if they match.
func ContinuousRNGTest(output []byte) *CSTResult {
	lastRNGMutex.Lock()
	defer lastRNGMutex.Unlock()

	if lastRNGOutput == nil {
		lastRNGOutput = append([]byte(nil), output...)
		return &CSTResult{Passed: true}
	}

	if len(output) == len(lastRNGOutput) && bytes.Equal(output, lastRNGOutput) {
		return &CSTResult{Error: fmt.Errorf("RNG produced repeated output")}
	}

	if len(lastRNGOutput) != len(output) {
		lastRNGOutput = make([]byte, len(output))
	}
	copy(lastRNGOutput, output)
	return &CSTResult{Passed: true}
}

func runRNGHealthCheck() error {
	config := getConfig()
	if !config.EnableRNGHealthCheck {
		return nil
	}

	count := rngCallCount.Add(1)
	if count%config.RNGHealthCheckInterval == 0 {
		result := RNGHealthCheck()
		if !result.Passed {
			return result.Error
		}
	}
	return nil
}

// GenerateMLKEMKeyPairWithCST generates an ML-KEM-768 key pair and runs the
// pairwise consistency test before returning it.
func GenerateMLKEMKeyPairWithCST() (*MLKEMKeyPair, error) {
	kp, err := GenerateMLKEMKeyPair()
	if err != nil {
		return nil, err
	}
	if err := runPairwiseTestMLKEM(kp); err != nil {
		return nil, fmt.Errorf("pairwise consistency test failed: %w", err)
	}
	return kp, nil
}

// NewMLDSAKeyPairFromSeedWithCST derives an ML-DSA-65 key pair from seed and
// runs the pairwise consistency test before returning it.
func NewMLDSAKeyPairFromSeedWithCST(seed []byte) (*MLDSAKeyPair, error) {
	kp, err := NewMLDSAKeyPairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if err := runPairwiseTestMLDSA(kp); err != nil {
		return nil, fmt.Errorf("pairwise consistency test failed: %w", err)
	}
	return kp, nil
}

// SecureRandomWithCST reads CSPRNG bytes and runs the periodic health check.
func SecureRandomWithCST(b []byte) error {
	if err := SecureRandom(b); err != nil {
		return err
	}
	return runRNGHealthCheck()
}

// CSTEnabled reports whether any Conditional Self-Test is enabled.
func CSTEnabled() bool {
	config := getConfig()
	return config.EnablePairwiseTest || config.EnableRNGHealthCheck
}

// GetCSTConfig returns the active CST configuration.
func GetCSTConfig() CSTConfig {
	return getConfig()
}
