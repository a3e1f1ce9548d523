// Package zkim implements the ZKIM secure container format: three-layer
// post-quantum authenticated encryption (platform/user/content, each
// XChaCha20-Poly1305 under an ML-KEM-768-derived key), a BLAKE3 Merkle
// integrity tree and ML-DSA-65 file signature, and an OPRF-backed
// searchable index over container metadata.
//
// # Quick Start
//
//	store := storage.NewMemory()
//	svc := zkim.New(store, zkim.DefaultConfig())
//
//	result, err := svc.Create(ctx, fileservice.CreateRequest{
//		Payload:     payload,
//		Metadata:    model.Metadata{FileName: "report.pdf", UserID: "alice"},
//		PlatformKey: platformKey,
//		UserKey:     userKey,
//		Persist:     true,
//	})
//
//	payload, metadata, err := svc.Decrypt(ctx, result.Wire, result.FileID, "alice", platformKey, userKey)
//
// # Package Structure
//
//   - pkg/crypto: AEAD, BLAKE3, ML-KEM-768, ML-DSA-65, Ristretto255 OPRF
//   - pkg/keypipeline: KEM-secret derivation, sealing, and recovery
//   - pkg/chunker: payload compression and chunking
//   - pkg/encryptor: three-layer AEAD sealing/opening
//   - pkg/merkle: chunk Merkle tree and file signature
//   - pkg/wire: binary container encoding/decoding
//   - pkg/fileservice: end-to-end container orchestration
//   - pkg/index: OPRF searchable index
//   - pkg/storage: persistence boundary
//   - pkg/metrics: logging, tracing, Prometheus export, health checks
//   - internal/constants: fixed sizes and suite identifiers
//   - internal/errors: typed error kinds
package zkim

import (
	"time"

	"github.com/cloud10922/zkim/internal/constants"
	"github.com/cloud10922/zkim/pkg/fileservice"
	"github.com/cloud10922/zkim/pkg/index"
	"github.com/cloud10922/zkim/pkg/metrics"
	"github.com/cloud10922/zkim/pkg/storage"
)

// Config collects every tunable named in spec.md §9 into one struct with
// documented defaults, the way pkg/crypto.CSTConfig centralizes the
// self-test knobs.
type Config struct {
	// Chunking/compression (pkg/chunker).
	ChunkSize             int
	CompressionAlgorithm  constants.CompressionType
	CompressionLevel      int
	EnableCompression     bool
	MaxFileSize           int64
	EnableIntegrityValidation bool

	// EnableSearchableEncryption attaches an index.Index to the Service;
	// Create indexes every container and Search becomes usable.
	EnableSearchableEncryption bool

	// Searchable index tunables (pkg/index), only meaningful when
	// EnableSearchableEncryption is set.
	EpochDuration            time.Duration
	MaxQueriesPerEpoch       int
	BucketSizes              []int
	EnablePrivacyEnhancement bool
	EnableResultPadding      bool
	EnableQueryLogging       bool
	EnableRateLimiting       bool
	EnableTrapdoorRotation   bool

	// EnableStreaming is reserved: spec.md names it as a recognized option
	// with no defined behavior yet. It has no effect in this implementation.
	EnableStreaming bool

	// EnableMetrics attaches pkg/metrics' default observer to the Service
	// (and, when EnableSearchableEncryption is also set, to the Index),
	// instrumenting Create/Decrypt/Search with the global Collector,
	// Logger, and Tracer.
	EnableMetrics bool
}

// DefaultConfig returns the documented default tunables.
func DefaultConfig() Config {
	return Config{
		ChunkSize:                 constants.DefaultChunkSize,
		CompressionAlgorithm:      constants.CompressionGzip,
		CompressionLevel:          6,
		EnableCompression:         true,
		MaxFileSize:               constants.MaxFileSize,
		EnableIntegrityValidation: true,

		EnableSearchableEncryption: true,

		EpochDuration:            time.Duration(constants.DefaultEpochDurationSeconds) * time.Second,
		MaxQueriesPerEpoch:       constants.DefaultMaxQueriesPerEpoch,
		BucketSizes:              append([]int(nil), constants.BucketSizes...),
		EnablePrivacyEnhancement: true,
		EnableResultPadding:      true,
		EnableQueryLogging:       true,
		EnableRateLimiting:       true,
		EnableTrapdoorRotation:   true,

		EnableMetrics: true,
	}
}

// New builds a fileservice.Service wired against store and, when
// cfg.EnableSearchableEncryption is set, a freshly initialized searchable
// index. Callers that need their own index lifecycle management (shared
// across multiple services, or attached to an Observer for metrics) should
// build the Service and Index separately and call Service.SetIndex
// themselves instead.
func New(store storage.Store, cfg Config) (*fileservice.Service, error) {
	svc := fileservice.New(store, fileservice.Config{
		EnableCompression:         cfg.EnableCompression,
		Algorithm:                 cfg.CompressionAlgorithm,
		Level:                     cfg.CompressionLevel,
		ChunkSize:                 cfg.ChunkSize,
		EnableIntegrityValidation: cfg.EnableIntegrityValidation,
	})

	if cfg.EnableMetrics {
		svc.SetObserver(metrics.NewFileServiceObserver(metrics.FileServiceObserverConfig{}))
	}

	if cfg.EnableSearchableEncryption {
		idx, err := index.New(index.Config{
			EpochDuration:            cfg.EpochDuration,
			MaxQueriesPerEpoch:       cfg.MaxQueriesPerEpoch,
			BucketSizes:              cfg.BucketSizes,
			EnablePrivacyEnhancement: cfg.EnablePrivacyEnhancement,
			EnableResultPadding:      cfg.EnableResultPadding,
			EnableQueryLogging:       cfg.EnableQueryLogging,
			EnableRateLimiting:       cfg.EnableRateLimiting,
			EnableTrapdoorRotation:   cfg.EnableTrapdoorRotation,
			EnableAutoEpoch:          true,
		})
		if err != nil {
			return nil, err
		}
		if cfg.EnableMetrics {
			idx.SetObserver(metrics.NewIndexObserver(metrics.IndexObserverConfig{}))
		}
		svc.SetIndex(idx)
	}

	return svc, nil
}
