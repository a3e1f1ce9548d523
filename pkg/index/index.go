// Package index implements the searchable OPRF index (spec.md §4.8): an
// in-memory structure that lets a search operation answer "does any file
// this user may read contain this term" without the index itself ever
// storing the term in cleartext on its token side. File content is indexed
// by name, MIME type, tags, and "key:value" custom fields; a query is
// turned into a trapdoor token via the same OPRF evaluation and matched
// against stored tokens with a constant-time comparison.
package index

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cloud10922/zkim/internal/constants"
	qerrors "github.com/cloud10922/zkim/internal/errors"
	"github.com/cloud10922/zkim/pkg/crypto"
	"github.com/cloud10922/zkim/pkg/model"
)

// IndexedFile is one file's entry in the index: the OPRF tokens computed
// over its indexable fields at IndexFile time, plus the metadata snapshot
// needed to enforce CanRead and score relevance during Search.
type IndexedFile struct {
	FileID       string
	ObjectID     string
	Tokens       [][]byte
	Metadata     model.Metadata
	IndexedAt    time.Time
	LastAccessed time.Time
}

// Trapdoor is a per-query OPRF token issued to a user, bounded by a usage
// count and an epoch-aligned expiry.
type Trapdoor struct {
	ID         string
	UserID     string
	Token      []byte
	Epoch      uint64
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UsageCount int
	MaxUsage   int
	Revoked    bool
}

// QueryHistoryEntry records one search call, kept only when query logging
// is enabled and cleared every epoch advance.
type QueryHistoryEntry struct {
	ID        string
	UserID    string
	Epoch     uint64
	Query     string
	Timestamp time.Time
}

// SearchResult is one match (real or, under result padding, synthetic)
// returned from Search.
type SearchResult struct {
	FileID      string
	ObjectID    string
	FileName    string
	Relevance   float64
	AccessLevel string
}

// Config tunes the index's rate limiting, padding, and privacy behavior.
// New replaces a zero EpochDuration, MaxQueriesPerEpoch or TrapdoorMaxUsage
// and an empty BucketSizes with their defaults; the boolean switches are
// used exactly as given.
type Config struct {
	EpochDuration      time.Duration
	MaxQueriesPerEpoch int
	TrapdoorMaxUsage   int
	BucketSizes        []int

	EnablePrivacyEnhancement bool
	EnableResultPadding      bool
	EnableQueryLogging       bool
	EnableRateLimiting       bool
	EnableTrapdoorRotation   bool

	// EnableAutoEpoch starts a background goroutine that calls AdvanceEpoch
	// once per EpochDuration. Tests that want deterministic epoch control
	// should leave this false and call AdvanceEpoch directly.
	EnableAutoEpoch bool
}

// DefaultConfig returns the documented default tunables.
func DefaultConfig() Config {
	return Config{
		EpochDuration:            time.Duration(constants.DefaultEpochDurationSeconds) * time.Second,
		MaxQueriesPerEpoch:       constants.DefaultMaxQueriesPerEpoch,
		TrapdoorMaxUsage:         constants.DefaultTrapdoorMaxUsage,
		BucketSizes:              append([]int(nil), constants.BucketSizes...),
		EnablePrivacyEnhancement: true,
		EnableResultPadding:      true,
		EnableQueryLogging:       true,
		EnableRateLimiting:       true,
		EnableTrapdoorRotation:   true,
		EnableAutoEpoch:          false,
	}
}

// Observer receives index lifecycle events. A nil Observer on Index means
// no hooks fire; callers that want metrics/tracing attach one via
// SetObserver.
type Observer interface {
	OnSearch(ctx context.Context, userID string, queryLen int) (context.Context, func(resultCount int, err error))
	OnRateLimited(userID string)
	OnTrapdoorIssued(trapdoorID, userID string)
	OnTrapdoorRevoked(trapdoorID string)
	OnIndexFile(fileID string)
	OnEpochAdvanced(epoch uint64)
}

// Index is the searchable OPRF index. All operations are safe for
// concurrent use; Search never returns a partial result set, and the
// background epoch timer never mutates state mid-scan because it also
// takes the same lock.
type Index struct {
	mu sync.Mutex

	cfg      Config
	oprfKey  *crypto.OPRFSecretKey
	observer Observer

	files         map[string]*IndexedFile
	trapdoors     map[string]*Trapdoor
	queryHistory  map[string]*QueryHistoryEntry
	queriesByUser map[string]int // count of queries issued by userID in the current epoch

	epoch uint64

	stopCh   chan struct{}
	stopped  bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds an index with a freshly generated OPRF secret key. If
// cfg.EnableAutoEpoch is set, a background goroutine begins advancing the
// epoch every cfg.EpochDuration; Cleanup stops it.
func New(cfg Config) (*Index, error) {
	key, err := crypto.GenerateOPRFSecretKey()
	if err != nil {
		return nil, qerrors.NewCryptoError("index.New", err)
	}
	if cfg.EpochDuration <= 0 {
		cfg.EpochDuration = time.Duration(constants.DefaultEpochDurationSeconds) * time.Second
	}
	if cfg.MaxQueriesPerEpoch <= 0 {
		cfg.MaxQueriesPerEpoch = constants.DefaultMaxQueriesPerEpoch
	}
	if cfg.TrapdoorMaxUsage <= 0 {
		cfg.TrapdoorMaxUsage = constants.DefaultTrapdoorMaxUsage
	}
	if len(cfg.BucketSizes) == 0 {
		cfg.BucketSizes = append([]int(nil), constants.BucketSizes...)
	}

	idx := &Index{
		cfg:           cfg,
		oprfKey:       key,
		files:         make(map[string]*IndexedFile),
		trapdoors:     make(map[string]*Trapdoor),
		queryHistory:  make(map[string]*QueryHistoryEntry),
		queriesByUser: make(map[string]int),
		stopCh:        make(chan struct{}),
	}

	if cfg.EnableAutoEpoch {
		idx.startEpochTimer()
	}

	return idx, nil
}

// SetObserver attaches the observer used for metrics/tracing hooks.
func (idx *Index) SetObserver(o Observer) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.observer = o
}

func (idx *Index) startEpochTimer() {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		ticker := time.NewTicker(idx.cfg.EpochDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				idx.AdvanceEpoch()
			case <-idx.stopCh:
				return
			}
		}
	}()
}

// token computes the OPRF evaluation of x under the index's secret key.
func (idx *Index) token(x string) []byte {
	return crypto.OPRFEvaluate(idx.oprfKey, strings.ToLower(x))
}

// indexTokens derives every OPRF token an IndexFile call should store for
// md: file name, MIME type, every tag, every "key:value" custom field.
func (idx *Index) indexTokens(md model.Metadata) [][]byte {
	tokens := make([][]byte, 0, 2+len(md.Tags)+len(md.CustomFields))
	if md.FileName != "" {
		tokens = append(tokens, idx.token(md.FileName))
	}
	if md.MIMEType != "" {
		tokens = append(tokens, idx.token(md.MIMEType))
	}
	for _, tag := range md.Tags {
		tokens = append(tokens, idx.token(tag))
	}
	for k, v := range md.CustomFields {
		tokens = append(tokens, idx.token(k+":"+v))
	}
	return tokens
}

// IndexFile computes and stores the OPRF tokens for a file's metadata.
// Re-indexing an existing file id replaces its prior entry.
func (idx *Index) IndexFile(fileID, objectID string, md model.Metadata) error {
	if fileID == "" {
		return qerrors.NewContainerError("index.IndexFile", qerrors.ErrInvalidFileStructure)
	}

	idx.mu.Lock()
	tokens := idx.indexTokens(md)
	now := time.Now()
	idx.files[fileID] = &IndexedFile{
		FileID:       fileID,
		ObjectID:     objectID,
		Tokens:       tokens,
		Metadata:     md.Clone(),
		IndexedAt:    now,
		LastAccessed: now,
	}
	observer := idx.observer
	idx.mu.Unlock()

	if observer != nil {
		observer.OnIndexFile(fileID)
	}
	return nil
}

// RemoveFromIndex deletes a file's index entry, e.g. on deletion or
// re-encryption under a new user key.
func (idx *Index) RemoveFromIndex(fileID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.files, fileID)
}

// Search looks up query against every file userID may read, scores
// relevance, optionally perturbs and pads the result set for privacy, and
// truncates to limit. limit <= 0 means unbounded. No partial result set is
// ever returned: scoring, noise, shuffling, and padding all complete before
// Search returns.
func (idx *Index) Search(ctx context.Context, query, userID string, limit int) ([]SearchResult, error) {
	var end func(resultCount int, err error)
	if o := idx.currentObserver(); o != nil {
		ctx, end = o.OnSearch(ctx, userID, len(query))
	}

	results, err := idx.search(query, userID, limit)

	if end != nil {
		end(len(results), err)
	}
	return results, err
}

func (idx *Index) currentObserver() Observer {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.observer
}

func (idx *Index) search(query, userID string, limit int) ([]SearchResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.oprfKey == nil {
		return nil, qerrors.ErrOprfNotInitialized
	}

	if idx.cfg.EnableRateLimiting && idx.queriesByUser[userID] >= idx.cfg.MaxQueriesPerEpoch {
		if idx.observer != nil {
			idx.observer.OnRateLimited(userID)
		}
		return nil, qerrors.NewRateLimitError(fmt.Sprintf("user %s exceeded %d queries for epoch %d", userID, idx.cfg.MaxQueriesPerEpoch, idx.epoch))
	}

	trapdoorToken := idx.token(query)
	trapdoorID, err := randomID()
	if err != nil {
		return nil, qerrors.NewCryptoError("index.Search", err)
	}
	now := time.Now()
	td := &Trapdoor{
		ID:        trapdoorID,
		UserID:    userID,
		Token:     trapdoorToken,
		Epoch:     idx.epoch,
		CreatedAt: now,
		ExpiresAt: now.Add(idx.cfg.EpochDuration),
		MaxUsage:  idx.cfg.TrapdoorMaxUsage,
	}
	idx.trapdoors[trapdoorID] = td
	idx.queriesByUser[userID]++
	if idx.observer != nil {
		idx.observer.OnTrapdoorIssued(trapdoorID, userID)
	}

	lowerQuery := strings.ToLower(query)
	var results []SearchResult
	for _, file := range idx.files {
		if !file.Metadata.CanRead(userID) {
			continue
		}
		if !matchesTrapdoor(file.Tokens, trapdoorToken) {
			continue
		}
		td.UsageCount++
		file.LastAccessed = now
		results = append(results, SearchResult{
			FileID:      file.FileID,
			ObjectID:    file.ObjectID,
			FileName:    file.Metadata.FileName,
			Relevance:   relevanceScore(file.Metadata, lowerQuery),
			AccessLevel: constants.AccessLevelFull,
		})
	}

	if idx.cfg.EnableQueryLogging {
		queryID, err := randomID()
		if err == nil {
			idx.queryHistory[queryID] = &QueryHistoryEntry{
				ID:        queryID,
				UserID:    userID,
				Epoch:     idx.epoch,
				Query:     query,
				Timestamp: now,
			}
		}
	}

	if idx.cfg.EnablePrivacyEnhancement {
		if err := addRelevanceNoise(results); err != nil {
			return nil, qerrors.NewCryptoError("index.Search", err)
		}
		if err := secureShuffle(results); err != nil {
			return nil, qerrors.NewCryptoError("index.Search", err)
		}
	}

	if idx.cfg.EnableResultPadding {
		padded, err := padResults(results, idx.cfg.BucketSizes)
		if err != nil {
			return nil, qerrors.NewCryptoError("index.Search", err)
		}
		results = padded
		if err := secureShuffle(results); err != nil {
			return nil, qerrors.NewCryptoError("index.Search", err)
		}
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// matchesTrapdoor reports whether any of a file's stored tokens equals
// trapdoor, comparing in constant time.
func matchesTrapdoor(tokens [][]byte, trapdoor []byte) bool {
	for _, t := range tokens {
		if crypto.ConstantTimeCompare(t, trapdoor) {
			return true
		}
	}
	return false
}

// relevanceScore scores a matched file against the lowercased query text:
// +0.5 if the file name contains it, +0.3 if any tag contains it, up to
// +0.2 total from custom "key:value" fields that contain it.
func relevanceScore(md model.Metadata, lowerQuery string) float64 {
	score := 0.0
	if strings.Contains(strings.ToLower(md.FileName), lowerQuery) {
		score += 0.5
	}
	for _, tag := range md.Tags {
		if strings.Contains(strings.ToLower(tag), lowerQuery) {
			score += 0.3
			break
		}
	}
	fieldScore := 0.0
	for k, v := range md.CustomFields {
		if strings.Contains(strings.ToLower(k+":"+v), lowerQuery) {
			fieldScore += 0.2
		}
	}
	if fieldScore > 0.2 {
		fieldScore = 0.2
	}
	score += fieldScore
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// addRelevanceNoise adds uniform noise in [-0.05, 0.05] to each result's
// relevance, clamped back into [0, 1].
func addRelevanceNoise(results []SearchResult) error {
	for i := range results {
		n, err := secureRandomFloat()
		if err != nil {
			return err
		}
		noise := n*0.1 - 0.05
		v := results[i].Relevance + noise
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		results[i].Relevance = v
	}
	return nil
}

// padResults pads results up to the smallest bucket size at or above its
// current length, appending synthetic metadata-only entries.
func padResults(results []SearchResult, buckets []int) ([]SearchResult, error) {
	target := -1
	for _, b := range buckets {
		if b >= len(results) {
			target = b
			break
		}
	}
	if target < 0 || target == len(results) {
		return results, nil
	}

	padded := append([]SearchResult(nil), results...)
	for i := len(results); i < target; i++ {
		n, err := secureRandomFloat()
		if err != nil {
			return nil, err
		}
		relevance := 0.1 + n*0.2
		id, err := randomID()
		if err != nil {
			return nil, err
		}
		padded = append(padded, SearchResult{
			FileID:      "synthetic-" + id,
			Relevance:   relevance,
			AccessLevel: constants.AccessLevelMetadata,
		})
	}
	return padded, nil
}

// secureShuffle performs a Fisher-Yates shuffle using a CSPRNG.
func secureShuffle(s []SearchResult) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := secureRandomInt(i + 1)
		if err != nil {
			return err
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}

// secureRandomInt returns a uniform random integer in [0, n).
func secureRandomInt(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, qerrors.NewCryptoError("index.secureRandomInt", err)
	}
	return int(v.Int64()), nil
}

// secureRandomFloat returns a uniform random float64 in [0, 1).
func secureRandomFloat() (float64, error) {
	const precision = 1 << 24
	v, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return 0, qerrors.NewCryptoError("index.secureRandomFloat", err)
	}
	return float64(v.Int64()) / float64(precision), nil
}

// randomID returns a random hex-encoded identifier for trapdoors and
// query-history entries.
func randomID() (string, error) {
	b, err := crypto.SecureRandomBytes(16)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}

// RotateTrapdoors revokes expired trapdoors and resets the usage counter on
// trapdoors that have hit their usage cap but have not yet expired.
func (idx *Index) RotateTrapdoors() {
	idx.mu.Lock()
	now := time.Now()
	var revoked []string
	for id, td := range idx.trapdoors {
		if td.Revoked {
			continue
		}
		if now.After(td.ExpiresAt) {
			td.Revoked = true
			revoked = append(revoked, id)
			continue
		}
		if td.UsageCount >= td.MaxUsage {
			td.UsageCount = 0
		}
	}
	observer := idx.observer
	idx.mu.Unlock()

	if observer != nil {
		for _, id := range revoked {
			observer.OnTrapdoorRevoked(id)
		}
	}
}

// AdvanceEpoch increments the epoch counter, clears the query history
// (and per-user query counts used for rate limiting), and rotates
// trapdoors. Safe to call directly from tests that disable the background
// timer.
func (idx *Index) AdvanceEpoch() {
	if idx.cfg.EnableTrapdoorRotation {
		idx.RotateTrapdoors()
	}

	idx.mu.Lock()
	idx.epoch++
	epoch := idx.epoch
	idx.queryHistory = make(map[string]*QueryHistoryEntry)
	idx.queriesByUser = make(map[string]int)
	observer := idx.observer
	idx.mu.Unlock()

	if observer != nil {
		observer.OnEpochAdvanced(epoch)
	}
}

// Epoch returns the current epoch counter.
func (idx *Index) Epoch() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.epoch
}

// Size returns the number of indexed files.
func (idx *Index) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.files)
}

// Cleanup stops the background epoch timer (if running) and zeroizes the
// OPRF secret key and all indexed state. Idempotent and safe to call even
// when the timer was never started.
func (idx *Index) Cleanup() {
	idx.stopOnce.Do(func() {
		close(idx.stopCh)
	})
	idx.wg.Wait()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.oprfKey != nil {
		idx.oprfKey.Zeroize()
		idx.oprfKey = nil
	}
	for _, td := range idx.trapdoors {
		crypto.Zeroize(td.Token)
	}
	for _, f := range idx.files {
		for _, t := range f.Tokens {
			crypto.Zeroize(t)
		}
	}
	idx.files = make(map[string]*IndexedFile)
	idx.trapdoors = make(map[string]*Trapdoor)
	idx.queryHistory = make(map[string]*QueryHistoryEntry)
	idx.queriesByUser = make(map[string]int)
	idx.stopped = true
}
