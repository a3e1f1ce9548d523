package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/cloud10922/zkim/internal/errors"
	"github.com/cloud10922/zkim/pkg/index"
	"github.com/cloud10922/zkim/pkg/model"
)

func TestSearchRateLimitPerEpoch(t *testing.T) {
	cfg := indexTestConfig()
	cfg.MaxQueriesPerEpoch = 2
	idx, err := index.New(cfg)
	require.NoError(t, err)
	t.Cleanup(idx.Cleanup)

	require.NoError(t, idx.IndexFile("f1", "f1", model.Metadata{FileName: "report.txt", UserID: "alice"}))

	ctx := context.Background()

	_, err = idx.Search(ctx, "report", "alice", 0)
	require.NoError(t, err)
	_, err = idx.Search(ctx, "report", "alice", 0)
	require.NoError(t, err)

	_, err = idx.Search(ctx, "report", "alice", 0)
	assert.ErrorIs(t, err, qerrors.ErrRateLimitExceeded)
}

func TestSearchRateLimitResetsOnEpochAdvance(t *testing.T) {
	cfg := indexTestConfig()
	cfg.MaxQueriesPerEpoch = 1
	idx, err := index.New(cfg)
	require.NoError(t, err)
	t.Cleanup(idx.Cleanup)

	require.NoError(t, idx.IndexFile("f1", "f1", model.Metadata{FileName: "report.txt", UserID: "alice"}))

	ctx := context.Background()

	_, err = idx.Search(ctx, "report", "alice", 0)
	require.NoError(t, err)

	_, err = idx.Search(ctx, "report", "alice", 0)
	assert.ErrorIs(t, err, qerrors.ErrRateLimitExceeded)

	idx.AdvanceEpoch()

	_, err = idx.Search(ctx, "report", "alice", 0)
	assert.NoError(t, err)
}

func TestSearchRateLimitIsolatedPerUser(t *testing.T) {
	cfg := indexTestConfig()
	cfg.MaxQueriesPerEpoch = 1
	idx, err := index.New(cfg)
	require.NoError(t, err)
	t.Cleanup(idx.Cleanup)

	require.NoError(t, idx.IndexFile("f1", "f1", model.Metadata{
		FileName: "shared.txt",
		UserID:   "alice",
		ACL:      model.ACL{Read: []string{"bob"}},
	}))

	ctx := context.Background()

	_, err = idx.Search(ctx, "shared", "alice", 0)
	require.NoError(t, err)

	_, err = idx.Search(ctx, "shared", "bob", 0)
	assert.NoError(t, err, "rate limiting is tracked per user, so bob's first query must not be blocked by alice's")
}

func TestTrapdoorExpiryIsEnforcedAfterRotation(t *testing.T) {
	cfg := indexTestConfig()
	cfg.EnableTrapdoorRotation = true
	idx, err := index.New(cfg)
	require.NoError(t, err)
	t.Cleanup(idx.Cleanup)

	require.NoError(t, idx.IndexFile("f1", "f1", model.Metadata{FileName: "doc.txt", UserID: "alice"}))

	ctx := context.Background()
	_, err = idx.Search(ctx, "doc", "alice", 0)
	require.NoError(t, err)

	idx.RotateTrapdoors()

	_, err = idx.Search(ctx, "doc", "alice", 0)
	assert.NoError(t, err)
}

func TestEpochAdvancesOnTimer(t *testing.T) {
	cfg := indexTestConfig()
	cfg.EnableAutoEpoch = true
	cfg.EpochDuration = 30 * time.Millisecond
	idx, err := index.New(cfg)
	require.NoError(t, err)
	t.Cleanup(idx.Cleanup)

	start := idx.Epoch()
	require.Eventually(t, func() bool {
		return idx.Epoch() > start
	}, 500*time.Millisecond, 10*time.Millisecond)
}
