package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloud10922/zkim/internal/constants"
	"github.com/cloud10922/zkim/pkg/fileservice"
	"github.com/cloud10922/zkim/pkg/index"
	"github.com/cloud10922/zkim/pkg/metrics"
)

// searchCommand demonstrates the searchable index end to end: since a CLI
// invocation is a fresh process, there is no long-lived index to query
// against, so this rebuilds one from every "<file_id>.zkim" container found
// in --dir (the naming convention "zkim create --out <file_id>.zkim"
// produces) before running a single query.
func searchCommand() {
	fs := newFlagSet("search", "USAGE: zkim search [options]\n\nRun an OPRF query over every container in a directory.")
	dir := fs.String("dir", "", "Directory of <file_id>.zkim containers (required)")
	query := fs.String("query", "", "Search query text (required)")
	user := fs.String("user", "", "Requesting user id (required)")
	platformKeyHex := fs.String("platform-key", "", "32-byte hex platform key (required)")
	userKeyHex := fs.String("user-key", "", "32-byte hex user key (required)")
	limit := fs.Int("limit", 0, "Maximum results to return (0 = unbounded)")
	keystore := fs.String("keystore", "", "KEM-secret keystore path (default: <dir>/kemstore)")
	metricsAddr := fs.String("metrics-addr", "", "If set, serve Prometheus/health endpoints on this address while searching")

	_ = fs.Parse(os.Args[2:])

	if *dir == "" || *query == "" || *user == "" || *platformKeyHex == "" || *userKeyHex == "" {
		fs.Usage()
		os.Exit(1)
	}

	platformKey, err := hex.DecodeString(*platformKeyHex)
	if err != nil || len(platformKey) != constants.KeySize {
		fatalf("platform-key must be %d hex-encoded bytes", constants.KeySize)
	}
	userKey, err := hex.DecodeString(*userKeyHex)
	if err != nil || len(userKey) != constants.KeySize {
		fatalf("user-key must be %d hex-encoded bytes", constants.KeySize)
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		fatalf("read %s: %v", *dir, err)
	}

	storePath := keystorePath(*keystore, filepath.Join(*dir, "kemstore"))
	store, err := openFileStore(storePath)
	if err != nil {
		fatalf("open keystore: %v", err)
	}
	svc := fileservice.New(store, fileservice.Config{})
	svc.SetObserver(metrics.NewFileServiceObserver(metrics.FileServiceObserverConfig{}))

	cfg := index.DefaultConfig()
	cfg.EnableAutoEpoch = false
	idx, err := index.New(cfg)
	if err != nil {
		fatalf("build index: %v", err)
	}
	defer idx.Cleanup()
	idx.SetObserver(metrics.NewIndexObserver(metrics.IndexObserverConfig{}))

	if *metricsAddr != "" {
		obsServer := metrics.NewServer(metrics.ServerConfig{
			Namespace:        "zkim",
			EnablePrometheus: true,
			EnableHealth:     true,
		})
		go func() {
			if serveErr := obsServer.ListenAndServe(*metricsAddr); serveErr != nil && serveErr != http.ErrServerClosed {
				metrics.Warn("observability server stopped", metrics.Fields{"error": serveErr.Error()})
			}
		}()
	}

	ctx := context.Background()
	indexed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zkim") {
			continue
		}
		fileID := strings.TrimSuffix(entry.Name(), ".zkim")
		path := filepath.Join(*dir, entry.Name())

		wireBytes, readErr := os.ReadFile(path)
		if readErr != nil {
			fmt.Fprintf(os.Stderr, "zkim: skipping %s: %v\n", path, readErr)
			continue
		}

		_, metadata, decryptErr := svc.Decrypt(ctx, wireBytes, fileID, *user, platformKey, userKey)
		if decryptErr != nil {
			fmt.Fprintf(os.Stderr, "zkim: skipping %s: %v\n", path, decryptErr)
			continue
		}

		if indexErr := idx.IndexFile(fileID, fileID, *metadata); indexErr != nil {
			fmt.Fprintf(os.Stderr, "zkim: failed to index %s: %v\n", path, indexErr)
			continue
		}
		indexed++
	}

	results, err := idx.Search(ctx, *query, *user, *limit)
	if err != nil {
		fatalf("search: %v", err)
	}

	fmt.Printf("indexed %d container(s), %d result(s) for %q:\n", indexed, len(results), *query)
	for _, r := range results {
		fmt.Printf("  %-24s relevance=%.2f access=%s name=%q\n", r.FileID, r.Relevance, r.AccessLevel, r.FileName)
	}
}
