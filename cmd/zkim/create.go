package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloud10922/zkim/internal/constants"
	"github.com/cloud10922/zkim/pkg/crypto"
	"github.com/cloud10922/zkim/pkg/fileservice"
	"github.com/cloud10922/zkim/pkg/metrics"
	"github.com/cloud10922/zkim/pkg/model"
)

func createCommand() {
	fs := newFlagSet("create", "USAGE: zkim create [options]\n\nSeal a file into a ZKIM container.")
	in := fs.String("in", "", "Path to the payload file to seal (required)")
	out := fs.String("out", "", "Path to write the container to (required)")
	filename := fs.String("filename", "", "Metadata file name (defaults to --in's base name)")
	mime := fs.String("mime", "application/octet-stream", "Metadata MIME type")
	user := fs.String("user", "", "Owning user id (required)")
	tags := fs.String("tags", "", "Comma-separated tags")
	readers := fs.String("readers", "", "Comma-separated user ids granted read access")
	platformKeyHex := fs.String("platform-key", "", "32-byte hex platform key (generated if empty)")
	userKeyHex := fs.String("user-key", "", "32-byte hex user key (generated if empty)")
	compress := fs.Bool("compress", true, "Enable compression")
	keystore := fs.String("keystore", "", "KEM-secret keystore path (default: <out>.kemstore)")

	_ = fs.Parse(os.Args[2:])

	if *in == "" || *out == "" || *user == "" {
		fs.Usage()
		os.Exit(1)
	}

	payload, err := os.ReadFile(*in)
	if err != nil {
		fatalf("read %s: %v", *in, err)
	}

	platformKey, generatedPlatform := resolveKey(*platformKeyHex)
	userKey, generatedUser := resolveKey(*userKeyHex)

	name := *filename
	if name == "" {
		name = filepath.Base(*in)
	}

	store, err := openFileStore(keystorePath(*keystore, *out))
	if err != nil {
		fatalf("open keystore: %v", err)
	}

	svc := fileservice.New(store, fileservice.Config{
		EnableCompression: *compress,
		Algorithm:         constants.CompressionGzip,
	})
	svc.SetObserver(metrics.NewFileServiceObserver(metrics.FileServiceObserverConfig{}))

	result, err := svc.Create(context.Background(), fileservice.CreateRequest{
		Payload: payload,
		Metadata: model.Metadata{
			FileName:     name,
			MIMEType:     *mime,
			Tags:         splitNonEmpty(*tags),
			UserID:       *user,
			CreatedAt:    time.Now(),
			ACL:          model.ACL{Read: splitNonEmpty(*readers)},
			CustomFields: map[string]string{},
		},
		PlatformKey: platformKey,
		UserKey:     userKey,
	})
	if err != nil {
		fatalf("create: %v", err)
	}

	if err := os.WriteFile(*out, result.Wire, 0o600); err != nil {
		fatalf("write %s: %v", *out, err)
	}

	fmt.Printf("sealed %s -> %s (file_id=%s, %d bytes)\n", *in, *out, result.FileID, len(result.Wire))
	if generatedPlatform {
		fmt.Printf("platform_key: %s\n", hex.EncodeToString(platformKey))
	}
	if generatedUser {
		fmt.Printf("user_key:     %s\n", hex.EncodeToString(userKey))
	}
}

// resolveKey decodes hexKey if non-empty, otherwise draws a fresh 32-byte
// key from the CSPRNG and reports that it generated one.
func resolveKey(hexKey string) (key []byte, generated bool) {
	if hexKey == "" {
		return crypto.MustSecureRandomBytes(constants.KeySize), true
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != constants.KeySize {
		fatalf("key must be %d hex-encoded bytes", constants.KeySize)
	}
	return raw, false
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
