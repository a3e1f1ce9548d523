package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/cloud10922/zkim/internal/constants"
	"github.com/cloud10922/zkim/pkg/fileservice"
	"github.com/cloud10922/zkim/pkg/metrics"
)

func decryptCommand() {
	fs := newFlagSet("decrypt", "USAGE: zkim decrypt [options]\n\nRecover the payload from a ZKIM container.")
	in := fs.String("in", "", "Path to the container file (required)")
	out := fs.String("out", "", "Path to write the recovered payload to (required)")
	fileID := fs.String("file-id", "", "File id printed by create (required)")
	user := fs.String("user", "", "Requesting user id (required)")
	platformKeyHex := fs.String("platform-key", "", "32-byte hex platform key (required)")
	userKeyHex := fs.String("user-key", "", "32-byte hex user key (required)")
	keystore := fs.String("keystore", "", "KEM-secret keystore path (default: <in>.kemstore)")

	_ = fs.Parse(os.Args[2:])

	if *in == "" || *out == "" || *fileID == "" || *user == "" || *platformKeyHex == "" || *userKeyHex == "" {
		fs.Usage()
		os.Exit(1)
	}

	wireBytes, err := os.ReadFile(*in)
	if err != nil {
		fatalf("read %s: %v", *in, err)
	}

	platformKey, err := hex.DecodeString(*platformKeyHex)
	if err != nil || len(platformKey) != constants.KeySize {
		fatalf("platform-key must be %d hex-encoded bytes", constants.KeySize)
	}
	userKey, err := hex.DecodeString(*userKeyHex)
	if err != nil || len(userKey) != constants.KeySize {
		fatalf("user-key must be %d hex-encoded bytes", constants.KeySize)
	}

	store, err := openFileStore(keystorePath(*keystore, *in))
	if err != nil {
		fatalf("open keystore: %v", err)
	}

	svc := fileservice.New(store, fileservice.Config{})
	svc.SetObserver(metrics.NewFileServiceObserver(metrics.FileServiceObserverConfig{}))

	payload, metadata, err := svc.Decrypt(context.Background(), wireBytes, *fileID, *user, platformKey, userKey)
	if err != nil {
		fatalf("decrypt: %v", err)
	}

	if err := os.WriteFile(*out, payload, 0o600); err != nil {
		fatalf("write %s: %v", *out, err)
	}

	fmt.Printf("recovered %s -> %s (%d bytes, file_name=%q, mime=%q)\n",
		*in, *out, len(payload), metadata.FileName, metadata.MIMEType)
}
