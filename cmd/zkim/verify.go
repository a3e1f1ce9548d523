package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/cloud10922/zkim/internal/constants"
	"github.com/cloud10922/zkim/pkg/fileservice"
	"github.com/cloud10922/zkim/pkg/metrics"
	"github.com/cloud10922/zkim/pkg/storage"
)

func verifyCommand() {
	fs := newFlagSet("verify", "USAGE: zkim verify [options]\n\nCheck a container's embedded ML-DSA-65 signature without decrypting it.")
	in := fs.String("in", "", "Path to the container file (required)")
	fileID := fs.String("file-id", "", "File id, used only to label log output")
	userKeyHex := fs.String("user-key", "", "32-byte hex user key (required)")

	_ = fs.Parse(os.Args[2:])

	if *in == "" || *userKeyHex == "" {
		fs.Usage()
		os.Exit(1)
	}

	wireBytes, err := os.ReadFile(*in)
	if err != nil {
		fatalf("read %s: %v", *in, err)
	}

	userKey, err := hex.DecodeString(*userKeyHex)
	if err != nil || len(userKey) != constants.KeySize {
		fatalf("user-key must be %d hex-encoded bytes", constants.KeySize)
	}

	svc := fileservice.New(storage.NewMemory(), fileservice.Config{})
	svc.SetObserver(metrics.NewFileServiceObserver(metrics.FileServiceObserverConfig{}))

	ok, err := svc.ValidateIntegrity(context.Background(), wireBytes, *fileID, userKey)
	if err != nil {
		fatalf("verify: %v", err)
	}

	if ok {
		fmt.Printf("%s: signature valid\n", *in)
		return
	}
	fmt.Printf("%s: signature INVALID\n", *in)
	os.Exit(1)
}
