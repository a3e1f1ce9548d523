package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"
)

// fileStore is a storage.Store backed by a single JSON file on disk. The
// CLI needs this because keypipeline seals each container's KEM
// decapsulation secret into whatever storage.Store the caller supplies
// (spec.md §6); a CLI invocation is a fresh process each time, so an
// in-memory store would lose that secret the instant "zkim create" exits.
type fileStore struct {
	mu   sync.Mutex
	path string
	data map[string][]byte
}

func openFileStore(path string) (*fileStore, error) {
	fs := &fileStore{path: path, data: make(map[string][]byte)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return fs, nil
	}

	var encoded map[string][]byte
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	for k, v := range encoded {
		fs.data[k] = v
	}
	return fs, nil
}

func (fs *fileStore) flush() error {
	raw, err := json.Marshal(fs.data)
	if err != nil {
		return err
	}
	return os.WriteFile(fs.path, raw, 0o600)
}

func (fs *fileStore) Set(_ context.Context, key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	fs.data[key] = cp
	return fs.flush()
}

func (fs *fileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (fs *fileStore) Has(_ context.Context, key string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.data[key]
	return ok, nil
}

func (fs *fileStore) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.data, key)
	return fs.flush()
}

func (fs *fileStore) Clear(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data = make(map[string][]byte)
	return fs.flush()
}

func (fs *fileStore) Keys(_ context.Context) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	keys := make([]string, 0, len(fs.data))
	for k := range fs.data {
		keys = append(keys, k)
	}
	return keys, nil
}
