package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// URLPrefix is where LocalBlobs payloads are served from.
const URLPrefix = "/files/"

var ErrInvalidBlobURL = errors.New("invalid blob url")

// Blobs stores encoded payloads and hands back references to them.
type Blobs interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
}

// LocalBlobs keeps payloads on disk under Root.
type LocalBlobs struct {
	Root string
}

func NewLocalBlobs(root string) *LocalBlobs {
	return &LocalBlobs{Root: root}
}

func (b *LocalBlobs) Save(_ context.Context, name string, data []byte) (string, error) {
	const op = "storage.LocalBlobs.Save"

	rel, err := cleanName(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	full := filepath.Join(b.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return URLPrefix + rel, nil
}

func (b *LocalBlobs) Open(_ context.Context, url string) ([]byte, error) {
	const op = "storage.LocalBlobs.Open"

	full, err := b.pathFor(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

func (b *LocalBlobs) Delete(_ context.Context, url string) error {
	const op = "storage.LocalBlobs.Delete"

	full, err := b.pathFor(url)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *LocalBlobs) pathFor(url string) (string, error) {
	if !strings.HasPrefix(url, URLPrefix) {
		return "", ErrInvalidBlobURL
	}
	rel, err := cleanName(strings.TrimPrefix(url, URLPrefix))
	if err != nil {
		return "", err
	}
	return filepath.Join(b.Root, filepath.FromSlash(rel)), nil
}

func cleanName(name string) (string, error) {
	rel := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." {
		return "", ErrInvalidBlobURL
	}
	return rel, nil
}

// MemoryBlobs keeps payloads in process memory.
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobs) Save(_ context.Context, name string, data []byte) (string, error) {
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	url := URLPrefix + rel
	m.mu.Lock()
	m.blobs[url] = append([]byte(nil), data...)
	m.mu.Unlock()
	return url, nil
}

func (m *MemoryBlobs) Open(_ context.Context, url string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[url]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *MemoryBlobs) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	delete(m.blobs, url)
	m.mu.Unlock()
	return nil
}
