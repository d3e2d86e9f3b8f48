package capture

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// TempFileAllocator hands out playable file:// handles for finished blobs,
// standing in for the browser's object-URL allocator. Each handle must be
// revoked exactly once; revoking removes the backing file.
type TempFileAllocator struct {
	dir string

	mu    sync.Mutex
	owned map[string]string
}

func NewTempFileAllocator(dir string) *TempFileAllocator {
	return &TempFileAllocator{dir: dir, owned: make(map[string]string)}
}

func (a *TempFileAllocator) Create(blob []byte, mimeType string) (string, error) {
	file, err := os.CreateTemp(a.dir, "vocalog-*."+blobExt(mimeType))
	if err != nil {
		return "", fmt.Errorf("failed to create blob file: %w", err)
	}
	if _, err := file.Write(blob); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("failed to write blob file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("failed to close blob file: %w", err)
	}

	url := "file://" + file.Name()
	a.mu.Lock()
	a.owned[url] = file.Name()
	a.mu.Unlock()
	return url, nil
}

func (a *TempFileAllocator) Revoke(url string) error {
	a.mu.Lock()
	path, ok := a.owned[url]
	if ok {
		delete(a.owned, url)
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown blob url: %s", url)
	}
	return os.Remove(path)
}

func blobExt(mimeType string) string {
	subtype := mimeType
	if idx := strings.Index(subtype, "/"); idx >= 0 {
		subtype = subtype[idx+1:]
	}
	if idx := strings.Index(subtype, ";"); idx >= 0 {
		subtype = subtype[:idx]
	}
	if subtype == "" {
		return "bin"
	}
	return subtype
}
