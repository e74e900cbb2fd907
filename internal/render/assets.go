package render

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// assetTypes maps the extensions templates are allowed to reference to their
// content types. mime.TypeByExtension misses webp on some systems, so the
// common image types are pinned here.
var assetTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// AssetStore reads template assets (backgrounds, images) directly from a
// configured root directory. Lookups are sandboxed: a reference may not
// escape the root. Loaded assets are cached for the life of the store since
// the same background is read once per page otherwise.
type AssetStore struct {
	root string

	mu    sync.Mutex
	cache map[string]assetEntry
}

type assetEntry struct {
	data        []byte
	contentType string
}

// NewAssetStore creates a store rooted at dir.
func NewAssetStore(dir string) *AssetStore {
	return &AssetStore{
		root:  filepath.Clean(dir),
		cache: make(map[string]assetEntry),
	}
}

// Resolve returns the asset bytes and content type for a reference.
// References use forward slashes relative to the root.
func (s *AssetStore) Resolve(ref string) ([]byte, string, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	entry, ok := s.cache[p]
	s.mu.Unlock()
	if ok {
		return entry.data, entry.contentType, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", err
	}

	ct := assetTypes[strings.ToLower(filepath.Ext(p))]
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(p))
	}
	if ct == "" {
		// Sniff the first bytes, same as the localfs storage adapter.
		n := len(data)
		if n > 512 {
			n = 512
		}
		ct = http.DetectContentType(data[:n])
	}

	s.mu.Lock()
	s.cache[p] = assetEntry{data: data, contentType: ct}
	s.mu.Unlock()

	return data, ct, nil
}

// path maps a reference to an absolute file path under the root, rejecting
// traversal outside of it.
func (s *AssetStore) path(ref string) (string, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "/")
	if ref == "" {
		return "", fmt.Errorf("empty asset reference")
	}

	p := filepath.Join(s.root, filepath.FromSlash(ref))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("asset reference escapes root: %s", ref)
	}
	return p, nil
}

// Clear drops all cached assets.
func (s *AssetStore) Clear() {
	s.mu.Lock()
	s.cache = make(map[string]assetEntry)
	s.mu.Unlock()
}
