package render

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAssetStoreResolve(t *testing.T) {
	store := NewAssetStore("testdata")

	data, contentType, err := store.Resolve("background.png")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected asset bytes")
	}
	if contentType != "image/png" {
		t.Errorf("content type = %q, want image/png", contentType)
	}

	// Leading slash is tolerated.
	if _, _, err := store.Resolve("/background.png"); err != nil {
		t.Errorf("leading slash: %v", err)
	}
}

func TestAssetStoreContentTypes(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.png":  "image/png",
		"b.jpg":  "image/jpeg",
		"c.jpeg": "image/jpeg",
		"d.webp": "image/webp",
		"e.svg":  "image/svg+xml",
	}
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := NewAssetStore(dir)
	for name, want := range files {
		_, got, err := store.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
		if got != want {
			t.Errorf("Resolve(%s) content type = %q, want %q", name, got, want)
		}
	}
}

func TestAssetStoreSandbox(t *testing.T) {
	store := NewAssetStore("testdata")

	for _, ref := range []string{
		"../assets_test.go",
		"../../pkg/logger/logger.go",
		"sub/../../escape.png",
		"",
		"  ",
	} {
		if _, _, err := store.Resolve(ref); err == nil {
			t.Errorf("Resolve(%q) should have been rejected", ref)
		}
	}
}

func TestAssetStoreMissingFile(t *testing.T) {
	store := NewAssetStore("testdata")
	if _, _, err := store.Resolve("nope.png"); err == nil {
		t.Fatal("expected error for missing asset")
	}
}

func TestAssetStoreCache(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bg.png")
	if err := os.WriteFile(p, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewAssetStore(dir)
	if _, _, err := store.Resolve("bg.png"); err != nil {
		t.Fatal(err)
	}

	// Cached: removing the file does not affect subsequent lookups.
	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	data, _, err := store.Resolve("bg.png")
	if err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("cached data = %q", data)
	}

	store.Clear()
	if _, _, err := store.Resolve("bg.png"); err == nil {
		t.Error("expected miss after Clear")
	}
}
