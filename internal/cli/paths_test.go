package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/workgraph/pkg/config"
)

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")

	dir, err := defaultCacheDir()
	if err != nil {
		t.Fatalf("defaultCacheDir() error: %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".cache", appName); dir != want {
		t.Errorf("defaultCacheDir() = %q, want %q", dir, want)
	}
}

func TestDefaultCacheDirXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/custom-cache")

	dir, err := defaultCacheDir()
	if err != nil {
		t.Fatalf("defaultCacheDir() error: %v", err)
	}
	if want := filepath.Join("/tmp/custom-cache", appName); dir != want {
		t.Errorf("defaultCacheDir() = %q, want %q", dir, want)
	}
}

func TestCacheDirFromConfig(t *testing.T) {
	c := &CLI{cfg: &config.Config{CacheDir: "/srv/cache"}}
	if got := c.cacheDir(); got != "/srv/cache" {
		t.Errorf("cacheDir() = %q, want /srv/cache", got)
	}

	t.Setenv("XDG_CACHE_HOME", "/tmp/x")
	c = &CLI{}
	if got := c.cacheDir(); got != filepath.Join("/tmp/x", appName) {
		t.Errorf("cacheDir() without config = %q", got)
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "ab")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{filepath.Join(dir, "a.json"), filepath.Join(sub, "b.json")} {
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := clearDir(dir)
	if err != nil {
		t.Fatalf("clearDir() error: %v", err)
	}
	if n != 2 {
		t.Errorf("clearDir() removed %d files, want 2", n)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory not empty after clear: %v", entries)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache root removed: %v", err)
	}

	if _, err := clearDir(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("clearDir(missing) error = %v, want not-exist", err)
	}
}
