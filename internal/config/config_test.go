package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/parkd/internal/facilities"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestLoad_FileDerivesPathsFromDataDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "data_dir: "+dir+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(DefaultIn(dir), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
data_dir: `+dir+`
offline: true
cache:
  expiry: 12h
remote:
  url: libsql://parkd.example.turso.io
  auth_token: secret
  driver: libsql
facilities:
  lang: zh_TW
feed:
  addr: 127.0.0.1:9999
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.Offline {
		t.Error("Offline = false, want true")
	}
	if cfg.Cache.Expiry != 12*time.Hour {
		t.Errorf("Cache.Expiry = %s, want 12h", cfg.Cache.Expiry)
	}
	if cfg.Remote.URL != "libsql://parkd.example.turso.io" || cfg.Remote.AuthToken != "secret" || cfg.Remote.Driver != "libsql" {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Lang() != facilities.LangTraditionalChinese {
		t.Errorf("Lang() = %s, want zh_TW", cfg.Lang())
	}
	if cfg.Feed.Addr != "127.0.0.1:9999" {
		t.Errorf("Feed.Addr = %s", cfg.Feed.Addr)
	}
	if want := filepath.Join(dir, "cache.db"); cfg.Cache.Path != want {
		t.Errorf("Cache.Path = %s, want %s", cfg.Cache.Path, want)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "data_dir: "+dir+"\nfeed:\n  addr: 127.0.0.1:1111\n")
	t.Setenv("PARKD_FEED_ADDR", "127.0.0.1:2222")
	t.Setenv("PARKD_CACHE_EXPIRY", "30m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Feed.Addr != "127.0.0.1:2222" {
		t.Errorf("Feed.Addr = %s, want env value", cfg.Feed.Addr)
	}
	if cfg.Cache.Expiry != 30*time.Minute {
		t.Errorf("Cache.Expiry = %s, want 30m", cfg.Cache.Expiry)
	}
}

func TestLoad_MissingDefaultFileIsFine(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PARKD_DATA_DIR", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if want := filepath.Join(dir, "cache.db"); cfg.Cache.Path != want {
		t.Errorf("Cache.Path = %s, want %s", cfg.Cache.Path, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "explicit file missing",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
		},
		{
			name: "invalid yaml",
			path: func(t *testing.T) string { return writeConfig(t, "cache: [\n") },
		},
		{
			name: "non-positive expiry",
			path: func(t *testing.T) string {
				return writeConfig(t, "data_dir: "+t.TempDir()+"\ncache:\n  expiry: 0s\n")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path(t)); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got, want := expandHome("~/x/cache.db"), filepath.Join(home, "x/cache.db"); got != want {
		t.Errorf("expandHome() = %s, want %s", got, want)
	}
	if got := expandHome("/abs/cache.db"); got != "/abs/cache.db" {
		t.Errorf("expandHome() = %s", got)
	}
}
