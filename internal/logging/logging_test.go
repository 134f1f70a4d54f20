package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFor_WritesPrefixedLinesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "parkd.log")

	logs, err := Open(Config{File: path, Quiet: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	logs.For("lots").Printf("refreshed %d lots", 5)
	logs.For("reconcile").Println("sync complete")
	if err := logs.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "[lots] ") || !strings.HasSuffix(lines[0], "refreshed 5 lots") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[reconcile] ") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestOpen_QuietWithoutFileDiscards(t *testing.T) {
	logs, err := Open(Config{Quiet: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	logs.For("feed").Println("dropped")
	if err := logs.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}
