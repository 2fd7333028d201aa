package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandHomeNoTilde(t *testing.T) {
	got, err := ExpandHome("/var/cache/models")
	if err != nil { t.Fatalf("err: %v", err) }
	if got != "/var/cache/models" { t.Fatalf("got %q", got) }
}

func TestExpandHomeEmpty(t *testing.T) {
	got, err := ExpandHome("")
	if err != nil { t.Fatalf("err: %v", err) }
	if got != "" { t.Fatalf("got %q", got) }
}

func TestExpandHomeTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil { t.Skip("no home dir") }
	got, err := ExpandHome("~/cache")
	if err != nil { t.Fatalf("err: %v", err) }
	if !strings.HasPrefix(got, home) { t.Fatalf("got %q, want prefix %q", got, home) }
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	if !PathExists(dir) { t.Fatalf("expected %q to exist", dir) }
	if PathExists(filepath.Join(dir, "nope")) { t.Fatal("expected missing path") }
}

func TestDirNonEmpty(t *testing.T) {
	dir := t.TempDir()
	if DirNonEmpty(dir) { t.Fatal("empty dir reported non-empty") }
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil { t.Fatal(err) }
	if !DirNonEmpty(dir) { t.Fatal("non-empty dir reported empty") }
	if DirNonEmpty(filepath.Join(dir, "missing")) { t.Fatal("missing dir reported non-empty") }
}
