package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func write(t *testing.T, path, content string, perm fs.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestCopyFileOverwritesAndKeepsMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "libfoo.dylib")
	dst := filepath.Join(dir, "out", "deep", "libfoo.dylib")
	write(t, src, "new", 0o555)
	write(t, dst, "old contents", 0o644)

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error: %v", err)
	}
	if got := read(t, dst); got != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
	fi, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", fi.Mode().Perm())
	}
}

func TestCopyFileReplacesSymlink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	other := filepath.Join(dir, "other")
	dst := filepath.Join(dir, "link")
	write(t, src, "a", 0o644)
	write(t, other, "other", 0o644)
	if err := os.Symlink(other, dst); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error: %v", err)
	}
	if got := read(t, other); got != "other" {
		t.Errorf("copy wrote through the symlink: other = %q", got)
	}
	if fi, _ := os.Lstat(dst); fi.Mode()&fs.ModeSymlink != 0 {
		t.Error("destination is still a symlink")
	}
}

func TestCopyTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Foo.framework")
	write(t, filepath.Join(src, "Versions", "A", "Foo"), "bin", 0o755)
	write(t, filepath.Join(src, "Versions", "A", "Headers", "foo.h"), "h", 0o644)
	write(t, filepath.Join(src, "Versions", "A", "Resources", "Info.plist"), "plist", 0o644)
	if err := os.Symlink("A", filepath.Join(src, "Versions", "Current")); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "out", "Foo.framework")
	skip := func(rel string, d fs.DirEntry) bool { return strings.HasSuffix(rel, "/Headers") }
	if err := CopyTree(src, dst, skip); err != nil {
		t.Fatalf("CopyTree() error: %v", err)
	}

	if got := read(t, filepath.Join(dst, "Versions", "A", "Resources", "Info.plist")); got != "plist" {
		t.Errorf("Info.plist = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dst, "Versions", "A", "Headers")); !os.IsNotExist(err) {
		t.Errorf("Headers copied, stat error = %v", err)
	}
	if link, err := os.Readlink(filepath.Join(dst, "Versions", "Current")); err != nil || link != "A" {
		t.Errorf("Current link = %q, %v; want A", link, err)
	}
}

func TestSymlinkReplaces(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "libfoo.dylib")
	write(t, link, "stale file", 0o644)

	for range 2 {
		if err := Symlink("libfoo.1.dylib", link); err != nil {
			t.Fatalf("Symlink() error: %v", err)
		}
	}
	if got, err := os.Readlink(link); err != nil || got != "libfoo.1.dylib" {
		t.Errorf("Readlink() = %q, %v", got, err)
	}
}

func TestWriteFileAndCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "qt.conf")
	if err := WriteFile(path, []byte("[Paths]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if got := read(t, path); got != "[Paths]\n" {
		t.Errorf("content = %q", got)
	}

	dst := filepath.Join(dir, "copy")
	write(t, filepath.Join(dst, "stale"), "x", 0o644)
	if err := Copy(filepath.Join(dir, "a"), dst); err != nil {
		t.Fatalf("Copy() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "stale")); !os.IsNotExist(err) {
		t.Error("Copy() of a directory kept stale files")
	}
	if got := read(t, filepath.Join(dst, "b", "qt.conf")); got != "[Paths]\n" {
		t.Errorf("copied content = %q", got)
	}
}
