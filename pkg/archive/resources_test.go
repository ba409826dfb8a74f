package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	macerrors "github.com/matzehuels/macpack/pkg/errors"
)

func TestCopyResources(t *testing.T) {
	dir := t.TempDir()
	icon := write(t, filepath.Join(dir, "assets", "app.icns"), "icon")
	tree := filepath.Join(dir, "assets", "themes")
	write(t, filepath.Join(tree, "dark", "style.css"), "body{}")
	resDir := filepath.Join(dir, "Resources")
	write(t, filepath.Join(resDir, "themes", "stale.css"), "old")

	w := &Writer{}
	got, err := w.CopyResources(context.Background(), resDir, []Resource{
		{Source: icon},
		{Source: tree},
		{Dest: "qt.conf", Data: []byte("[Paths]\n")},
	})
	if err != nil {
		t.Fatalf("CopyResources() error: %v", err)
	}
	want := []string{
		filepath.Join(resDir, "app.icns"),
		filepath.Join(resDir, "qt.conf"),
		filepath.Join(resDir, "themes"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(resDir, "themes", "dark", "style.css")); err != nil {
		t.Errorf("tree not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(resDir, "themes", "stale.css")); !os.IsNotExist(err) {
		t.Errorf("stale file survived a re-copy")
	}
}

func TestCopyResourcesRejectsEscapingDest(t *testing.T) {
	w := &Writer{}
	_, err := w.CopyResources(context.Background(), t.TempDir(), []Resource{{Dest: "../outside", Data: []byte("x")}})
	if !macerrors.Is(err, macerrors.ErrCodeInvalidPath) {
		t.Fatalf("error = %v, want %s", err, macerrors.ErrCodeInvalidPath)
	}
}

func TestIsJunk(t *testing.T) {
	tests := map[string]bool{
		".git":        true,
		"__pycache__": true,
		"file~":       true,
		"a.py.orig":   true,
		".main.swp":   true,
		"data.json":   false,
		".hidden":     false,
	}
	for name, want := range tests {
		if got := IsJunk(name); got != want {
			t.Errorf("IsJunk(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPackageData(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "pkg")
	write(t, filepath.Join(pkg, "__init__.py"), "")
	write(t, filepath.Join(pkg, "mod.py"), "")
	write(t, filepath.Join(pkg, "_speedups.cpython-312-darwin.so"), "")
	write(t, filepath.Join(pkg, "schema.json"), "{}")
	write(t, filepath.Join(pkg, "templates", "index.html"), "<html>")
	write(t, filepath.Join(pkg, "sub", "__init__.py"), "")
	write(t, filepath.Join(pkg, "__pycache__", "mod.cpython-312.pyc"), "")

	got, err := PackageData("pkg", []string{pkg, filepath.Join(dir, "missing")}, []string{".cpython-312-darwin.so", ".so"})
	if err != nil {
		t.Fatal(err)
	}
	want := []Data{
		{Name: "pkg/schema.json", Path: filepath.Join(pkg, "schema.json")},
		{Name: "pkg/templates", Path: filepath.Join(pkg, "templates")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PackageData mismatch (-want +got):\n%s", diff)
	}
}
