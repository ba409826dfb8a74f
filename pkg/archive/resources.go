package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/fsutil"
)

// Resource is a file or directory copied into the bundle's Resources
// directory.
type Resource struct {
	Source string // File or directory; ignored when Data is set
	Dest   string // Relative destination; defaults to the source basename
	Data   []byte
}

// CopyResources copies resources into resDir and returns the written
// paths, sorted.
func (w *Writer) CopyResources(ctx context.Context, resDir string, resources []Resource) ([]string, error) {
	written := make([]string, 0, len(resources))
	for _, r := range resources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := r.Dest
		if rel == "" {
			rel = filepath.Base(r.Source)
		}
		if err := macerrors.ValidatePath(filepath.ToSlash(rel)); err != nil {
			return nil, err
		}
		dst := filepath.Join(resDir, rel)

		var err error
		if r.Data != nil {
			err = fsutil.WriteFile(dst, r.Data, 0o644)
		} else {
			err = fsutil.Copy(r.Source, dst)
		}
		if err != nil {
			return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "copy resource %s", rel)
		}
		written = append(written, dst)
		w.logger().Debug("copied resource", "dest", rel)
	}
	slices.Sort(written)
	return slices.Compact(written), nil
}

// IsJunk reports whether a file name is version-control or editor debris
// that never belongs in a bundle.
func IsJunk(name string) bool {
	switch name {
	case ".svn", "CVS", ".hg", ".git", "__pycache__", ".DS_Store":
		return true
	}
	return strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".orig") ||
		(strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".swp"))
}

// PackageData lists the data files of package id whose directories are
// dirs. Code files (suffixes in codeSuffixes plus .py, .pyc and .pyo) and
// subpackages are left out; they enter the bundle as modules. Plain
// subdirectories are returned as a single directory entry.
func PackageData(id string, dirs, codeSuffixes []string) ([]Data, error) {
	suffixes := append([]string{".py", ".pyc", ".pyo"}, codeSuffixes...)
	isCode := func(name string) bool {
		for _, s := range suffixes {
			if strings.HasSuffix(name, s) {
				return true
			}
		}
		return false
	}

	base := strings.ReplaceAll(id, ".", "/")
	var data []Data
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("list package %s: %w", id, err)
		}
		for _, e := range entries {
			name := e.Name()
			if IsJunk(name) {
				continue
			}
			p := filepath.Join(dir, name)
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if isPackageDir(p, suffixes) {
					continue
				}
			} else if isCode(name) {
				continue
			}
			data = append(data, Data{Name: path.Join(base, name), Path: p})
		}
	}
	return data, nil
}

func isPackageDir(dir string, suffixes []string) bool {
	for _, s := range suffixes {
		if _, err := os.Stat(filepath.Join(dir, "__init__"+s)); err == nil {
			return true
		}
	}
	return false
}
