package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/macpack/pkg/pyenv"
)

// Layout holds the paths of one bundle.
//
//	<Name>.app/Contents/
//	    MacOS/python
//	    Frameworks/
//	    Resources/__boot__.py
//	    Resources/<script>.py
//	    Resources/lib/python312.zip
//	    Resources/lib/python3.12/lib-dynload/
type Layout struct {
	Root       string `json:"root"`
	Contents   string `json:"contents"`
	MacOS      string `json:"macos"`
	Resources  string `json:"resources"`
	Frameworks string `json:"frameworks"`
	LibDir     string `json:"lib_dir"`
	Archive    string `json:"archive"`
	PythonDir  string `json:"python_dir"`
	DynLoad    string `json:"dynload"`
}

// NewLayout computes the layout of a bundle rooted at root for env.
func NewLayout(root string, env *pyenv.Env) Layout {
	contents := filepath.Join(root, "Contents")
	resources := filepath.Join(contents, "Resources")
	lib := filepath.Join(resources, "lib")
	pydir := filepath.Join(lib, "python"+env.ShortVersion())
	return Layout{
		Root:       root,
		Contents:   contents,
		MacOS:      filepath.Join(contents, "MacOS"),
		Resources:  resources,
		Frameworks: filepath.Join(contents, "Frameworks"),
		LibDir:     lib,
		Archive:    filepath.Join(lib, "python"+env.Tag()+".zip"),
		PythonDir:  pydir,
		DynLoad:    filepath.Join(pydir, "lib-dynload"),
	}
}

// Rel returns p relative to the bundle root.
func (l Layout) Rel(p string) string {
	rel, err := filepath.Rel(l.Root, p)
	if err != nil {
		return p
	}
	return rel
}

// Create makes every directory of the layout.
func (l Layout) Create() error {
	for _, dir := range []string{l.MacOS, l.Resources, l.Frameworks, l.DynLoad} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// bundlePaths returns the final bundle path and its staging directory.
func bundlePaths(opts *Options) (final, staging string) {
	name := opts.Name + opts.BundleExt()
	return filepath.Join(opts.DistDir, name), filepath.Join(opts.DistDir, "."+name+".partial")
}
