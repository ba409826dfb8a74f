package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/matzehuels/macpack/pkg/fsutil"
)

// Extension is a compiled extension module selected for the bundle.
type Extension struct {
	ID   string // Dotted module name
	Path string // Source file
}

// Rel returns the extension's path relative to lib-dynload:
// "pkg/sub/ext.so" for pkg.sub.ext built as ext.cpython-312-darwin.so.
func (e Extension) Rel() string {
	return filepath.Join(strings.Split(e.ID, ".")...) + filepath.Ext(e.Path)
}

// Placed is an extension copied into the bundle.
type Placed struct {
	Extension
	Dest string `json:"dest"`
	Shim bool   `json:"shim"` // A loader shim was generated
}

// shimTemplate loads the extension file named by %q from the lib-dynload
// directory on sys.path, under the name of the shim module itself.
const shimTemplate = `def __load():
    import importlib.machinery, importlib.util, os, sys
    ext = %q
    for path in sys.path:
        if not path.endswith("lib-dynload"):
            continue
        ext_path = os.path.join(path, ext)
        if os.path.exists(ext_path):
            loader = importlib.machinery.ExtensionFileLoader(__name__, ext_path)
            spec = importlib.util.spec_from_file_location(__name__, ext_path, loader=loader)
            mod = importlib.util.module_from_spec(spec)
            sys.modules[__name__] = mod
            loader.exec_module(mod)
            return
    raise ImportError("%%s not found" %% (ext,))

__load()
del __load
`

// LoaderShim returns the source of the shim module for e.
func LoaderShim(e Extension) []byte {
	return fmt.Appendf(nil, shimTemplate, filepath.ToSlash(e.Rel()))
}

// PlaceExtensions copies exts into libDir and returns where each one went
// together with the shim modules to add to the archive. Extensions with a
// dotted name get a shim; top-level ones are found on sys.path directly.
func (w *Writer) PlaceExtensions(ctx context.Context, libDir string, exts []Extension) ([]Placed, []Module, error) {
	placed := make([]Placed, 0, len(exts))
	var shims []Module
	for _, e := range exts {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		dest := filepath.Join(libDir, e.Rel())
		if err := fsutil.CopyFile(e.Path, dest); err != nil {
			return nil, nil, fmt.Errorf("place extension %s: %w", e.ID, err)
		}
		p := Placed{Extension: e, Dest: dest, Shim: strings.Contains(e.ID, ".")}
		if p.Shim {
			shims = append(shims, Module{ID: e.ID, Source: LoaderShim(e)})
		}
		placed = append(placed, p)
		w.logger().Debug("placed extension", "module", e.ID, "dest", dest, "shim", p.Shim)
	}
	return placed, shims, nil
}
