package modfinder

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/pysource"
)

// location is a resolved module candidate on disk.
type location struct {
	kind        modgraph.Kind
	path        string
	searchPaths []string
}

// importModule resolves name, creating nodes for it and for every parent
// package, and links referrer to the result.
func (f *Finder) importModule(ctx context.Context, name, referrer string, info modgraph.EdgeInfo) *modgraph.Node {
	if name == "" {
		return nil
	}
	if n, ok := f.graph.Node(name); ok {
		f.link(referrer, name, info)
		return n
	}

	parts := strings.Split(name, ".")
	dirs := f.SearchPath()
	var parent *modgraph.Node

	for i := range parts {
		id := strings.Join(parts[:i+1], ".")
		n, ok := f.graph.Node(id)
		if !ok {
			n = f.create(ctx, id, parts[i], parent, dirs)
		}
		if n == nil {
			return f.missing(name, referrer, parent, info)
		}
		if parent != nil {
			f.link(id, parent.ID, modgraph.EdgeInfo{})
		}
		if i == len(parts)-1 || n.Kind == modgraph.Excluded {
			f.link(referrer, n.ID, info)
			return n
		}
		if !n.Kind.IsPackage() {
			// "import os.path": a plain module that binds the next name
			// as an attribute satisfies the import.
			if n.HasGlobal(parts[i+1]) {
				f.link(referrer, n.ID, info)
				return n
			}
			return f.missing(name, referrer, n, info)
		}
		parent = n
		dirs = n.SearchPaths
	}
	return nil
}

// missing records name as unresolvable. The node links to its closest
// existing parent so the parent package stays reachable.
func (f *Finder) missing(name, referrer string, parent *modgraph.Node, info modgraph.EdgeInfo) *modgraph.Node {
	n, created, _ := f.graph.AddNode(modgraph.Node{ID: name, Kind: modgraph.Missing})
	if created {
		f.logger.Debug("missing module", "module", name, "referrer", referrer)
	}
	if parent != nil {
		f.link(name, parent.ID, modgraph.EdgeInfo{})
	}
	f.link(referrer, name, info)
	return n
}

// create resolves one name component and adds its node. It returns nil if
// the component cannot be found.
func (f *Finder) create(ctx context.Context, id, part string, parent *modgraph.Node, dirs []string) *modgraph.Node {
	if f.isExcluded(id) {
		n, _, _ := f.graph.AddNode(modgraph.Node{ID: id, Kind: modgraph.Excluded})
		return n
	}
	if parent == nil && f.builtins[id] {
		n, _, _ := f.graph.AddNode(modgraph.Node{ID: id, Kind: modgraph.Builtin})
		return n
	}

	loc, ok := f.locate(part, dirs)
	if !ok {
		return nil
	}

	kind := loc.kind
	var res *pysource.Result
	switch filepath.Ext(loc.path) {
	case ".py":
		src, err := os.ReadFile(loc.path)
		if err != nil {
			f.logger.Warn("cannot read module", "module", id, "path", loc.path, "err", err)
			kind = modgraph.InvalidSource
			break
		}
		res, err = f.scanner.Scan(ctx, src)
		if err != nil {
			f.logger.Warn("cannot scan module", "module", id, "path", loc.path, "err", err)
			kind = modgraph.InvalidSource
			res = nil
			break
		}
		if res.SyntaxError {
			f.logger.Warn("syntax error", "module", id, "path", loc.path, "line", res.ErrorLine)
			kind = modgraph.InvalidSource
			res = nil
		}
	case ".pyc":
		if !validBytecode(loc.path) {
			f.logger.Warn("invalid bytecode", "module", id, "path", loc.path)
			kind = modgraph.InvalidBytecode
		}
	}

	n, created, err := f.graph.AddNode(modgraph.Node{
		ID:          id,
		Kind:        kind,
		Path:        loc.path,
		SearchPaths: loc.searchPaths,
		Globals:     globals(res),
	})
	if err != nil {
		return nil
	}
	if created && res != nil {
		f.queue = append(f.queue, pending{node: n, scan: res})
	}
	return n
}

// processImports resolves every import statement of a scanned module.
func (f *Finder) processImports(ctx context.Context, n *modgraph.Node, res *pysource.Result) {
	for _, imp := range res.Imports {
		info := modgraph.EdgeInfo{Conditional: imp.Conditional, Function: imp.Function}

		target := imp.Module
		if imp.Level > 0 {
			base, ok := relativeBase(n, imp.Level)
			if !ok {
				f.invalidRelative(n.ID, imp, info)
				continue
			}
			target = base
			if imp.Module != "" {
				target = base + "." + imp.Module
			}
		}

		m := f.importModule(ctx, target, n.ID, info)
		if imp.FromImport && m != nil {
			f.fromList(ctx, n.ID, m, imp.Names, info)
		}
	}
}

// invalidRelative records a relative import that climbs out of the
// top-level package. "from . import a, b" yields one node per name so the
// report keeps the names.
func (f *Finder) invalidRelative(referrer string, imp pysource.Import, info modgraph.EdgeInfo) {
	dots := strings.Repeat(".", imp.Level)
	ids := []string{dots + imp.Module}
	if imp.Module == "" && len(imp.Names) > 0 && !imp.Star {
		ids = ids[:0]
		for _, name := range imp.Names {
			ids = append(ids, dots+name)
		}
	}
	for _, id := range ids {
		f.graph.AddNode(modgraph.Node{ID: id, Kind: modgraph.InvalidRelativeImport})
		f.link(referrer, id, info)
		f.logger.Debug("invalid relative import", "module", referrer, "import", id)
	}
}

// fromList handles the names of "from pkg import a, b". A name is imported
// as a submodule if one exists; otherwise a module-level global of pkg
// satisfies it; otherwise pkg.name is missing, referenced by a from-import
// edge.
func (f *Finder) fromList(ctx context.Context, referrer string, m *modgraph.Node, names []string, info modgraph.EdgeInfo) {
	if !m.Kind.IsPackage() {
		return
	}
	info.FromImport = true
	for _, name := range names {
		sub := m.ID + "." + name
		if !f.locatable(sub, name, m) && m.HasGlobal(name) {
			continue
		}
		f.importModule(ctx, sub, referrer, info)
	}
}

func (f *Finder) locatable(id, part string, parent *modgraph.Node) bool {
	if n, ok := f.graph.Node(id); ok {
		return n.Kind != modgraph.Missing
	}
	if f.isExcluded(id) {
		return true
	}
	_, ok := f.locate(part, parent.SearchPaths)
	return ok
}

// relativeBase returns the package a relative import of the given level
// starts from.
func relativeBase(n *modgraph.Node, level int) (string, bool) {
	if n.Kind == modgraph.Script {
		return "", false
	}
	pkg := n.ID
	if !n.Kind.IsPackage() {
		pkg = parentName(pkg)
	}
	for i := 1; i < level && pkg != ""; i++ {
		pkg = parentName(pkg)
	}
	return pkg, pkg != ""
}

func parentName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

func (f *Finder) link(from, to string, info modgraph.EdgeInfo) {
	if from == "" {
		_ = f.graph.AddRoot(to)
		return
	}
	if from != to {
		_ = f.graph.AddEdge(from, to, info)
	}
}

func (f *Finder) isExcluded(id string) bool {
	for _, e := range f.excludes {
		if id == e || strings.HasPrefix(id, e+".") {
			return true
		}
	}
	return false
}

// locate finds one name component in dirs, first match wins.
func (f *Finder) locate(part string, dirs []string) (location, bool) {
	var portions []string
	for _, dir := range dirs {
		entries := f.listing(dir)
		if entries == nil {
			continue
		}

		isNamespace := false
		if e, ok := entries[part]; ok && isDir(dir, e) {
			pkgDir := filepath.Join(dir, part)
			if init, ok := f.initFile(pkgDir); ok {
				return location{kind: modgraph.Package, path: init, searchPaths: []string{pkgDir}}, true
			}
			isNamespace = true
		}

		for _, suffix := range f.suffixes {
			if isFile(entries, part+suffix) {
				return location{kind: modgraph.CompiledExtension, path: filepath.Join(dir, part+suffix)}, true
			}
		}
		if isFile(entries, part+".py") {
			return location{kind: modgraph.SourceModule, path: filepath.Join(dir, part+".py")}, true
		}
		if isFile(entries, part+".pyc") {
			return location{kind: modgraph.BytecodeModule, path: filepath.Join(dir, part+".pyc")}, true
		}

		if isNamespace {
			portions = append(portions, filepath.Join(dir, part))
		}
	}
	if len(portions) > 0 {
		return location{kind: modgraph.NamespacePackage, path: portions[0], searchPaths: portions}, true
	}
	return location{}, false
}

func (f *Finder) initFile(pkgDir string) (string, bool) {
	entries := f.listing(pkgDir)
	for _, name := range []string{"__init__.py", "__init__.pyc"} {
		if isFile(entries, name) {
			return filepath.Join(pkgDir, name), true
		}
	}
	return "", false
}

// listing returns the cached directory listing of dir, or nil if dir cannot
// be read.
func (f *Finder) listing(dir string) map[string]os.DirEntry {
	if l, ok := f.listings[dir]; ok {
		return l
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		f.listings[dir] = nil
		return nil
	}
	l := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		l[e.Name()] = e
	}
	f.listings[dir] = l
	return l
}

// submodules lists the modules below a package's directories. With
// recursive set it descends into subpackages; directories without an
// __init__ file are never entered.
func (f *Finder) submodules(n *modgraph.Node, recursive bool) []string {
	if n == nil || !n.Kind.IsPackage() {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	var walk func(prefix string, dirs []string)
	walk = func(prefix string, dirs []string) {
		for _, dir := range dirs {
			entries := f.listing(dir)
			names := make([]string, 0, len(entries))
			for name := range entries {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				e := entries[name]
				var mod string
				var sub string
				if isDir(dir, e) {
					sub = filepath.Join(dir, name)
					if _, ok := f.initFile(sub); !ok {
						continue
					}
					mod = name
				} else {
					mod = f.moduleName(name)
				}
				if mod == "" || mod == "__init__" || !isIdentifier(mod) {
					continue
				}
				id := prefix + "." + mod
				if seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, id)
				if recursive && sub != "" {
					walk(id, []string{sub})
				}
			}
		}
	}
	walk(n.ID, n.SearchPaths)
	return out
}

// moduleName strips a module file suffix, longest extension suffix first.
func (f *Finder) moduleName(file string) string {
	suffixes := slices.Clone(f.suffixes)
	sort.Slice(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })
	for _, s := range append(suffixes, ".py", ".pyc") {
		if name, ok := strings.CutSuffix(file, s); ok {
			return name
		}
	}
	return ""
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return s != ""
}

func isDir(dir string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink != 0 {
		fi, err := os.Stat(filepath.Join(dir, e.Name()))
		return err == nil && fi.IsDir()
	}
	return false
}

func isFile(entries map[string]os.DirEntry, name string) bool {
	e, ok := entries[name]
	return ok && !e.IsDir()
}

// validBytecode checks the 16-byte header of a .pyc file: a magic number
// ending in "\r\n" followed by flags and source metadata.
func validBytecode(path string) bool {
	fh, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fh.Close()
	var hdr [16]byte
	if _, err := io.ReadFull(fh, hdr[:]); err != nil {
		return false
	}
	return hdr[2] == '\r' && hdr[3] == '\n'
}
