package modfinder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/pysource"
	"github.com/matzehuels/macpack/pkg/pyenv"
)

// ErrPackageNotFound is returned by [Finder.FindNeeded] when a forced
// package cannot be located.
var ErrPackageNotFound = errors.New("package not found")

// Config configures a [Finder]. It is the only source of search paths; the
// finder never consults process state.
type Config struct {
	// SearchPath lists explicit roots searched after the script directories.
	SearchPath []string
	// Env supplies sys.path, builtin module names and extension suffixes.
	// Nil means a bare environment with only ".so" extensions.
	Env *pyenv.Env
	// Excludes names modules that are recorded but never expanded. A name
	// also excludes everything nested below it.
	Excludes []string
	// Scanner extracts imports; nil selects the tree-sitter scanner.
	Scanner pysource.Scanner
	Logger  *log.Logger
}

// Finder walks imports and owns the module graph it builds.
type Finder struct {
	graph      *modgraph.Graph
	scanner    pysource.Scanner
	logger     *log.Logger
	builtins   map[string]bool
	excludes   []string
	suffixes   []string
	scriptDirs []string
	roots      []string
	queue      []pending
	listings   map[string]map[string]os.DirEntry
}

// pending is a module whose imports still have to be processed.
type pending struct {
	node *modgraph.Node
	scan *pysource.Result
}

// New creates a finder with an empty graph.
func New(cfg Config) *Finder {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	scanner := cfg.Scanner
	if scanner == nil {
		scanner = pysource.NewScanner()
	}

	f := &Finder{
		graph:    modgraph.New(),
		scanner:  scanner,
		logger:   logger,
		builtins: make(map[string]bool),
		excludes: slices.Clone(cfg.Excludes),
		suffixes: []string{".so"},
		listings: make(map[string]map[string]os.DirEntry),
	}

	f.roots = append(f.roots, cfg.SearchPath...)
	if cfg.Env != nil {
		for _, b := range cfg.Env.BuiltinModules {
			f.builtins[b] = true
		}
		if len(cfg.Env.ExtensionSuffixes) > 0 {
			f.suffixes = slices.Clone(cfg.Env.ExtensionSuffixes)
		}
		f.roots = append(f.roots, cfg.Env.SysPath...)
	}
	return f
}

// Graph returns the graph built so far.
func (f *Finder) Graph() *modgraph.Graph { return f.graph }

// SearchPath returns the effective search path in resolution order.
func (f *Finder) SearchPath() []string {
	var out []string
	seen := make(map[string]bool)
	for _, dir := range slices.Concat(f.scriptDirs, f.roots) {
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	return out
}

// RunScript adds an entry-point script as a graph root and walks everything
// it imports. The script's directory is added to the front of the search
// path. The node ID is the script path.
func (f *Finder) RunScript(ctx context.Context, path string) (*modgraph.Node, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	dir := filepath.Dir(abs)
	if !slices.Contains(f.scriptDirs, dir) {
		f.scriptDirs = append(f.scriptDirs, dir)
	}
	return f.addScript(ctx, abs, abs, src)
}

// RunSource adds in-memory script source (a recipe bootstrap file) as a
// graph root under id and walks its imports.
func (f *Finder) RunSource(ctx context.Context, id string, src []byte) (*modgraph.Node, error) {
	return f.addScript(ctx, id, "", src)
}

func (f *Finder) addScript(ctx context.Context, id, path string, src []byte) (*modgraph.Node, error) {
	if n, ok := f.graph.Node(id); ok {
		return n, nil
	}
	res, err := f.scanner.Scan(ctx, src)
	if err != nil {
		return nil, err
	}
	kind := modgraph.Script
	if res.SyntaxError {
		kind = modgraph.InvalidSource
		f.logger.Warn("syntax error in script", "script", id, "line", res.ErrorLine)
	}
	n, _, err := f.graph.AddNode(modgraph.Node{ID: id, Kind: kind, Path: path, Globals: globals(res)})
	if err != nil {
		return nil, err
	}
	_ = f.graph.AddRoot(id)
	if kind == modgraph.Script {
		f.queue = append(f.queue, pending{node: n, scan: res})
	}
	return n, f.drain(ctx)
}

// Import resolves name as if referrer imported it and returns its node. An
// empty referrer makes the module a graph root, which is how forced
// includes enter the graph.
func (f *Finder) Import(ctx context.Context, name, referrer string, info modgraph.EdgeInfo) (*modgraph.Node, error) {
	n := f.importModule(ctx, name, referrer, info)
	if err := f.drain(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// FindNeeded forces modules into the graph. An include ending in ".*"
// imports a package together with its direct submodules. Every package in
// packages is imported with all modules found below its directory. Calling
// FindNeeded again with the same names changes nothing.
func (f *Finder) FindNeeded(ctx context.Context, includes, packages []string) error {
	for _, name := range includes {
		if pkg, ok := strings.CutSuffix(name, ".*"); ok {
			n := f.importModule(ctx, pkg, "", modgraph.EdgeInfo{})
			for _, sub := range f.submodules(n, false) {
				f.importModule(ctx, sub, "", modgraph.EdgeInfo{})
			}
			continue
		}
		f.importModule(ctx, name, "", modgraph.EdgeInfo{})
	}

	var notFound []string
	for _, name := range packages {
		n := f.importModule(ctx, name, "", modgraph.EdgeInfo{})
		if n == nil || !n.Kind.IsPackage() {
			notFound = append(notFound, name)
			continue
		}
		for _, sub := range f.submodules(n, true) {
			f.importModule(ctx, sub, "", modgraph.EdgeInfo{})
		}
	}

	if err := f.drain(ctx); err != nil {
		return err
	}
	if len(notFound) > 0 {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, strings.Join(notFound, ", "))
	}
	return nil
}

// IsPackage reports whether name resolves to a package on the search path
// without adding anything to the graph.
func (f *Finder) IsPackage(name string) bool {
	if n, ok := f.graph.Node(name); ok {
		return n.Kind.IsPackage()
	}
	dirs := f.SearchPath()
	parts := strings.Split(name, ".")
	for i, part := range parts {
		loc, ok := f.locate(part, dirs)
		if !ok || !loc.kind.IsPackage() {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		dirs = loc.searchPaths
	}
	return false
}

// drain processes queued modules until no new module is discovered.
func (f *Finder) drain(ctx context.Context) error {
	for len(f.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := f.queue[0]
		f.queue = f.queue[1:]
		f.processImports(ctx, p.node, p.scan)
	}
	return nil
}

// Build implements the whole graph walk: scripts, forced includes and
// forced packages, with excludes taken from cfg.
func Build(ctx context.Context, cfg Config, scripts, includes, packages []string) (*Finder, error) {
	f := New(cfg)
	for _, s := range scripts {
		if _, err := f.RunScript(ctx, s); err != nil {
			return nil, err
		}
	}
	if err := f.FindNeeded(ctx, includes, packages); err != nil {
		return f, err
	}
	return f, nil
}

func globals(res *pysource.Result) map[string]bool {
	if res == nil || len(res.GlobalNames) == 0 {
		return nil
	}
	m := make(map[string]bool, len(res.GlobalNames))
	for _, g := range res.GlobalNames {
		m[g] = true
	}
	return m
}
