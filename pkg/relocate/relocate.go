package relocate

import (
	"cmp"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/macpack/pkg/dyld"
	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/fsutil"
	"github.com/matzehuels/macpack/pkg/macho"
	"github.com/matzehuels/macpack/pkg/observability"
)

// DefaultFrameworkSkip lists paths inside a framework version directory
// that are not copied. Patterns are matched with doublestar against the
// slash-separated path relative to Versions/<v>.
var DefaultFrameworkSkip = []string{
	"Headers",
	"PrivateHeaders",
	"_CodeSignature",
	"include",
	"bin",
	"share",
	"lib/python*",
	"lib/pkgconfig",
}

// Binary is a file already placed in the bundle whose dependencies must
// be relocated.
type Binary struct {
	// Dest is the placed copy. It is rewritten in place.
	Dest string
	// LoaderDir is the directory the binary was copied from. Run paths and
	// @loader_path dependencies are resolved against it.
	LoaderDir string
	// Source is the file the binary was copied from, named in errors. It
	// defaults to the base name of Dest inside LoaderDir.
	Source string
}

// Options configures a [Relocator].
type Options struct {
	// FrameworksDir receives copied libraries, usually Contents/Frameworks.
	FrameworksDir string
	// Excludes are absolute paths (matching the path and everything below
	// it) or doublestar patterns. Excluded libraries must still resolve.
	Excludes []string
	// FrameworkSkip overrides [DefaultFrameworkSkip] when non-nil.
	FrameworkSkip []string

	Resolver  *dyld.Resolver
	Inspector macho.Inspector
	Rewriter  *macho.Rewriter

	// Parallelism bounds concurrent load-command reads; zero means
	// GOMAXPROCS.
	Parallelism int
	Logger      *log.Logger
}

// LibraryNode is one copied library.
type LibraryNode struct {
	Source    string          `json:"source"`              // resolved real path
	Dest      string          `json:"dest"`                // copy inside the bundle
	Aliases   []string        `json:"aliases,omitempty"`   // symlink names created next to Dest
	Framework *dyld.Framework `json:"framework,omitempty"` // nil for plain dylibs
	Referrers []string        `json:"referrers,omitempty"` // placed binaries that load it
}

// Rewrite is one changed load command.
type Rewrite struct {
	Binary string `json:"binary"`
	Old    string `json:"old"`
	New    string `json:"new"`
}

// Result describes what a run did. All path lists are sorted.
type Result struct {
	Copied    []string       `json:"copied"`
	Symlinks  []string       `json:"symlinks,omitempty"`
	Libraries []*LibraryNode `json:"libraries"`
	Excluded  []string       `json:"excluded,omitempty"`
	System    []string       `json:"system,omitempty"`
	Rewrites  []Rewrite      `json:"rewrites,omitempty"`
}

// Relocator computes the library closure of a set of binaries.
type Relocator struct {
	opts      Options
	logger    *log.Logger
	resolver  *dyld.Resolver
	inspector macho.Inspector
	rewriter  *macho.Rewriter
	skip      []string
}

// ValidateExcludes checks that every exclude is an absolute path or a
// pattern starting with "*".
func ValidateExcludes(excludes []string) error {
	for _, ex := range excludes {
		if !filepath.IsAbs(ex) && !strings.HasPrefix(ex, "*") {
			return macerrors.New(macerrors.ErrCodeInvalidConfig, "dylib exclude must be an absolute path or pattern: %q", ex)
		}
	}
	return nil
}

// New validates opts and fills in defaults. The default inspector caches
// per path and is invalidated by the default rewriter.
func New(opts Options) (*Relocator, error) {
	if opts.FrameworksDir == "" {
		return nil, macerrors.New(macerrors.ErrCodeInvalidConfig, "relocate: frameworks directory is required")
	}
	if err := ValidateExcludes(opts.Excludes); err != nil {
		return nil, err
	}

	r := &Relocator{
		opts:      opts,
		logger:    opts.Logger,
		resolver:  opts.Resolver,
		inspector: opts.Inspector,
		rewriter:  opts.Rewriter,
		skip:      opts.FrameworkSkip,
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	if r.resolver == nil {
		r.resolver = &dyld.Resolver{}
	}
	if r.skip == nil {
		r.skip = DefaultFrameworkSkip
	}
	if r.inspector == nil {
		ci, err := macho.NewCachedInspector(macho.FileInspector{}, 0)
		if err != nil {
			return nil, err
		}
		r.inspector = ci
		if r.rewriter == nil {
			r.rewriter = &macho.Rewriter{OnRewrite: ci.Invalidate}
		}
	}
	if r.rewriter == nil {
		r.rewriter = &macho.Rewriter{}
	}
	if r.opts.Parallelism <= 0 {
		r.opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	return r, nil
}

// item is a placed binary waiting for its dependency scan.
type item struct {
	dest      string
	loaderDir string
	source    string
	id        string // install name to set; empty for binaries not copied here
}

// state is owned by the goroutine running [Relocator.Run].
type state struct {
	*Relocator
	libs     map[string]*LibraryNode // real source path
	byDest   map[string]string       // destination -> real source path
	queued   map[string]bool         // destinations already scanned or queued
	excluded map[string]bool
	system   map[string]bool
	symlinks []string
	rewrites []Rewrite
}

// Run relocates the dependencies of binaries and copies extraRoots (files
// or .framework directories) with their closure. It returns the first
// unresolvable dependency as a LIBRARY_NOT_FOUND error wrapping a
// [*MissingLibraryError].
func (r *Relocator) Run(ctx context.Context, binaries []Binary, extraRoots []string) (*Result, error) {
	st := &state{
		Relocator: r,
		libs:      make(map[string]*LibraryNode),
		byDest:    make(map[string]string),
		queued:    make(map[string]bool),
		excluded:  make(map[string]bool),
		system:    make(map[string]bool),
	}

	var level []item
	for _, b := range binaries {
		if st.queued[b.Dest] {
			continue
		}
		st.queued[b.Dest] = true
		level = append(level, item{
			dest:      b.Dest,
			loaderDir: b.LoaderDir,
			source:    cmp.Or(b.Source, filepath.Join(b.LoaderDir, filepath.Base(b.Dest))),
		})
	}
	for _, root := range extraRoots {
		it, err := st.root(ctx, root)
		if err != nil {
			return nil, err
		}
		if it != nil {
			level = append(level, *it)
		}
	}

	for depth := 0; len(level) > 0; depth++ {
		files, err := r.scan(ctx, level)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("scanned load commands", "depth", depth, "binaries", len(level))

		var next []item
		for i, it := range level {
			more, err := st.process(ctx, it, files[i])
			if err != nil {
				return nil, err
			}
			next = append(next, more...)
		}
		level = next
	}
	return st.result(), nil
}

// scan reads the load commands of one level in parallel.
func (r *Relocator) scan(ctx context.Context, level []item) ([]*macho.File, error) {
	files := make([]*macho.File, len(level))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i, it := range level {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := r.inspector.Inspect(it.dest)
			if errors.Is(err, macho.ErrNotMachO) {
				r.logger.Warn("not a Mach-O file, skipping", "path", it.dest)
				files[i] = &macho.File{Path: it.dest}
				return nil
			}
			if err != nil {
				return macerrors.Wrap(macerrors.ErrCodeInvalidBinary, err, "inspect %s", it.dest)
			}
			files[i] = f
			return nil
		})
	}
	return files, g.Wait()
}

// root copies one extra root and returns it as a work item.
func (st *state) root(ctx context.Context, root string) (*item, error) {
	path := root
	if strings.HasSuffix(root, ".framework") {
		path = filepath.Join(root, strings.TrimSuffix(filepath.Base(root), ".framework"))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, missing(root, "extra roots")
	}
	if st.resolver.IsSystem(path) {
		st.system[path] = true
		return nil, nil
	}
	if st.isExcluded(path) {
		st.excluded[path] = true
		return nil, nil
	}
	n, created, err := st.place(ctx, path, "")
	if err != nil || !created {
		return nil, err
	}
	return &item{dest: n.Dest, loaderDir: filepath.Dir(n.Source), source: n.Source, id: st.installName(n)}, nil
}

// process resolves, copies and rewrites the dependencies of one binary.
func (st *state) process(ctx context.Context, it item, f *macho.File) ([]item, error) {
	changes := make(map[string]string)
	var next []item

	for _, dep := range f.Dependencies {
		if rest, ok := strings.CutPrefix(dep.Name, "@loader_path/"); ok {
			n, more, err := st.loaderRelative(ctx, it, rest, dep)
			if err != nil {
				return nil, err
			}
			next = append(next, more...)
			// The command stays as written when the library sits at the
			// relative location; otherwise point it at the earlier copy.
			placed := filepath.Join(filepath.Dir(it.dest), rest)
			if n != nil && st.byDest[placed] != n.Source {
				changes[dep.Name] = st.loadName(it, n)
			}
			continue
		}

		resolved, err := st.resolver.Find(dep.Name, it.loaderDir, f.RPaths)
		if err != nil {
			if dep.Kind == macho.Weak {
				st.logger.Warn("weak library not found", "library", dep.Name, "referrer", it.source)
				continue
			}
			return nil, missing(dep.Name, it.source)
		}
		if st.resolver.IsSystem(resolved) {
			st.system[resolved] = true
			continue
		}
		if st.isExcluded(resolved) {
			st.logger.Debug("excluded library", "library", resolved, "referrer", it.source)
			st.excluded[resolved] = true
			continue
		}

		n, created, err := st.place(ctx, resolved, "")
		if err != nil {
			return nil, err
		}
		n.addReferrer(it.dest)
		if created {
			next = append(next, st.enqueue(n)...)
		}
		if name := st.loadName(it, n); name != dep.Name {
			changes[dep.Name] = name
		}
	}

	var id string
	if it.id != "" && f.InstallName != "" && f.InstallName != it.id {
		id = it.id
	}
	if len(changes) == 0 && id == "" {
		return next, nil
	}
	if _, err := st.rewriter.Relink(it.dest, id, changes); err != nil {
		if errors.Is(err, macho.ErrNoRoom) {
			return nil, macerrors.Wrap(macerrors.ErrCodeHeaderPadding, err,
				"rewrite %s (relink it with -headerpad_max_install_names)", it.source)
		}
		return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "rewrite %s", it.dest)
	}
	if id != "" {
		st.rewrites = append(st.rewrites, Rewrite{Binary: it.dest, Old: f.InstallName, New: id})
		observability.Relocate().OnLoadCommandRewritten(ctx, it.dest, f.InstallName, id)
	}
	for _, old := range sortedKeys(changes) {
		st.rewrites = append(st.rewrites, Rewrite{Binary: it.dest, Old: old, New: changes[old]})
		observability.Relocate().OnLoadCommandRewritten(ctx, it.dest, old, changes[old])
	}
	return next, nil
}

// loaderRelative handles a dependency written relative to the referrer. It
// returns the library node when the dependency was copied from the
// original directory, or nil when it is already part of the bundle.
func (st *state) loaderRelative(ctx context.Context, it item, rest string, dep macho.Dependency) (*LibraryNode, []item, error) {
	placed := filepath.Join(filepath.Dir(it.dest), rest)
	if src, ok := st.byDest[placed]; ok {
		n := st.libs[src]
		n.addReferrer(it.dest)
		return n, nil, nil
	}
	if isFile(placed) {
		// Placed by someone else, for example next to an extension.
		if st.queued[placed] {
			return nil, nil, nil
		}
		st.queued[placed] = true
		src := filepath.Join(it.loaderDir, rest)
		return nil, []item{{dest: placed, loaderDir: filepath.Dir(src), source: src}}, nil
	}

	src := filepath.Join(it.loaderDir, rest)
	if !isFile(src) {
		if dep.Kind == macho.Weak {
			st.logger.Warn("weak library not found", "library", dep.Name, "referrer", it.source)
			return nil, nil, nil
		}
		return nil, nil, missing(dep.Name, it.source)
	}
	if st.isExcluded(src) {
		st.excluded[src] = true
		return nil, nil, nil
	}

	n, created, err := st.place(ctx, src, filepath.Dir(placed))
	if err != nil {
		return nil, nil, err
	}
	n.addReferrer(it.dest)
	if !created {
		return n, nil, nil
	}
	return n, st.enqueue(n), nil
}

// loadName is the load command that makes it find n after placement.
func (st *state) loadName(it item, n *LibraryNode) string {
	rel, err := filepath.Rel(filepath.Dir(it.dest), n.Dest)
	if err != nil {
		return n.Dest
	}
	return "@loader_path/" + filepath.ToSlash(rel)
}

func (st *state) enqueue(n *LibraryNode) []item {
	if st.queued[n.Dest] {
		return nil
	}
	st.queued[n.Dest] = true
	return []item{{dest: n.Dest, loaderDir: filepath.Dir(n.Source), source: n.Source, id: st.installName(n)}}
}

// installName is the install name of a copied library: @rpath relative to
// the frameworks directory, or the file itself next to its referrer.
func (st *state) installName(n *LibraryNode) string {
	rel, err := filepath.Rel(st.opts.FrameworksDir, n.Dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "@loader_path/" + filepath.Base(n.Dest)
	}
	return "@rpath/" + filepath.ToSlash(rel)
}

// place copies the library at resolved unless its real path was copied
// before. An empty dir selects the frameworks directory and framework
// layout; otherwise the file is copied into dir as a plain library.
func (st *state) place(ctx context.Context, resolved, dir string) (*LibraryNode, bool, error) {
	real, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		return nil, false, macerrors.Wrap(macerrors.ErrCodeIO, err, "resolve %s", resolved)
	}
	if n, ok := st.libs[real]; ok {
		return n, false, st.alias(n, resolved)
	}

	n := &LibraryNode{Source: real}
	if fw := dyld.FrameworkInfo(real); fw != nil && dir == "" {
		n.Framework = fw
		n.Dest = filepath.Join(st.opts.FrameworksDir, filepath.FromSlash(fw.Name))
		if err := st.claim(n.Dest, real); err != nil {
			return nil, false, err
		}
		if err := st.copyFramework(fw, real); err != nil {
			return nil, false, macerrors.Wrap(macerrors.ErrCodeIO, err, "copy framework %s", fw.Dir())
		}
	} else {
		if dir == "" {
			dir = st.opts.FrameworksDir
		}
		n.Dest = filepath.Join(dir, filepath.Base(real))
		if err := st.claim(n.Dest, real); err != nil {
			return nil, false, err
		}
		if err := fsutil.CopyFile(real, n.Dest); err != nil {
			return nil, false, macerrors.Wrap(macerrors.ErrCodeIO, err, "copy %s", real)
		}
	}

	st.libs[real] = n
	st.logger.Debug("copied library", "src", real, "dest", n.Dest)
	observability.Relocate().OnLibraryCopied(ctx, real, n.Dest)
	return n, true, st.alias(n, resolved)
}

// alias recreates the symlink name a plain library was reached through.
func (st *state) alias(n *LibraryNode, resolved string) error {
	name := filepath.Base(resolved)
	if n.Framework != nil || name == filepath.Base(n.Dest) || slices.Contains(n.Aliases, name) {
		return nil
	}
	link := filepath.Join(filepath.Dir(n.Dest), name)
	if err := st.claim(link, n.Source); err != nil {
		return err
	}
	if err := fsutil.Symlink(filepath.Base(n.Dest), link); err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "link %s", link)
	}
	n.Aliases = append(n.Aliases, name)
	st.symlinks = append(st.symlinks, link)
	return nil
}

// claim records that dest holds the library with the given real path.
func (st *state) claim(dest, real string) error {
	if prev, ok := st.byDest[dest]; ok && prev != real {
		return macerrors.Wrap(macerrors.ErrCodeIO, &ConflictError{Dest: dest, Sources: [2]string{prev, real}}, "place library")
	}
	st.byDest[dest] = real
	return nil
}

// copyFramework copies the version of a framework that contains binary
// and recreates the Current and top-level links.
func (st *state) copyFramework(fw *dyld.Framework, binary string) error {
	dst := filepath.Join(st.opts.FrameworksDir, fw.ShortName+".framework")
	if fw.Version == "" {
		return fsutil.CopyTree(fw.Dir(), dst, st.skipFunc())
	}

	srcVersion := filepath.Join(fw.Dir(), "Versions", fw.Version)
	if err := fsutil.CopyTree(srcVersion, filepath.Join(dst, "Versions", fw.Version), st.skipFunc()); err != nil {
		return err
	}
	if err := fsutil.Symlink(fw.Version, filepath.Join(dst, "Versions", "Current")); err != nil {
		return err
	}
	base := filepath.Base(binary)
	if err := fsutil.Symlink(filepath.Join("Versions", "Current", base), filepath.Join(dst, base)); err != nil {
		return err
	}
	if isDir(filepath.Join(srcVersion, "Resources")) {
		return fsutil.Symlink(filepath.Join("Versions", "Current", "Resources"), filepath.Join(dst, "Resources"))
	}
	return nil
}

func (st *state) skipFunc() fsutil.SkipFunc {
	return func(rel string, _ os.DirEntry) bool {
		for _, pat := range st.skip {
			if ok, _ := doublestar.Match(pat, rel); ok {
				return true
			}
		}
		return false
	}
}

// isExcluded reports whether p or its real path matches an exclude.
func (r *Relocator) isExcluded(p string) bool {
	if len(r.opts.Excludes) == 0 {
		return false
	}
	candidates := []string{p}
	if real, err := filepath.EvalSymlinks(p); err == nil && real != p {
		candidates = append(candidates, real)
	}
	for _, c := range candidates {
		for _, ex := range r.opts.Excludes {
			if strings.ContainsAny(ex, "*?[{") {
				ok, err := doublestar.PathMatch(ex, c)
				if err != nil {
					r.logger.Warn("bad dylib exclude pattern", "pattern", ex, "err", err)
				}
				if ok {
					return true
				}
				continue
			}
			ex = filepath.Clean(ex)
			if c == ex || strings.HasPrefix(c, ex+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}

func (st *state) result() *Result {
	res := &Result{
		Symlinks: slices.Sorted(slices.Values(st.symlinks)),
		Excluded: sortedKeys(st.excluded),
		System:   sortedKeys(st.system),
		Rewrites: st.rewrites,
	}
	for _, src := range sortedKeys(st.libs) {
		n := st.libs[src]
		slices.Sort(n.Referrers)
		res.Libraries = append(res.Libraries, n)
		res.Copied = append(res.Copied, n.Dest)
	}
	slices.Sort(res.Copied)
	return res
}

func (n *LibraryNode) addReferrer(dest string) {
	if !slices.Contains(n.Referrers, dest) {
		n.Referrers = append(n.Referrers, dest)
	}
}

func missing(lib, referrer string) error {
	return macerrors.Wrap(macerrors.ErrCodeLibraryNotFound,
		&MissingLibraryError{Library: lib, Referrer: referrer}, "resolve native libraries")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
