package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/matzehuels/macpack/pkg/archive"
	"github.com/matzehuels/macpack/pkg/dyld"
	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/fsutil"
	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/relocate"
)

// BootName is the bootstrap script the launcher runs first.
const BootName = "__boot__.py"

// bundle assembles one build in the staging directory.
type bundle struct {
	opts   *Options
	graph  *GraphResult
	layout Layout
	result *Result

	python   string // MacOS/python when it is a copy to relocate
	pySource string // the interpreter file that was copied
}

func (b *bundle) writer() *archive.Writer {
	w := &archive.Writer{Compressed: b.opts.Compressed, Logger: b.opts.Logger}
	if interp := b.graph.Env.Executable; interp != "" {
		w.Compiler = archive.PythonCompiler{
			Interpreter: interp,
			Optimize:    b.opts.Optimize,
			TempDir:     b.opts.BuildDir,
		}
	}
	return w
}

// write lays out the bundle: extensions, module archive, resources, the
// scripts with their bootstrap and the interpreter executable.
func (b *bundle) write(ctx context.Context) error {
	if err := b.layout.Create(); err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "create bundle")
	}
	if b.graph.Env.Executable != "" {
		if err := os.MkdirAll(b.opts.BuildDir, 0o755); err != nil {
			return macerrors.Wrap(macerrors.ErrCodeIO, err, "create build directory")
		}
	}
	w := b.writer()
	recipes := b.graph.Recipes

	mods, exts, data, err := b.collect()
	if err != nil {
		return err
	}

	placed, shims, err := w.PlaceExtensions(ctx, b.layout.DynLoad, exts)
	if err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "place extensions")
	}
	b.result.Extensions = placed
	mods = append(mods, shims...)

	for _, f := range recipes.LoaderFiles {
		data = append(data, archive.Data{Name: filepath.ToSlash(f.Dest), Path: f.Source, Bytes: f.Data})
	}
	stats, err := w.WriteArchive(ctx, b.layout.Archive, mods, data)
	if err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "write archive")
	}
	b.result.Archive = stats
	b.markInvalid(stats.Invalid)
	b.result.Stats.Modules = stats.Modules
	b.result.Stats.Extensions = len(placed)
	b.opts.Logger.Info("wrote archive",
		"modules", stats.Modules,
		"data", stats.Data,
		"extensions", len(placed),
		"compressed", b.opts.Compressed)

	resources := append([]archive.Resource(nil), b.opts.Resources...)
	for _, f := range recipes.Resources {
		resources = append(resources, archive.Resource{Source: f.Source, Dest: f.Dest, Data: f.Data})
	}
	for _, s := range b.opts.Scripts() {
		resources = append(resources, archive.Resource{Source: s})
	}
	resources = append(resources, archive.Resource{Dest: BootName, Data: b.bootScript()})
	if _, err := w.CopyResources(ctx, b.layout.Resources, resources); err != nil {
		return err
	}

	return b.placeInterpreter()
}

// markInvalid turns modules the compiler rejected into syntax errors. The
// scanner accepts some sources the target interpreter does not, such as
// Python 2 print statements.
func (b *bundle) markInvalid(failures []archive.Failure) {
	for _, f := range failures {
		if n, ok := b.graph.Graph.Node(f.ID); ok {
			n.Kind = modgraph.InvalidSource
		}
		if b.graph.Missing != nil && !slices.Contains(b.graph.Missing.SyntaxErrors, f.ID) {
			b.graph.Missing.SyntaxErrors = append(b.graph.Missing.SyntaxErrors, f.ID)
		}
	}
}

// collect splits the visible graph into archive modules, extensions and
// package data.
func (b *bundle) collect() ([]archive.Module, []archive.Extension, []archive.Data, error) {
	var (
		mods []archive.Module
		exts []archive.Extension
		data []archive.Data
	)
	for _, n := range b.graph.Graph.Flatten() {
		switch {
		case n.Kind == modgraph.CompiledExtension && n.Path != "":
			exts = append(exts, archive.Extension{ID: n.ID, Path: n.Path})
		case n.Kind.HasCode() && n.Kind != modgraph.Script && n.Path != "":
			mods = append(mods, archive.Module{ID: n.ID, Path: n.Path, Package: n.Kind == modgraph.Package})
		}
		if n.Kind == modgraph.Package {
			pd, err := archive.PackageData(n.ID, n.SearchPaths, b.graph.Env.ExtensionSuffixes)
			if err != nil {
				return nil, nil, nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "package data")
			}
			data = append(data, pd...)
		}
	}
	return mods, exts, data, nil
}

// bootScript runs the recipe prescripts and then the main script, both
// from the Resources directory.
func (b *bundle) bootScript() []byte {
	var buf bytes.Buffer
	buf.WriteString("import os, sys\n")
	buf.WriteString("RESOURCEPATH = os.environ.get(\"RESOURCEPATH\") or os.path.dirname(os.path.abspath(__file__))\n")
	for _, p := range b.graph.Recipes.Prescripts {
		fmt.Fprintf(&buf, "\n# %s\n", p.Name)
		buf.Write(bytes.TrimRight(p.Source, "\n"))
		buf.WriteString("\n")
	}
	fmt.Fprintf(&buf, bootRun, filepath.Base(b.opts.Script()))
	return buf.Bytes()
}

const bootRun = `

def _run():
    global __file__
    sys.frozen = "macosx_app"
    path = os.path.join(RESOURCEPATH, %q)
    sys.argv[0] = __file__ = path
    with open(path, "rb") as fp:
        source = fp.read() + b"\n"
    exec(compile(source, path, "exec"), globals(), globals())


_run()
`

// placeInterpreter puts the interpreter executable at MacOS/python. A
// semi-standalone bundle links to the host interpreter; a standalone one
// gets a copy that is relocated later.
func (b *bundle) placeInterpreter() error {
	env := b.graph.Env
	dest := filepath.Join(b.layout.MacOS, "python")
	if env.Executable == "" {
		b.opts.Logger.Warn("no interpreter executable; MacOS/python is left out")
		return nil
	}
	if b.opts.SemiStandalone {
		if err := fsutil.Symlink(env.Executable, dest); err != nil {
			return macerrors.Wrap(macerrors.ErrCodeIO, err, "link interpreter")
		}
		return nil
	}

	src := env.Executable
	if env.PythonApp != "" {
		if p := filepath.Join(env.PythonApp, "Contents", "MacOS", "Python"); isFile(p) {
			src = p
		}
	}
	if err := fsutil.CopyFile(src, dest); err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "copy interpreter")
	}
	b.python = dest
	b.pySource = src
	return nil
}

// relocate copies the native closure of the extensions and the
// interpreter into Frameworks and rewrites their load commands.
func (b *bundle) relocate(ctx context.Context) error {
	env := b.graph.Env
	binaries := make([]relocate.Binary, 0, len(b.result.Extensions)+1)
	for _, p := range b.result.Extensions {
		binaries = append(binaries, relocate.Binary{Dest: p.Dest, LoaderDir: filepath.Dir(p.Path), Source: p.Path})
	}
	if b.python != "" {
		binaries = append(binaries, relocate.Binary{Dest: b.python, LoaderDir: filepath.Dir(b.pySource), Source: b.pySource})
	}

	var roots []string
	if !b.opts.SemiStandalone {
		if _, path := env.Runtime(); env.Executable != "" && isFile(path) {
			roots = append(roots, path)
		}
	}
	roots = append(roots, b.opts.Frameworks...)
	roots = append(roots, b.graph.Recipes.Frameworks...)

	resolver := &dyld.Resolver{}
	if env.Executable != "" {
		resolver.ExecutablePath = filepath.Dir(env.Executable)
	}
	r, err := relocate.New(relocate.Options{
		FrameworksDir: b.layout.Frameworks,
		Excludes:      b.opts.DylibExcludes,
		Resolver:      resolver,
		Parallelism:   b.opts.Parallelism,
		Logger:        b.opts.Logger,
	})
	if err != nil {
		return err
	}
	res, err := r.Run(ctx, binaries, roots)
	if err != nil {
		return err
	}
	b.result.Relocation = res
	b.result.Stats.Libraries = len(res.Libraries)
	b.opts.Logger.Info("relocated native libraries",
		"binaries", len(binaries),
		"copied", len(res.Copied),
		"rewrites", len(res.Rewrites),
		"excluded", len(res.Excluded))
	return nil
}

// finalize writes the manifest and moves the staged bundle to final,
// replacing a previous bundle.
func (b *bundle) finalize(ctx context.Context, final string) error {
	staged := b.layout
	b.result.Layout = NewLayout(final, b.graph.Env)
	if res := b.result.Relocation; res != nil {
		for _, p := range res.Copied {
			b.result.Copied = append(b.result.Copied, staged.Rel(p))
		}
	}

	m := newManifest(b.opts, b.result, staged)
	if err := m.write(filepath.Join(staged.Resources, ManifestName)); err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "write manifest")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.RemoveAll(final); err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "remove previous bundle")
	}
	if err := os.Rename(staged.Root, final); err != nil {
		return macerrors.Wrap(macerrors.ErrCodeIO, err, "move bundle into place")
	}
	b.result.Archive.Path = b.result.Layout.Archive
	for i := range b.result.Extensions {
		b.result.Extensions[i].Dest = filepath.Join(b.result.Layout.DynLoad, b.result.Extensions[i].Rel())
	}
	return nil
}
