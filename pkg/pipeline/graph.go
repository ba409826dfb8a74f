package pipeline

import (
	"cmp"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/macpack/pkg/cache"
	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/modfinder"
	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/pyenv"
	"github.com/matzehuels/macpack/pkg/pysource"
	"github.com/matzehuels/macpack/pkg/recipe"
)

// Graph runs the analysis stages: it builds the module graph, applies
// recipes, filters the graph and collects the missing-imports report. It
// never writes to the filesystem.
func (r *Runner) Graph(ctx context.Context, opts Options) (*GraphResult, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return r.graph(ctx, &opts, make(map[string]time.Duration))
}

func (r *Runner) graph(ctx context.Context, opts *Options, durations map[string]time.Duration) (*GraphResult, error) {
	res := &GraphResult{}

	env, err := r.environment(ctx, opts)
	if err != nil {
		return nil, err
	}
	res.Env = env
	opts.Logger.Debug("python environment", "version", env.Version, "interpreter", env.Interpreter, "framework", env.Framework)

	var finder *modfinder.Finder
	err = r.stage(ctx, StageGraph, durations, func(ctx context.Context) error {
		finder, err = r.findModules(ctx, opts, env)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, StageRecipes, durations, func(ctx context.Context) error {
		engine := &recipe.Engine{
			Registry: recipe.Default().Without(opts.DisabledRecipes...),
			Logger:   opts.Logger,
		}
		res.Recipes, err = engine.Apply(ctx, &recipe.Context{
			Env:                env,
			QtPlugins:          opts.QtPlugins,
			MatplotlibBackends: opts.MatplotlibBackends,
			SemiStandalone:     opts.SemiStandalone,
			Logger:             opts.Logger,
		}, finder)
		return err
	})
	if err != nil {
		return nil, err
	}

	g := finder.Graph()
	res.Graph = g
	_ = r.stage(ctx, StageFilter, durations, func(context.Context) error {
		filters := []modgraph.Filter{modgraph.HasPathFilter}
		filters = append(filters, res.Recipes.Filters...)
		if prefix := cmp.Or(env.BasePrefix, env.Prefix); opts.SemiStandalone && prefix != "" {
			filters = append(filters, modgraph.NotStdlibFilter(prefix))
		}
		res.Filter = g.FilterStack(filters...)
		opts.Logger.Info("filtered graph",
			"seen", res.Filter.Seen,
			"removed", res.Filter.Removed,
			"orphaned", res.Filter.Orphaned,
			"remaining", res.Filter.Remaining())
		return nil
	})

	_ = r.stage(ctx, StageReport, durations, func(context.Context) error {
		expected := append(append([]string(nil), opts.ExpectedMissingImports...), res.Recipes.ExpectedMissingImports...)
		res.Missing = modgraph.BuildMissingReport(g, expected)
		reportMissing(opts, res.Missing)
		return nil
	})
	return res, nil
}

// environment returns the target interpreter's configuration. A pre-probed
// environment wins, then an explicit version, then a probe of the
// interpreter.
func (r *Runner) environment(ctx context.Context, opts *Options) (*pyenv.Env, error) {
	if opts.Env != nil {
		return opts.Env, nil
	}
	if opts.PythonVersion != "" && opts.Python == "" {
		env, err := pyenv.Default(opts.PythonVersion)
		if err != nil {
			return nil, macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "python version")
		}
		return env, nil
	}

	probe := pyenv.ProbeOptions{Keyer: r.Keyer}
	if !opts.NoCache {
		probe.Cache = r.Cache
	}
	env, err := pyenv.Probe(ctx, opts.Python, probe)
	if err != nil {
		return nil, macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "probe %s", opts.Python)
	}
	if opts.PythonVersion != "" && opts.PythonVersion != env.ShortVersion() {
		return nil, macerrors.New(macerrors.ErrCodeInvalidConfig,
			"interpreter %s is Python %s, not %s", opts.Python, env.ShortVersion(), opts.PythonVersion)
	}
	return env, nil
}

// findModules walks the scripts and the forced includes and packages.
func (r *Runner) findModules(ctx context.Context, opts *Options, env *pyenv.Env) (*modfinder.Finder, error) {
	c := r.Cache
	if opts.NoCache {
		c = cache.NewNullCache()
	}
	finder := modfinder.New(modfinder.Config{
		SearchPath: opts.SearchPath,
		Env:        env,
		Excludes:   opts.Excludes,
		Scanner:    pysource.NewCachedScanner(pysource.NewScanner(), c, r.Keyer),
		Logger:     opts.Logger,
	})

	for _, script := range opts.Scripts() {
		if _, err := finder.RunScript(ctx, script); err != nil {
			return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "scan %s", script)
		}
	}
	if err := finder.FindNeeded(ctx, opts.Includes, opts.Packages); err != nil {
		if errors.Is(err, modfinder.ErrPackageNotFound) {
			return nil, macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "packages")
		}
		return nil, err
	}
	for _, name := range opts.MaybePackages {
		err := finder.FindNeeded(ctx, nil, []string{name})
		if errors.Is(err, modfinder.ErrPackageNotFound) {
			opts.Logger.Debug("optional package not found", "package", name)
			opts.ExpectedMissingImports = append(opts.ExpectedMissingImports, name)
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	g := finder.Graph()
	opts.Logger.Info("built module graph", "modules", g.NodeCount(), "imports", g.EdgeCount())
	return finder, nil
}

// ReportedBuckets returns the missing-import buckets shown to the user.
// From-imports are shown only on request, and conditional imports can be
// silenced.
func (o *Options) ReportedBuckets() []modgraph.Bucket {
	buckets := []modgraph.Bucket{modgraph.Unconditional}
	if o.ReportMissingFromImports {
		buckets = append(buckets, modgraph.FromImport)
	}
	if !o.NoReportMissingConditionalImport {
		buckets = append(buckets, modgraph.Conditional)
		if o.ReportMissingFromImports {
			buckets = append(buckets, modgraph.FromImportConditional)
		}
	}
	return buckets
}

// reportMissing logs the missing-imports report as warnings.
func reportMissing(opts *Options, report *modgraph.MissingReport) {
	for _, b := range opts.ReportedBuckets() {
		m := report.Bucket(b)
		for _, name := range modgraph.Names(m) {
			opts.Logger.Warn("missing module", "module", name, "kind", b.String(), "imported_by", shortList(m[name]))
		}
	}
	for _, id := range report.SyntaxErrors {
		opts.Logger.Warn("syntax error", "module", id)
	}
	for _, id := range report.InvalidBytecode {
		opts.Logger.Warn("invalid bytecode", "module", id)
	}
	for _, name := range modgraph.Names(report.InvalidRelativeImports) {
		opts.Logger.Warn("invalid relative import", "import", name, "imported_by", shortList(report.InvalidRelativeImports[name]))
	}
}

// shortList joins up to three names and counts the rest.
func shortList(names []string) string {
	if len(names) <= 3 {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:3], ", ") + ", +" + strconv.Itoa(len(names)-3)
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
