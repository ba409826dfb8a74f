package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/macpack/pkg/cache"
	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/export"
	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/observability"
)

// Runner executes builds with a shared scan and probe cache.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store build results. Multiple goroutines can use the same Runner for
// builds with different output directories.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete build and returns where the bundle went.
//
// Configuration errors are reported before anything is written. When a
// later stage fails the staging directory is removed and a previous bundle
// at the same location is left untouched.
func (r *Runner) Execute(ctx context.Context, opts Options) (_ *Result, err error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	result := &Result{BuildID: uuid.NewString()}
	result.Stats.Durations = make(map[string]time.Duration)
	opts.Logger = opts.Logger.With("build", result.BuildID[:8])
	durations := result.Stats.Durations

	gr, err := r.graph(ctx, &opts, durations)
	if err != nil {
		return nil, err
	}
	result.GraphResult = *gr

	if opts.Graph != "" || opts.Xref {
		err = r.stage(ctx, StageExport, durations, func(ctx context.Context) error {
			result.Exports, err = exportGraph(ctx, &opts, gr.Graph)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	final, staging := bundlePaths(&opts)
	if err := os.RemoveAll(staging); err != nil {
		return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "clear staging directory")
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	b := &bundle{
		opts:   &opts,
		graph:  gr,
		layout: NewLayout(staging, gr.Env),
		result: result,
	}
	if err = r.stage(ctx, StageArchive, durations, b.write); err != nil {
		return nil, err
	}
	if err = r.stage(ctx, StageRelocate, durations, b.relocate); err != nil {
		return nil, err
	}
	err = r.stage(ctx, StageFinalize, durations, func(ctx context.Context) error {
		return b.finalize(ctx, final)
	})
	if err != nil {
		return nil, err
	}

	result.Stats.Missing = gr.Missing.Count()
	result.Stats.Filter = gr.Filter
	opts.Logger.Info("built bundle",
		"path", result.Layout.Root,
		"seen", gr.Filter.Seen,
		"filtered", gr.Filter.Removed,
		"orphaned", gr.Filter.Orphaned,
		"remaining", gr.Filter.Remaining(),
		"modules", result.Stats.Modules,
		"extensions", result.Stats.Extensions,
		"libraries", result.Stats.Libraries,
		"missing", result.Stats.Missing)
	return result, nil
}

// stage runs one named stage between the observability hooks and records
// its duration.
func (r *Runner) stage(ctx context.Context, name string, durations map[string]time.Duration, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, name)
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	durations[name] = d
	hooks.OnStageComplete(ctx, name, d, err)
	return err
}

// exportGraph writes the requested graph and cross-reference files into
// the build directory.
func exportGraph(ctx context.Context, opts *Options, g *modgraph.Graph) ([]string, error) {
	if err := os.MkdirAll(opts.BuildDir, 0o755); err != nil {
		return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "create build directory")
	}
	var written []string
	if opts.Graph != "" {
		path := filepath.Join(opts.BuildDir, opts.Name+"-graph."+opts.Graph)
		if err := export.Export(ctx, g, opts.Graph, path); err != nil {
			return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "export graph")
		}
		written = append(written, path)
	}
	if opts.Xref {
		path := filepath.Join(opts.BuildDir, opts.Name+"-xref.json")
		if err := export.ExportXref(g, path); err != nil {
			return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "export cross reference")
		}
		written = append(written, path)
	}
	for _, p := range written {
		opts.Logger.Info("exported", "file", p)
	}
	return written, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
