package cli

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/macpack/pkg/archive"
	"github.com/matzehuels/macpack/pkg/config"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

// targetFlags holds the flags shared by the build and graph commands.
// They are merged over the config file: a flag wins only when it was set
// on the command line.
type targetFlags struct {
	config    string   // explicit config file
	plugin    bool     // the script is a plugin, not an app
	resources []string // "source" or "source=dest"
	opts      pipeline.Options
}

// registerTarget adds the flags that decide what goes into the graph.
func (f *targetFlags) registerTarget(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "config file (default: macpack.toml or pyproject.toml)")
	fl.BoolVar(&f.plugin, "plugin", false, "build a .plugin bundle instead of an .app")
	fl.StringVarP(&f.opts.Name, "name", "n", "", "bundle name (default: script name)")
	fl.StringSliceVarP(&f.opts.Includes, "includes", "i", nil, "modules to include, dotted names or pkg.* globs")
	fl.StringSliceVarP(&f.opts.Packages, "packages", "p", nil, "packages to include with all their submodules")
	fl.StringSliceVar(&f.opts.MaybePackages, "maybe-packages", nil, "packages to include when they exist")
	fl.StringSliceVarP(&f.opts.Excludes, "excludes", "e", nil, "modules to leave out")
	fl.StringSliceVar(&f.opts.ExtraScripts, "extra-scripts", nil, "additional scripts to bundle next to the main one")
	fl.StringSliceVar(&f.opts.ExpectedMissingImports, "expected-missing-imports", nil, "missing imports to ignore, or @file with one per line")
	fl.StringSliceVar(&f.opts.SearchPath, "search-path", nil, "directories searched before the interpreter's sys.path")
	fl.StringVar(&f.opts.Python, "python", "", "interpreter to build against (default: python3)")
	fl.StringVar(&f.opts.PythonVersion, "python-version", "", "build for this X.Y version without running an interpreter")
	fl.BoolVar(&f.opts.SemiStandalone, "semi-standalone", false, "use the installed Python instead of bundling it")
	fl.StringSliceVar(&f.opts.QtPlugins, "qt-plugins", nil, "Qt plugin groups to bundle")
	fl.StringSliceVar(&f.opts.MatplotlibBackends, "matplotlib-backends", nil, "matplotlib backends to bundle, or - for none")
	fl.StringSliceVar(&f.opts.DisabledRecipes, "disable-recipes", nil, "recipes to skip")
	fl.BoolVar(&f.opts.ReportMissingFromImports, "report-missing-from-imports", false, "also warn about names missing from from-imports")
	fl.BoolVar(&f.opts.NoReportMissingConditionalImport, "no-report-missing-conditional-import", false, "do not warn about missing guarded imports")
	fl.BoolVar(&f.opts.NoCache, "no-cache", false, "do not read or write the scan cache")
}

// registerOutput adds the flags that only matter when writing a bundle.
func (f *targetFlags) registerOutput(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVar(&f.opts.DylibExcludes, "dylib-excludes", nil, "libraries or frameworks never copied into the bundle")
	fl.StringSliceVar(&f.opts.Frameworks, "frameworks", nil, "extra libraries or frameworks to bundle")
	fl.StringSliceVarP(&f.resources, "resources", "r", nil, "files or directories to copy into Resources, as source[=dest]")
	fl.IntVarP(&f.opts.Optimize, "optimize", "O", 0, "bytecode optimization level (-1 to 2)")
	fl.BoolVar(&f.opts.Compressed, "compressed", false, "deflate the module archive")
	fl.BoolVar(&f.opts.Strip, "strip", false, "mark the bundle for debug symbol stripping")
	fl.StringVar(&f.opts.Graph, "graph", "", "also export the module graph (json, dot or svg)")
	fl.BoolVar(&f.opts.Xref, "xref", false, "also export a module cross reference")
	fl.StringVar(&f.opts.DistDir, "dist-dir", "", "directory for the finished bundle (default: dist)")
	fl.StringVar(&f.opts.BuildDir, "build-dir", "", "directory for intermediate files (default: build)")
	fl.IntVarP(&f.opts.Parallelism, "jobs", "j", 0, "parallel workers (default: number of CPUs)")
}

// options resolves the final build options: the config file first, then
// every flag that was set, then the script argument.
func (f *targetFlags) options(ctx context.Context, cmd *cobra.Command, args []string) (pipeline.Options, error) {
	var script string
	if len(args) > 0 {
		script = args[0]
	}

	var opts pipeline.Options
	path := f.config
	if path == "" {
		var err error
		if path, err = findConfig(script); err != nil {
			return opts, err
		}
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return opts, err
		}
		cfg.Apply(&opts)
		loggerFromContext(ctx).Debug("loaded config", "file", cfg.Path)
	}

	f.merge(cmd, &opts)

	switch {
	case script != "" && f.plugin:
		opts.App, opts.Plugin = "", script
	case script != "":
		opts.App, opts.Plugin = script, ""
	case f.plugin && opts.App != "":
		opts.App, opts.Plugin = "", opts.App
	}
	return opts, nil
}

// merge copies each flag that was set on the command line into dst.
func (f *targetFlags) merge(cmd *cobra.Command, dst *pipeline.Options) {
	src := &f.opts
	setters := map[string]func(){
		"name":                                 func() { dst.Name = src.Name },
		"includes":                             func() { dst.Includes = src.Includes },
		"packages":                             func() { dst.Packages = src.Packages },
		"maybe-packages":                       func() { dst.MaybePackages = src.MaybePackages },
		"excludes":                             func() { dst.Excludes = src.Excludes },
		"extra-scripts":                        func() { dst.ExtraScripts = src.ExtraScripts },
		"expected-missing-imports":             func() { dst.ExpectedMissingImports = src.ExpectedMissingImports },
		"search-path":                          func() { dst.SearchPath = src.SearchPath },
		"python":                               func() { dst.Python = src.Python },
		"python-version":                       func() { dst.PythonVersion = src.PythonVersion },
		"semi-standalone":                      func() { dst.SemiStandalone = src.SemiStandalone },
		"qt-plugins":                           func() { dst.QtPlugins = src.QtPlugins },
		"matplotlib-backends":                  func() { dst.MatplotlibBackends = src.MatplotlibBackends },
		"disable-recipes":                      func() { dst.DisabledRecipes = src.DisabledRecipes },
		"report-missing-from-imports":          func() { dst.ReportMissingFromImports = src.ReportMissingFromImports },
		"no-report-missing-conditional-import": func() { dst.NoReportMissingConditionalImport = src.NoReportMissingConditionalImport },
		"no-cache":                             func() { dst.NoCache = src.NoCache },
		"dylib-excludes":                       func() { dst.DylibExcludes = src.DylibExcludes },
		"frameworks":                           func() { dst.Frameworks = src.Frameworks },
		"optimize":                             func() { dst.Optimize = src.Optimize },
		"compressed":                           func() { dst.Compressed = src.Compressed },
		"strip":                                func() { dst.Strip = src.Strip },
		"graph":                                func() { dst.Graph = src.Graph },
		"xref":                                 func() { dst.Xref = src.Xref },
		"dist-dir":                             func() { dst.DistDir = src.DistDir },
		"build-dir":                            func() { dst.BuildDir = src.BuildDir },
		"jobs":                                 func() { dst.Parallelism = src.Parallelism },
		"resources": func() {
			for _, r := range f.resources {
				source, dest, _ := strings.Cut(r, "=")
				dst.Resources = append(dst.Resources, archive.Resource{Source: source, Dest: dest})
			}
		},
	}
	for name, set := range setters {
		if cmd.Flags().Changed(name) {
			set()
		}
	}
}

// findConfig looks for a config file in the working directory, then next
// to the script.
func findConfig(script string) (string, error) {
	dirs := []string{"."}
	if script != "" {
		if dir := filepath.Dir(script); dir != "." {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		path, err := config.Find(dir)
		if err != nil || path != "" {
			return path, err
		}
	}
	return "", nil
}
