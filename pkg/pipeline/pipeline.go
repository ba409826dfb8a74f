// Package pipeline turns a Python application into a macOS bundle.
//
// This package implements the complete build that the CLI runs. Every stage
// takes the previous stage's output as its only input:
//
//  1. graph: walk the imports of the scripts and the forced modules
//  2. recipes: apply recipe corrections until none matches
//  3. filter: drop modules that do not belong in the bundle
//  4. report: collect missing imports and broken modules as warnings
//  5. archive: write the module archive, extensions and resources
//  6. relocate: copy native libraries and rewrite load commands
//  7. finalize: write the build manifest and move the bundle into place
//
// Stages 1 to 4 never touch the filesystem and are available on their own
// through [Runner.Graph]. Stages 5 to 7 write into a staging directory next
// to the final bundle, which replaces any previous bundle only when the
// whole build succeeded.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    App:      "main.py",
//	    Includes: []string{"encodings.*"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Layout.Root)
package pipeline

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/macpack/pkg/archive"
	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/export"
	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/pyenv"
	"github.com/matzehuels/macpack/pkg/recipe"
	"github.com/matzehuels/macpack/pkg/relocate"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultDistDir receives the finished bundle.
	DefaultDistDir = "dist"

	// DefaultBuildDir receives intermediate files and graph exports.
	DefaultBuildDir = "build"

	// DefaultPython is the interpreter probed when neither Python nor
	// PythonVersion is set.
	DefaultPython = "python3"

	// ManifestName is the build manifest written into Contents/Resources.
	ManifestName = "build-manifest.json"
)

// Stage names, as reported to observability hooks.
const (
	StageGraph    = "graph"
	StageRecipes  = "recipes"
	StageFilter   = "filter"
	StageReport   = "report"
	StageExport   = "export"
	StageArchive  = "archive"
	StageRelocate = "relocate"
	StageFinalize = "finalize"
)

// =============================================================================
// Options - Build Configuration
// =============================================================================

// Options describes one build: the target application and every switch.
type Options struct {
	// Target
	App                    string             `json:"app,omitempty"`    // Main script of an application bundle
	Plugin                 string             `json:"plugin,omitempty"` // Main script of a plugin bundle
	Name                   string             `json:"name,omitempty"`   // Bundle name; defaults to the script name
	Includes               []string           `json:"includes,omitempty"`
	Packages               []string           `json:"packages,omitempty"`
	MaybePackages          []string           `json:"maybe_packages,omitempty"` // Packages included only if present
	Excludes               []string           `json:"excludes,omitempty"`
	DylibExcludes          []string           `json:"dylib_excludes,omitempty"`
	Frameworks             []string           `json:"frameworks,omitempty"` // Extra libraries or .framework dirs to bundle
	Resources              []archive.Resource `json:"resources,omitempty"`
	ExtraScripts           []string           `json:"extra_scripts,omitempty"`
	ExpectedMissingImports []string           `json:"expected_missing_imports,omitempty"` // Names, or "@file" with one name per line
	SearchPath             []string           `json:"search_path,omitempty"`

	// Interpreter
	Python        string     `json:"python,omitempty"`         // Interpreter to probe
	PythonVersion string     `json:"python_version,omitempty"` // Build without an interpreter for this "X.Y"
	Env           *pyenv.Env `json:"-"`                        // Pre-probed environment; overrides both

	// Switches
	SemiStandalone                   bool     `json:"semi_standalone,omitempty"`
	Optimize                         int      `json:"optimize,omitempty"`
	Compressed                       bool     `json:"compressed,omitempty"`
	Strip                            bool     `json:"strip,omitempty"` // Recorded in the manifest; stripping is external
	QtPlugins                        []string `json:"qt_plugins,omitempty"`
	MatplotlibBackends               []string `json:"matplotlib_backends,omitempty"`
	DisabledRecipes                  []string `json:"disabled_recipes,omitempty"`
	Graph                            string   `json:"graph,omitempty"` // Export format for the module graph
	Xref                             bool     `json:"xref,omitempty"`
	ReportMissingFromImports         bool     `json:"report_missing_from_imports,omitempty"`
	NoReportMissingConditionalImport bool     `json:"no_report_missing_conditional_import,omitempty"`

	// Output
	DistDir     string `json:"dist_dir,omitempty"`
	BuildDir    string `json:"build_dir,omitempty"`
	NoCache     bool   `json:"no_cache,omitempty"`
	Parallelism int    `json:"parallelism,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Script returns the main script, whichever of App and Plugin is set.
func (o *Options) Script() string {
	if o.Plugin != "" {
		return o.Plugin
	}
	return o.App
}

// BundleExt returns ".plugin" for plugin bundles and ".app" otherwise.
func (o *Options) BundleExt() string {
	if o.Plugin != "" {
		return ".plugin"
	}
	return ".app"
}

// Scripts returns the main script followed by the extra scripts.
func (o *Options) Scripts() []string {
	return append([]string{o.Script()}, o.ExtraScripts...)
}

// =============================================================================
// Result
// =============================================================================

// GraphResult holds the outputs of the stages that only analyze.
type GraphResult struct {
	Graph   *modgraph.Graph
	Env     *pyenv.Env
	Filter  modgraph.FilterStats
	Missing *modgraph.MissingReport

	// Recipes is the accumulated recipe correction. Later stages consume
	// its prescripts, resources, loader files and frameworks.
	Recipes *recipe.Outcome
}

// Result contains the outputs of a build.
type Result struct {
	GraphResult

	BuildID    string
	Layout     Layout // Final bundle location
	Archive    *archive.Stats
	Extensions []archive.Placed
	Relocation *relocate.Result // Paths refer to the staging directory
	Copied     []string         // Libraries copied into the bundle, relative to the bundle root
	Exports    []string         // Graph and cross-reference files written

	Stats Stats
}

// Stats contains build statistics.
type Stats struct {
	Modules    int
	Extensions int
	Libraries  int
	Missing    int
	Filter     modgraph.FilterStats     // Graph nodes seen, filtered and orphaned
	Durations  map[string]time.Duration // Per stage
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks the options and applies defaults. It reads
// the filesystem to confirm that inputs exist but never writes; every error
// it returns is a configuration error. Calling it again is a no-op.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}

	switch {
	case o.App == "" && o.Plugin == "":
		return macerrors.New(macerrors.ErrCodeInvalidTarget, "either an app or a plugin script is required")
	case o.App != "" && o.Plugin != "":
		return macerrors.New(macerrors.ErrCodeInvalidTarget, "app and plugin are mutually exclusive")
	}
	for _, s := range o.Scripts() {
		if !isFile(s) {
			return macerrors.New(macerrors.ErrCodeInvalidTarget, "script %s does not exist", s)
		}
	}

	if o.Name == "" {
		base := filepath.Base(o.Script())
		o.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := macerrors.ValidateTargetName(o.Name); err != nil {
		return err
	}

	for _, list := range [][]string{o.Includes, o.Packages, o.MaybePackages, o.Excludes} {
		for _, name := range list {
			if err := macerrors.ValidateModuleName(name); err != nil {
				return err
			}
		}
	}
	expected, err := expandExpected(o.ExpectedMissingImports)
	if err != nil {
		return err
	}
	o.ExpectedMissingImports = expected

	for _, r := range o.Resources {
		if r.Data == nil {
			if _, err := os.Stat(r.Source); err != nil {
				return macerrors.New(macerrors.ErrCodeInvalidTarget, "resource %s does not exist", r.Source)
			}
		}
		if r.Dest != "" {
			if err := macerrors.ValidatePath(filepath.ToSlash(r.Dest)); err != nil {
				return err
			}
		}
	}
	for _, fw := range o.Frameworks {
		if _, err := os.Stat(fw); err != nil {
			return macerrors.New(macerrors.ErrCodeInvalidTarget, "framework %s does not exist", fw)
		}
	}
	if err := relocate.ValidateExcludes(o.DylibExcludes); err != nil {
		return err
	}

	if o.Optimize < -1 || o.Optimize > 2 {
		return macerrors.New(macerrors.ErrCodeInvalidConfig, "optimize must be between -1 and 2, got %d", o.Optimize)
	}
	if o.Graph != "" {
		if err := export.ValidateFormat(o.Graph); err != nil {
			return macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "graph")
		}
	}
	if o.PythonVersion != "" {
		if _, _, err := pyenv.ParseVersion(o.PythonVersion); err != nil {
			return macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "python version")
		}
	}

	o.SetDefaults()
	o.validated = true
	return nil
}

// SetDefaults fills in output directories, parallelism, the interpreter and
// the logger.
func (o *Options) SetDefaults() {
	if o.DistDir == "" {
		o.DistDir = DefaultDistDir
	}
	if o.BuildDir == "" {
		o.BuildDir = DefaultBuildDir
	}
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.NumCPU()
	}
	if o.Python == "" && o.PythonVersion == "" && o.Env == nil {
		o.Python = DefaultPython
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
}

// expandExpected replaces "@file" entries with the names listed in the
// file, one per line. Blank lines and lines starting with "#" are skipped.
func expandExpected(names []string) ([]string, error) {
	var out []string
	for _, name := range names {
		path, ok := strings.CutPrefix(name, "@")
		if !ok {
			if err := macerrors.ValidateModuleName(name); err != nil {
				return nil, err
			}
			out = append(out, name)
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "expected missing imports file")
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := macerrors.ValidateModuleName(line); err != nil {
				f.Close()
				return nil, err
			}
			out = append(out, line)
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "read %s", path)
		}
	}
	return out, nil
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
