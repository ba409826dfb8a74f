// Package config loads build targets from TOML.
//
// A target lives either in a macpack.toml file or in the [tool.macpack]
// table of a project's pyproject.toml. Both use the same keys:
//
//	app = "src/main.py"
//	name = "Hello"
//	includes = ["encodings.*"]
//	packages = ["certifi"]
//	resources = ["assets", { source = "icons/app.icns", dest = "app.icns" }]
//	python = "/usr/local/bin/python3.12"
//	semi_standalone = false
//
// Relative paths are resolved against the directory of the file. Unknown
// keys are rejected so a typo never silently drops a setting.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/macpack/pkg/archive"
	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

// File names searched by [Find], in order.
const (
	FileName      = "macpack.toml"
	PyprojectName = "pyproject.toml"
)

// Config is one build target as written in a config file. Zero values mean
// "not set" and leave the corresponding option alone in [Config.Apply].
type Config struct {
	App                    string     `toml:"app"`
	Plugin                 string     `toml:"plugin"`
	Name                   string     `toml:"name"`
	Includes               []string   `toml:"includes"`
	Packages               []string   `toml:"packages"`
	MaybePackages          []string   `toml:"maybe_packages"`
	Excludes               []string   `toml:"excludes"`
	DylibExcludes          []string   `toml:"dylib_excludes"`
	Frameworks             []string   `toml:"frameworks"`
	Resources              []Resource `toml:"resources"`
	ExtraScripts           []string   `toml:"extra_scripts"`
	ExpectedMissingImports []string   `toml:"expected_missing_imports"`
	SearchPath             []string   `toml:"search_path"`

	Python        string `toml:"python"`
	PythonVersion string `toml:"python_version"`

	SemiStandalone                   bool     `toml:"semi_standalone"`
	Optimize                         int      `toml:"optimize"`
	Compressed                       bool     `toml:"compressed"`
	Strip                            bool     `toml:"strip"`
	QtPlugins                        []string `toml:"qt_plugins"`
	MatplotlibBackends               []string `toml:"matplotlib_backends"`
	DisabledRecipes                  []string `toml:"disabled_recipes"`
	Graph                            string   `toml:"graph"`
	Xref                             bool     `toml:"xref"`
	ReportMissingFromImports         bool     `toml:"report_missing_from_imports"`
	NoReportMissingConditionalImport bool     `toml:"no_report_missing_conditional_import"`

	DistDir     string `toml:"dist_dir"`
	BuildDir    string `toml:"build_dir"`
	Parallelism int    `toml:"parallelism"`

	// Path is the file the config was loaded from.
	Path string `toml:"-"`
}

// Resource is a resource entry: either a plain path or a table with a
// source and an optional destination inside Contents/Resources.
type Resource struct {
	Source string
	Dest   string
}

// UnmarshalTOML implements toml.Unmarshaler.
func (r *Resource) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		r.Source = v
		return nil
	case map[string]any:
		for key, val := range v {
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("resource %s must be a string", key)
			}
			switch key {
			case "source":
				r.Source = s
			case "dest":
				r.Dest = s
			default:
				return fmt.Errorf("unknown resource key %q", key)
			}
		}
		if r.Source == "" {
			return fmt.Errorf("resource table needs a source")
		}
		return nil
	}
	return fmt.Errorf("resource must be a path or a table, got %T", v)
}

// Find returns the config file for dir: macpack.toml if present, else a
// pyproject.toml with a [tool.macpack] table. It returns "" when neither
// exists.
func Find(dir string) (string, error) {
	p := filepath.Join(dir, FileName)
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	p = filepath.Join(dir, PyprojectName)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", macerrors.Wrap(macerrors.ErrCodeIO, err, "read %s", p)
	}
	var probe struct {
		Tool map[string]toml.Primitive `toml:"tool"`
	}
	if _, err := toml.Decode(string(data), &probe); err != nil {
		return "", macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "parse %s", p)
	}
	if _, ok := probe.Tool["macpack"]; ok {
		return p, nil
	}
	return "", nil
}

// Load reads a config file. A file named pyproject.toml is read from its
// [tool.macpack] table. Relative paths in the result are resolved against
// the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, macerrors.Wrap(macerrors.ErrCodeFileNotFound, err, "config %s", path)
		}
		return nil, macerrors.Wrap(macerrors.ErrCodeIO, err, "read config %s", path)
	}

	var cfg *Config
	if filepath.Base(path) == PyprojectName {
		cfg, err = decodePyproject(data)
	} else {
		cfg, err = Decode(data)
	}
	if err != nil {
		return nil, macerrors.Wrap(macerrors.ErrCodeInvalidConfig, err, "config %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Path = abs
	cfg.Resolve(filepath.Dir(abs))
	return cfg, nil
}

// Decode parses a macpack.toml document.
func Decode(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, err
	}
	if err := undecoded(md, ""); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodePyproject(data []byte) (*Config, error) {
	var doc struct {
		Tool struct {
			Macpack toml.Primitive `toml:"macpack"`
		} `toml:"tool"`
	}
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, err
	}
	if !md.IsDefined("tool", "macpack") {
		return nil, fmt.Errorf("no [tool.macpack] table")
	}
	var cfg Config
	if err := md.PrimitiveDecode(doc.Tool.Macpack, &cfg); err != nil {
		return nil, err
	}
	if err := undecoded(md, "tool.macpack."); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// undecoded rejects keys below prefix that no field consumed.
func undecoded(md toml.MetaData, prefix string) error {
	var unknown []string
	for _, key := range md.Undecoded() {
		name := key.String()
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			if !strings.HasPrefix(rest, "resources.") {
				unknown = append(unknown, rest)
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", "))
}

// Resolve makes relative paths absolute against base. Module names and
// dylib exclude patterns are left alone.
func (c *Config) Resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	each := func(ps []string) {
		for i, p := range ps {
			ps[i] = abs(p)
		}
	}

	c.App = abs(c.App)
	c.Plugin = abs(c.Plugin)
	c.DistDir = abs(c.DistDir)
	c.BuildDir = abs(c.BuildDir)
	each(c.ExtraScripts)
	each(c.Frameworks)
	each(c.SearchPath)
	for i := range c.Resources {
		c.Resources[i].Source = abs(c.Resources[i].Source)
	}
	for i, name := range c.ExpectedMissingImports {
		if file, ok := strings.CutPrefix(name, "@"); ok {
			c.ExpectedMissingImports[i] = "@" + abs(file)
		}
	}
	// An interpreter given by name is looked up on PATH, not in base.
	if strings.ContainsRune(c.Python, filepath.Separator) {
		c.Python = abs(c.Python)
	}
}

// Apply copies every value set in c into opts. Command-line flags are
// applied afterwards and win.
func (c *Config) Apply(opts *pipeline.Options) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setList := func(dst *[]string, v []string) {
		if len(v) > 0 {
			*dst = slices.Clone(v)
		}
	}

	setString(&opts.App, c.App)
	setString(&opts.Plugin, c.Plugin)
	setString(&opts.Name, c.Name)
	setList(&opts.Includes, c.Includes)
	setList(&opts.Packages, c.Packages)
	setList(&opts.MaybePackages, c.MaybePackages)
	setList(&opts.Excludes, c.Excludes)
	setList(&opts.DylibExcludes, c.DylibExcludes)
	setList(&opts.Frameworks, c.Frameworks)
	setList(&opts.ExtraScripts, c.ExtraScripts)
	setList(&opts.ExpectedMissingImports, c.ExpectedMissingImports)
	setList(&opts.SearchPath, c.SearchPath)
	for _, r := range c.Resources {
		opts.Resources = append(opts.Resources, archive.Resource{Source: r.Source, Dest: r.Dest})
	}

	setString(&opts.Python, c.Python)
	setString(&opts.PythonVersion, c.PythonVersion)

	opts.SemiStandalone = opts.SemiStandalone || c.SemiStandalone
	if c.Optimize != 0 {
		opts.Optimize = c.Optimize
	}
	opts.Compressed = opts.Compressed || c.Compressed
	opts.Strip = opts.Strip || c.Strip
	setList(&opts.QtPlugins, c.QtPlugins)
	setList(&opts.MatplotlibBackends, c.MatplotlibBackends)
	setList(&opts.DisabledRecipes, c.DisabledRecipes)
	setString(&opts.Graph, c.Graph)
	opts.Xref = opts.Xref || c.Xref
	opts.ReportMissingFromImports = opts.ReportMissingFromImports || c.ReportMissingFromImports
	opts.NoReportMissingConditionalImport = opts.NoReportMissingConditionalImport || c.NoReportMissingConditionalImport

	setString(&opts.DistDir, c.DistDir)
	setString(&opts.BuildDir, c.BuildDir)
	if c.Parallelism > 0 {
		opts.Parallelism = c.Parallelism
	}
}
