// Package pyenv describes the Python interpreter a bundle is built against.
//
// [Probe] runs the interpreter once and records everything the build needs
// from it: version, prefixes, sys.path, extension suffixes, builtin module
// names and the location of the shared runtime library. The rest of macpack
// only ever reads the returned [Env]; nothing consults process-global state.
package pyenv

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Env is a snapshot of one interpreter's configuration.
type Env struct {
	Interpreter string `json:"interpreter"`
	Version     string `json:"version"` // "3.12.4"
	Major       int    `json:"major"`
	Minor       int    `json:"minor"`

	Prefix     string `json:"prefix"`
	BasePrefix string `json:"base_prefix"`
	StdlibDir  string `json:"stdlib_dir"`
	Executable string `json:"executable"`

	// SysPath is the interpreter's module search path, without the
	// current directory entry.
	SysPath           []string `json:"sys_path"`
	ExtensionSuffixes []string `json:"extension_suffixes"`
	BuiltinModules    []string `json:"builtin_modules"`

	// Framework is the framework name ("Python") for framework builds.
	Framework     string `json:"framework,omitempty"`
	FrameworkDir  string `json:"framework_dir,omitempty"`
	LibDir        string `json:"lib_dir,omitempty"`
	SharedLibrary string `json:"shared_library,omitempty"`
	EnableShared  bool   `json:"enable_shared"`
	PythonApp     string `json:"python_app,omitempty"`
}

// ShortVersion returns "X.Y".
func (e *Env) ShortVersion() string { return fmt.Sprintf("%d.%d", e.Major, e.Minor) }

// Tag returns "XY", as used in the archive name python312.zip.
func (e *Env) Tag() string { return fmt.Sprintf("%d%d", e.Major, e.Minor) }

// IsBuiltin reports whether name is compiled into the interpreter.
func (e *Env) IsBuiltin(name string) bool {
	for _, b := range e.BuiltinModules {
		if b == name {
			return true
		}
	}
	return false
}

// Runtime returns the install name used to refer to the runtime library and
// its path on disk. Framework builds use the framework binary; other builds
// use libpythonX.Y.dylib from the base prefix.
func (e *Env) Runtime() (dylib, path string) {
	if e.Framework != "" && e.FrameworkDir != "" {
		return e.Framework, filepath.Join(e.FrameworkDir, e.Framework)
	}
	dylib = fmt.Sprintf("libpython%d.%d.dylib", e.Major, e.Minor)
	if e.SharedLibrary != "" {
		dylib = e.SharedLibrary
	}
	libdir := e.LibDir
	if libdir == "" {
		libdir = filepath.Join(e.base(), "lib")
	}
	return dylib, filepath.Join(libdir, dylib)
}

// RuntimePreferences lists where the bundle launcher looks for the runtime,
// in order. Semi-standalone builds fall back to the host runtime.
func (e *Env) RuntimePreferences(semiStandalone bool) []string {
	dylib, path := e.Runtime()
	// Joined by hand: filepath.Join would clean away the "..".
	prefs := []string{"@executable_path/../Frameworks/" + dylib}
	if semiStandalone {
		prefs = append(prefs, path)
	}
	return prefs
}

func (e *Env) base() string {
	if e.BasePrefix != "" {
		return e.BasePrefix
	}
	return e.Prefix
}

// ParseVersion splits "3.12" or "3.12.4" into major and minor numbers.
func ParseVersion(v string) (major, minor int, err error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid python version %q", v)
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("invalid python version %q", v)
	}
	if minor, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid python version %q", v)
	}
	return major, minor, nil
}

// defaultBuiltins are the modules compiled into a stock CPython on macOS.
var defaultBuiltins = []string{
	"_abc", "_ast", "_codecs", "_collections", "_functools", "_imp", "_io",
	"_locale", "_operator", "_signal", "_sre", "_stat", "_string", "_symtable",
	"_thread", "_tokenize", "_tracemalloc", "_typing", "_warnings", "_weakref",
	"atexit", "builtins", "errno", "faulthandler", "gc", "itertools", "marshal",
	"posix", "pwd", "sys", "time",
}

// Default returns an environment for the given "X.Y" version without running
// an interpreter. It has no search path; callers add their own.
func Default(version string) (*Env, error) {
	major, minor, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}
	return &Env{
		Version: version,
		Major:   major,
		Minor:   minor,
		ExtensionSuffixes: []string{
			fmt.Sprintf(".cpython-%d%d-darwin.so", major, minor),
			".abi3.so",
			".so",
		},
		BuiltinModules: append([]string(nil), defaultBuiltins...),
	}, nil
}
