package dyld

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotFound is returned by [Resolver.Find] when no candidate exists.
var ErrNotFound = errors.New("library not found")

var (
	// DefaultFallbackFrameworkPaths are searched for framework names after
	// every explicit location failed. "~" is the user's home directory.
	DefaultFallbackFrameworkPaths = []string{
		"~/Library/Frameworks",
		"/Library/Frameworks",
		"/Network/Library/Frameworks",
		"/System/Library/Frameworks",
	}

	// DefaultFallbackLibraryPaths are searched by base name last.
	DefaultFallbackLibraryPaths = []string{
		"~/lib",
		"/usr/local/lib",
		"/lib",
		"/usr/lib",
	}

	// DefaultSystemPrefixes hold libraries that ship with the OS.
	DefaultSystemPrefixes = []string{"/usr/", "/System/"}

	// DefaultNonSystemPrefixes carve exceptions out of the system prefixes.
	DefaultNonSystemPrefixes = []string{"/usr/local/"}
)

// Resolver locates libraries. The zero value searches the default fallback
// directories and treats /usr and /System as system locations.
type Resolver struct {
	// ExecutablePath is the directory @executable_path expands to.
	ExecutablePath string

	// LibraryPaths and FrameworkPaths are searched before anything else,
	// like DYLD_LIBRARY_PATH and DYLD_FRAMEWORK_PATH.
	LibraryPaths   []string
	FrameworkPaths []string

	// Fallback directories; nil selects the defaults, an empty non-nil
	// slice disables the fallback.
	FallbackLibraryPaths   []string
	FallbackFrameworkPaths []string

	// SystemPrefixes and NonSystemPrefixes decide [Resolver.IsSystem]; nil
	// selects the defaults.
	SystemPrefixes    []string
	NonSystemPrefixes []string

	// Home expands "~" in fallback paths; empty means os.UserHomeDir.
	Home string
}

// Find resolves name as loaded by a binary in loaderDir with the given
// run paths. The first existing candidate wins. A system library that does
// not exist on disk, as with the dyld shared cache, resolves to itself.
func (r *Resolver) Find(name, loaderDir string, rpaths []string) (string, error) {
	for _, c := range r.Candidates(name, loaderDir, rpaths) {
		if isFile(c) {
			return c, nil
		}
	}
	if path.IsAbs(name) && r.IsSystem(name) {
		return name, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Candidates lists the paths [Resolver.Find] tries, in order, without
// touching the filesystem.
func (r *Resolver) Candidates(name, loaderDir string, rpaths []string) []string {
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}

	fw := FrameworkInfo(name)
	if fw != nil {
		for _, dir := range r.FrameworkPaths {
			add(filepath.Join(dir, fw.Name))
		}
	}
	for _, dir := range r.LibraryPaths {
		add(filepath.Join(dir, path.Base(name)))
	}

	switch {
	case strings.HasPrefix(name, "@executable_path/"):
		if r.ExecutablePath != "" {
			add(filepath.Join(r.ExecutablePath, name[len("@executable_path/"):]))
		}
		return out
	case strings.HasPrefix(name, "@loader_path/"):
		if loaderDir != "" {
			add(filepath.Join(loaderDir, name[len("@loader_path/"):]))
		}
		return out
	case strings.HasPrefix(name, "@rpath/"):
		rest := name[len("@rpath/"):]
		for _, rp := range rpaths {
			if dir, ok := r.expand(rp, loaderDir); ok {
				add(filepath.Join(dir, rest))
			}
		}
		return out
	}

	add(name)
	if fw != nil {
		for _, dir := range r.fallback(r.FallbackFrameworkPaths, DefaultFallbackFrameworkPaths) {
			add(filepath.Join(dir, fw.Name))
		}
	}
	for _, dir := range r.fallback(r.FallbackLibraryPaths, DefaultFallbackLibraryPaths) {
		add(filepath.Join(dir, path.Base(name)))
	}
	return out
}

// expand substitutes @loader_path and @executable_path in an rpath entry.
func (r *Resolver) expand(rpath, loaderDir string) (string, bool) {
	switch {
	case strings.HasPrefix(rpath, "@loader_path"):
		if loaderDir == "" {
			return "", false
		}
		return filepath.Join(loaderDir, strings.TrimPrefix(rpath, "@loader_path")), true
	case strings.HasPrefix(rpath, "@executable_path"):
		if r.ExecutablePath == "" {
			return "", false
		}
		return filepath.Join(r.ExecutablePath, strings.TrimPrefix(rpath, "@executable_path")), true
	case strings.HasPrefix(rpath, "@"):
		return "", false
	}
	return rpath, true
}

func (r *Resolver) fallback(configured, defaults []string) []string {
	dirs := configured
	if dirs == nil {
		dirs = defaults
	}
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if rest, ok := strings.CutPrefix(d, "~"); ok {
			home := r.Home
			if home == "" {
				h, err := os.UserHomeDir()
				if err != nil {
					continue
				}
				home = h
			}
			d = home + rest
		}
		out = append(out, d)
	}
	return out
}

// IsSystem reports whether p belongs to the operating system and is never
// copied into a bundle.
func (r *Resolver) IsSystem(p string) bool {
	sys, non := r.SystemPrefixes, r.NonSystemPrefixes
	if sys == nil {
		sys = DefaultSystemPrefixes
	}
	if non == nil {
		non = DefaultNonSystemPrefixes
	}
	return hasAnyPrefix(p, sys) && !hasAnyPrefix(p, non)
}

// IsSystem reports whether p is a system library under the default
// prefixes.
func IsSystem(p string) bool {
	return (&Resolver{}).IsSystem(p)
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
