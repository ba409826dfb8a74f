package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// moduleNameRegex matches dotted Python module names. A trailing ".*" is
// accepted for wildcard includes ("encodings.*").
var moduleNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*(\.\*)?$`)

// ValidateModuleName validates a dotted module name given on the command
// line or in a config file (includes, packages, excludes).
func ValidateModuleName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidModuleName, "module name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidModuleName, "module name too long (max 256 characters)")
	}

	if !moduleNameRegex.MatchString(name) {
		return New(ErrCodeInvalidModuleName, "invalid module name: %q", name)
	}

	return nil
}

// ValidatePath validates a destination path inside the bundle.
// It prevents path traversal and ensures reasonable path length.
//
// Validation rules:
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
//
// The empty path is valid and denotes the destination root.
func ValidatePath(path string) error {
	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /): %s", path)
	}

	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..): %s", path)
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes: %s", path)
	}

	return nil
}

// ValidateTargetName validates the bundle name used for <Name>.app.
// It ensures the name is a simple basename without path components.
func ValidateTargetName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidTarget, "bundle name cannot be empty")
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidTarget, "bundle name cannot contain path separators: %q", name)
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidTarget, "bundle name cannot start with a dot: %q", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidTarget, "bundle name contains invalid control characters")
		}
	}

	return nil
}
