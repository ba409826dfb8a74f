package dyld

import (
	"path"
	"strings"
)

// Framework describes a path inside a framework bundle, for example
// "/Library/Frameworks/Python.framework/Versions/3.12/Python".
type Framework struct {
	// Location is the directory holding the .framework bundle.
	Location string
	// Name is the path below Location: "Python.framework/Versions/3.12/Python".
	Name string
	// ShortName is the framework name without extension: "Python".
	ShortName string
	// Version is empty for unversioned references ("Foo.framework/Foo").
	Version string
	// Suffix is the image suffix of variants such as "Foo_debug".
	Suffix string
}

// Dir returns the path of the .framework directory.
func (f *Framework) Dir() string {
	return path.Join(f.Location, f.ShortName+".framework")
}

// FrameworkInfo parses p as a framework binary path. It returns nil when p
// is not of the form Location/Name.framework/[Versions/V/]Name[_suffix].
func FrameworkInfo(p string) *Framework {
	parts := strings.Split(p, "/")
	n := len(parts)
	if n < 2 {
		return nil
	}
	base := parts[n-1]

	var bundle, version string
	var loc []string
	switch {
	case strings.HasSuffix(parts[n-2], ".framework"):
		bundle, loc = parts[n-2], parts[:n-2]
	case n >= 4 && parts[n-3] == "Versions" && strings.HasSuffix(parts[n-4], ".framework"):
		bundle, version, loc = parts[n-4], parts[n-2], parts[:n-4]
		if version == "" {
			return nil
		}
	default:
		return nil
	}

	short := strings.TrimSuffix(bundle, ".framework")
	if !validFrameworkName(short) {
		return nil
	}
	var suffix string
	if base != short {
		s, ok := strings.CutPrefix(base, short+"_")
		if !ok || s == "" || strings.Contains(s, "_") {
			return nil
		}
		suffix = s
	}

	name := bundle + "/"
	if version != "" {
		name += "Versions/" + version + "/"
	}
	return &Framework{
		Location:  strings.Join(loc, "/"),
		Name:      name + base,
		ShortName: short,
		Version:   version,
		Suffix:    suffix,
	}
}

func validFrameworkName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
