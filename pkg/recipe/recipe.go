package recipe

import (
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/pyenv"
)

// Check inspects the graph and returns a correction, or nil when the
// pattern it looks for is not present. Checks must not mutate the graph.
type Check func(ctx *Context, g *modgraph.Graph) *Result

// Context is what a check may consult besides the graph.
type Context struct {
	Env                *pyenv.Env
	QtPlugins          []string
	MatplotlibBackends []string
	SemiStandalone     bool
	Logger             *log.Logger

	// IsPackage reports whether a dotted name is a package on the search
	// path. [Engine.Apply] fills it in from the finder when nil.
	IsPackage func(name string) bool
}

func (c *Context) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(io.Discard)
	}
	return c.Logger
}

// Prescript is Python source that runs in the bundle before the main script.
type Prescript struct {
	Name   string
	Source []byte
}

// File is a file or directory copied into the bundle. Dest is relative to
// the destination root (Resources for resources, the library directory for
// loader files) and names the copy itself, not its parent directory. When
// Data is set the file is written from memory and Source is ignored.
type File struct {
	Source string
	Dest   string
	Data   []byte
}

// Result is the correction returned by a matching check. Results from
// several recipes are merged into one accumulated Result.
type Result struct {
	Includes               []string
	Packages               []string
	Filters                []modgraph.Filter
	Prescripts             []Prescript
	Resources              []File
	LoaderFiles            []File
	Frameworks             []string
	ExpectedMissingImports []string
}

// Merge appends other to r. Name lists keep their first occurrence;
// filters, prescripts and files are appended in order.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Includes = appendUnique(r.Includes, other.Includes...)
	r.Packages = appendUnique(r.Packages, other.Packages...)
	r.Frameworks = appendUnique(r.Frameworks, other.Frameworks...)
	r.ExpectedMissingImports = appendUnique(r.ExpectedMissingImports, other.ExpectedMissingImports...)
	r.Filters = append(r.Filters, other.Filters...)
	r.Prescripts = append(r.Prescripts, other.Prescripts...)
	r.Resources = append(r.Resources, other.Resources...)
	r.LoaderFiles = append(r.LoaderFiles, other.LoaderFiles...)
}

// Empty reports whether the result asks for nothing.
func (r *Result) Empty() bool {
	return len(r.Includes) == 0 && len(r.Packages) == 0 && len(r.Filters) == 0 &&
		len(r.Prescripts) == 0 && len(r.Resources) == 0 && len(r.LoaderFiles) == 0 &&
		len(r.Frameworks) == 0 && len(r.ExpectedMissingImports) == 0
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}
