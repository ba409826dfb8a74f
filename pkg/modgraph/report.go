package modgraph

import (
	"maps"
	"slices"
	"strings"
)

// Bucket is the category of a missing import in the report.
type Bucket int

const (
	// Unconditional imports happen at module scope outside any guard.
	Unconditional Bucket = iota
	// FromImport is an unguarded "from pkg import name" where name is
	// neither a submodule nor a global of pkg.
	FromImport
	// FromImportConditional is a from-import inside a guard or a function.
	FromImportConditional
	// Conditional is a plain import inside a guard or a function.
	Conditional
)

func (b Bucket) String() string {
	switch b {
	case Unconditional:
		return "unconditional"
	case FromImport:
		return "fromimport"
	case FromImportConditional:
		return "fromimport-conditional"
	case Conditional:
		return "conditional"
	}
	return "unknown"
}

// Classify returns the report bucket for a single edge.
func Classify(info EdgeInfo) Bucket {
	guarded := info.Conditional || info.Function
	switch {
	case guarded && info.FromImport:
		return FromImportConditional
	case guarded:
		return Conditional
	case info.FromImport:
		return FromImport
	}
	return Unconditional
}

// MissingReport partitions unresolved modules by how they are imported.
// Each bucket maps a module name to the sorted names of its referrers.
type MissingReport struct {
	Unconditional         map[string][]string `json:"unconditional,omitempty"`
	FromImport            map[string][]string `json:"fromimport,omitempty"`
	FromImportConditional map[string][]string `json:"fromimport_conditional,omitempty"`
	Conditional           map[string][]string `json:"conditional,omitempty"`

	SyntaxErrors           []string            `json:"syntax_errors,omitempty"`
	InvalidBytecode        []string            `json:"invalid_bytecode,omitempty"`
	InvalidRelativeImports map[string][]string `json:"invalid_relative_imports,omitempty"`
}

// Bucket returns the map for the given bucket.
func (r *MissingReport) Bucket(b Bucket) map[string][]string {
	switch b {
	case Unconditional:
		return r.Unconditional
	case FromImport:
		return r.FromImport
	case FromImportConditional:
		return r.FromImportConditional
	case Conditional:
		return r.Conditional
	}
	return nil
}

// Empty reports whether the report has nothing to show.
func (r *MissingReport) Empty() bool {
	return len(r.Unconditional) == 0 && len(r.FromImport) == 0 &&
		len(r.FromImportConditional) == 0 && len(r.Conditional) == 0 &&
		len(r.SyntaxErrors) == 0 && len(r.InvalidBytecode) == 0 &&
		len(r.InvalidRelativeImports) == 0
}

// Count returns the number of distinct missing modules across all buckets.
func (r *MissingReport) Count() int {
	return len(r.Unconditional) + len(r.FromImport) + len(r.FromImportConditional) + len(r.Conditional)
}

// BuildMissingReport collects the visible problem nodes of g.
//
// A missing module is filed under the strongest bucket of any edge that
// references it: unconditional, then fromimport, then fromimport-conditional,
// then conditional. Orphan edges are ignored. Modules in expected, and every
// module nested below an expected name, are left out, as is __main__.
// Missing roots (forced includes) are always unconditional.
func BuildMissingReport(g *Graph, expected []string) *MissingReport {
	exp := make(map[string]bool, len(expected))
	for _, e := range expected {
		exp[e] = true
	}

	r := &MissingReport{
		Unconditional:          map[string][]string{},
		FromImport:             map[string][]string{},
		FromImportConditional:  map[string][]string{},
		Conditional:            map[string][]string{},
		InvalidRelativeImports: map[string][]string{},
	}

	roots := make(map[string]bool)
	for _, id := range g.Roots() {
		roots[id] = true
	}

	for _, n := range g.Nodes() {
		switch n.Kind {
		case InvalidSource:
			r.SyntaxErrors = append(r.SyntaxErrors, n.ID)
		case InvalidBytecode:
			r.InvalidBytecode = append(r.InvalidBytecode, n.ID)
		case InvalidRelativeImport:
			r.InvalidRelativeImports[n.ID] = g.Referrers(n.ID)
		case Missing:
			if n.ID == "__main__" || IsExpected(n.ID, exp) {
				continue
			}
			if roots[n.ID] {
				// Forced includes that could not be found.
				refs := g.Referrers(n.ID)
				if refs == nil {
					refs = []string{}
				}
				r.Unconditional[n.ID] = refs
				continue
			}
			for _, ref := range g.Referrers(n.ID) {
				b, ok := strongest(g.EdgeInfos(ref, n.ID))
				if !ok {
					continue
				}
				m := r.Bucket(b)
				m[n.ID] = append(m[n.ID], ref)
			}
		}
	}

	for _, m := range []map[string][]string{
		r.Unconditional, r.FromImport, r.FromImportConditional,
		r.Conditional, r.InvalidRelativeImports,
	} {
		for k := range m {
			slices.Sort(m[k])
		}
	}
	return r
}

func strongest(infos []EdgeInfo) (Bucket, bool) {
	best, found := Conditional, false
	for _, info := range infos {
		if info.Orphan {
			continue
		}
		if b := Classify(info); !found || b < best {
			best, found = b, true
		}
	}
	return best, found
}

// IsExpected reports whether name or any of its dotted parents is in the
// expected set.
func IsExpected(name string, expected map[string]bool) bool {
	for {
		if expected[name] {
			return true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return false
		}
		name = name[:i]
	}
}

// Names returns the sorted keys of a bucket.
func Names(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}
