package modgraph

import (
	"cmp"
	"path/filepath"
	"slices"
	"strings"
)

// Filter is a predicate over a node. It returns true to keep the node.
// Filters must not mutate the graph.
type Filter func(n *Node) bool

// FilterStats reports the outcome of [Graph.FilterStack].
type FilterStats struct {
	Seen     int `json:"seen"`     // Nodes reachable from the roots before filtering
	Removed  int `json:"removed"`  // Nodes rejected by at least one filter
	Orphaned int `json:"orphaned"` // Orphan edges added to re-attach surviving nodes
}

// Remaining returns the number of reachable nodes that survived filtering.
func (s FilterStats) Remaining() int { return s.Seen - s.Removed }

// FilterStack applies filters to every node reachable from the roots.
//
// The walk is depth first and carries, for every path, the last node that
// passed all filters. A node rejected by any filter is hidden. When a hidden
// node imports a node that survives, an orphan edge from the last good
// ancestor to that node is added so the survivor stays reachable. Survivors
// whose last good ancestor is the virtual root become roots themselves.
//
// Filters are independent predicates: the set of hidden nodes does not
// depend on their order.
func (g *Graph) FilterStack(filters ...Filter) FilterStats {
	type frame struct {
		lastGood string // "" is the virtual root above all roots
		id       string
	}

	visited := make(map[string]bool)
	removed := make(map[string]bool)
	orphanSet := make(map[edgeKey]bool)

	var stack []frame
	for _, r := range g.Roots() {
		if !visited[r] {
			visited[r] = true
			stack = append(stack, frame{lastGood: "", id: r})
		}
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		lastGood := f.lastGood
		if keep(g.nodes[f.id], filters) {
			lastGood = f.id
		} else {
			removed[f.id] = true
		}

		for _, child := range g.Imports(f.id) {
			if lastGood != f.id {
				orphanSet[edgeKey{lastGood, child}] = true
			}
			if !visited[child] {
				visited[child] = true
				stack = append(stack, frame{lastGood: lastGood, id: child})
			}
		}
	}

	var orphans []edgeKey
	for k := range orphanSet {
		if !removed[k.to] {
			orphans = append(orphans, k)
		}
	}
	slices.SortFunc(orphans, func(a, b edgeKey) int {
		return cmp.Or(cmp.Compare(a.from, b.from), cmp.Compare(a.to, b.to))
	})

	for _, o := range orphans {
		if o.from == "" {
			_ = g.AddRoot(o.to)
			continue
		}
		_ = g.AddEdge(o.from, o.to, EdgeInfo{Orphan: true})
	}
	for id := range removed {
		g.Hide(id)
	}

	return FilterStats{
		Seen:     len(visited),
		Removed:  len(removed),
		Orphaned: len(orphans),
	}
}

func keep(n *Node, filters []Filter) bool {
	for _, f := range filters {
		if !f(n) {
			return false
		}
	}
	return true
}

// HasPathFilter keeps nodes that have a file on disk. Missing modules are
// kept so they still show up in the missing-imports report; builtin and
// excluded modules without a file are dropped.
func HasPathFilter(n *Node) bool {
	switch n.Kind {
	case Missing, InvalidRelativeImport:
		return true
	}
	return n.Path != ""
}

// NotStdlibFilter rejects modules that live under the interpreter prefix,
// except those installed in site-packages or site-python. It is used for
// semi-standalone builds that link against an existing interpreter.
func NotStdlibFilter(prefix string) Filter {
	root := realpath(prefix) + string(filepath.Separator)
	return func(n *Node) bool {
		if n.Path == "" {
			return true
		}
		rp := realpath(n.Path)
		rest, ok := strings.CutPrefix(rp, root)
		if !ok {
			return true
		}
		rest = "/" + filepath.ToSlash(rest)
		return strings.Contains(rest, "/site-packages/") || strings.Contains(rest, "/site-python/")
	}
}

// PrefixFilter rejects every module equal to one of the given names or
// nested below it.
func PrefixFilter(names ...string) Filter {
	return func(n *Node) bool {
		for _, name := range names {
			if n.ID == name || strings.HasPrefix(n.ID, name+".") {
				return false
			}
		}
		return true
	}
}

func realpath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	if rp, err := filepath.EvalSymlinks(abs); err == nil {
		return rp
	}
	// Resolve the deepest existing parent so paths that do not exist yet
	// compare equal to resolved prefixes.
	dir, base := filepath.Split(filepath.Clean(abs))
	dir = filepath.Clean(dir)
	if dir == abs || base == "" {
		return filepath.Clean(abs)
	}
	return filepath.Join(realpath(dir), base)
}
