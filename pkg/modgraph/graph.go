package modgraph

import (
	"errors"
	"maps"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrUnknownNode is returned by [Graph.AddEdge] and [Graph.AddRoot] when
	// a referenced node does not exist.
	ErrUnknownNode = errors.New("unknown node")
)

// Kind classifies what was found for a module name.
type Kind int

const (
	// Script is an entry-point script. Scripts are graph roots.
	Script Kind = iota
	// SourceModule is a single-file source module.
	SourceModule
	// Package is a directory with an __init__ module.
	Package
	// NamespacePackage is a directory without __init__ that holds modules.
	NamespacePackage
	// CompiledExtension is a native extension module (.so).
	CompiledExtension
	// BytecodeModule is a module found only as a valid .pyc file.
	BytecodeModule
	// Builtin is a module compiled into the interpreter; it has no file.
	Builtin
	// Excluded is a module named in the exclude list. It is recorded so
	// reachability is known, but its imports are never scanned.
	Excluded
	// Missing is a module name that could not be resolved.
	Missing
	// InvalidSource is a source file that failed to parse.
	InvalidSource
	// InvalidBytecode is a .pyc file with a corrupt header.
	InvalidBytecode
	// InvalidRelativeImport is a relative import that climbs above the
	// top-level package.
	InvalidRelativeImport
)

var kindNames = [...]string{
	Script:                "Script",
	SourceModule:          "SourceModule",
	Package:               "Package",
	NamespacePackage:      "NamespacePackage",
	CompiledExtension:     "CompiledExtension",
	BytecodeModule:        "BytecodeModule",
	Builtin:               "Builtin",
	Excluded:              "Excluded",
	Missing:               "Missing",
	InvalidSource:         "InvalidSource",
	InvalidBytecode:       "InvalidBytecode",
	InvalidRelativeImport: "InvalidRelativeImport",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// ParseKind returns the Kind with the given name.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// IsPackage reports whether modules of this kind can contain submodules.
func (k Kind) IsPackage() bool { return k == Package || k == NamespacePackage }

// HasCode reports whether the node carries Python code that goes into the
// module archive.
func (k Kind) HasCode() bool {
	switch k {
	case Script, SourceModule, Package, BytecodeModule:
		return true
	}
	return false
}

// IsProblem reports whether the kind is a data condition worth a warning.
func (k Kind) IsProblem() bool {
	switch k {
	case Missing, InvalidSource, InvalidBytecode, InvalidRelativeImport:
		return true
	}
	return false
}

// Metadata stores arbitrary key-value pairs attached to nodes, such as the
// recipe that forced a module in.
type Metadata map[string]any

// Node is one module in the graph.
//
// ID, Kind and Path are set once when the node is added and never change.
type Node struct {
	ID   string // Fully qualified dotted module name
	Kind Kind
	Path string // Resolved filesystem path; empty for Missing and Builtin

	// SearchPaths lists the directories searched for submodules of a package.
	SearchPaths []string
	// Globals holds the module-level names bound by the module source. It is
	// consulted to decide whether "from pkg import name" refers to a
	// submodule or to an attribute.
	Globals map[string]bool

	Meta Metadata // Never nil after AddNode
}

// HasGlobal reports whether name is bound at module level.
func (n *Node) HasGlobal(name string) bool { return n.Globals[name] }

// EdgeInfo describes the syntactic context of one import statement.
type EdgeInfo struct {
	Conditional bool // Import guarded by if/try/with/loop
	FromImport  bool // "from X import Y" rather than "import X"
	Function    bool // Import inside a function body
	Orphan      bool // Synthetic edge added by FilterStack
}

// Edge is a directed import relation between two modules.
type Edge struct {
	From string
	To   string
	Info EdgeInfo
}

type edgeKey struct{ from, to string }

// Graph is the module import graph.
//
// The zero value is not usable; create graphs with [New].
type Graph struct {
	nodes    map[string]*Node
	edges    []Edge
	infos    map[edgeKey][]EdgeInfo
	outgoing map[string][]string // unique targets, insertion order
	incoming map[string][]string // unique sources, insertion order
	hidden   map[string]bool
	roots    []string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		infos:    make(map[edgeKey][]EdgeInfo),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		hidden:   make(map[string]bool),
	}
}

// AddNode adds a node and returns it. If a node with the same ID already
// exists the existing node is returned unchanged and created is false.
func (g *Graph) AddNode(n Node) (node *Node, created bool, err error) {
	if n.ID == "" {
		return nil, false, ErrInvalidNodeID
	}
	if existing, ok := g.nodes[n.ID]; ok {
		return existing, false, nil
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	node = &n
	g.nodes[n.ID] = node
	return node, true, nil
}

// Node returns the node with the given ID, including hidden nodes.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Find returns the node with the given ID only if it is visible.
func (g *Graph) Find(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	if !ok || g.hidden[id] {
		return nil, false
	}
	return n, true
}

// AddEdge records an import of to by from. Recording the same (from, to,
// info) triple twice is a no-op, so edges with different attributes between
// the same pair coexist while re-walks never duplicate them.
func (g *Graph) AddEdge(from, to string, info EdgeInfo) error {
	if _, ok := g.nodes[from]; !ok {
		return ErrUnknownNode
	}
	if _, ok := g.nodes[to]; !ok {
		return ErrUnknownNode
	}
	key := edgeKey{from, to}
	existing := g.infos[key]
	if slices.Contains(existing, info) {
		return nil
	}
	if len(existing) == 0 {
		g.outgoing[from] = append(g.outgoing[from], to)
		g.incoming[to] = append(g.incoming[to], from)
	}
	g.infos[key] = append(existing, info)
	g.edges = append(g.edges, Edge{From: from, To: to, Info: info})
	return nil
}

// EdgeInfos returns the attributes of every edge from → to, in insertion
// order. Returns nil if the modules are not connected.
func (g *Graph) EdgeInfos(from, to string) []EdgeInfo {
	return slices.Clone(g.infos[edgeKey{from, to}])
}

// Imports returns the visible modules imported by id, in insertion order.
func (g *Graph) Imports(id string) []string {
	return g.visible(g.outgoing[id])
}

// Referrers returns the visible modules that import id, in insertion order.
func (g *Graph) Referrers(id string) []string {
	return g.visible(g.incoming[id])
}

func (g *Graph) visible(ids []string) []string {
	var out []string
	for _, id := range ids {
		if !g.hidden[id] {
			out = append(out, id)
		}
	}
	return out
}

// AddRoot marks an existing node as a graph root. Adding a root twice is a
// no-op.
func (g *Graph) AddRoot(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return ErrUnknownNode
	}
	if !slices.Contains(g.roots, id) {
		g.roots = append(g.roots, id)
	}
	return nil
}

// Roots returns the visible root IDs in the order they were added.
func (g *Graph) Roots() []string { return g.visible(g.roots) }

// Flatten returns every visible node reachable from the roots in
// breadth-first order. Traversal stops at hidden nodes.
func (g *Graph) Flatten() []*Node {
	seen := make(map[string]bool)
	var out []*Node
	queue := g.Roots()
	for _, id := range queue {
		seen[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, g.nodes[id])
		for _, child := range g.Imports(id) {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return out
}

// Nodes returns all visible nodes sorted by ID.
func (g *Graph) Nodes() []*Node {
	ids := slices.Sorted(maps.Keys(g.nodes))
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if !g.hidden[id] {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// NodesOfKind returns visible nodes of the given kinds sorted by ID.
func (g *Graph) NodesOfKind(kinds ...Kind) []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if slices.Contains(kinds, n.Kind) {
			out = append(out, n)
		}
	}
	return out
}

// Edges returns every edge between visible nodes in insertion order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, e := range g.edges {
		if !g.hidden[e.From] && !g.hidden[e.To] {
			out = append(out, e)
		}
	}
	return out
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	delete(g.nodes, id)
	delete(g.hidden, id)
	g.roots = slices.DeleteFunc(g.roots, func(s string) bool { return s == id })
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool { return e.From == id || e.To == id })

	for _, to := range g.outgoing[id] {
		delete(g.infos, edgeKey{id, to})
		g.incoming[to] = slices.DeleteFunc(g.incoming[to], func(s string) bool { return s == id })
	}
	for _, from := range g.incoming[id] {
		delete(g.infos, edgeKey{from, id})
		g.outgoing[from] = slices.DeleteFunc(g.outgoing[from], func(s string) bool { return s == id })
	}
	delete(g.outgoing, id)
	delete(g.incoming, id)
}

// Hide removes a node from every traversal while keeping its identity, so a
// later re-walk that reaches the same name does not resurrect it.
func (g *Graph) Hide(id string) {
	if _, ok := g.nodes[id]; ok {
		g.hidden[id] = true
	}
}

// IsHidden reports whether the node was hidden by a filter.
func (g *Graph) IsHidden(id string) bool { return g.hidden[id] }

// NodeCount returns the number of visible nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) - len(g.hidden) }

// EdgeCount returns the number of edges between visible nodes.
func (g *Graph) EdgeCount() int { return len(g.Edges()) }
