// Package modgraph provides the Python module import graph that macpack
// builds, filters and reports on.
//
// # Overview
//
// Every node is a module keyed by its fully qualified dotted name ("os.path",
// "PySide6.QtCore"). A node carries a [Kind] that says what was found for the
// name: a source module, a package, a compiled extension, or one of the data
// conditions [Missing], [InvalidSource] and [InvalidBytecode]. Resolution
// failures are never errors; they are nodes.
//
// Edges record one import statement each, annotated with [EdgeInfo]: whether
// the import was guarded (if/try/with/loop), whether it was a from-import, and
// whether it happened inside a function body. Two modules may be connected by
// several edges with different attributes.
//
// # Basic Usage
//
//	g := modgraph.New()
//	g.AddNode(modgraph.Node{ID: "__main__", Kind: modgraph.Script, Path: "app.py"})
//	g.AddRoot("__main__")
//	g.AddNode(modgraph.Node{ID: "json", Kind: modgraph.Package, Path: ".../json/__init__.py"})
//	g.AddEdge("__main__", "json", modgraph.EdgeInfo{})
//
// [Graph.AddNode] returns the existing node when the ID is already present,
// which is what makes re-walking the graph idempotent.
//
// # Filtering
//
// [Graph.FilterStack] hides every node rejected by one of the [Filter]
// predicates. Nodes that were only reachable through a hidden node are not
// lost: they are re-attached to their closest surviving ancestor with an
// orphan edge. See [FilterStats] for the returned counts.
//
// # Reporting
//
// [BuildMissingReport] partitions missing modules by the attributes of the
// edges that reference them, the way the build summary prints them.
//
// # Concurrency
//
// Graph is not safe for concurrent use. The build pipeline mutates it from a
// single goroutine only.
package modgraph
