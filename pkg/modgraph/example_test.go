package modgraph_test

import (
	"fmt"

	"github.com/matzehuels/macpack/pkg/modgraph"
)

func ExampleGraph_FilterStack() {
	g := modgraph.New()
	_, _, _ = g.AddNode(modgraph.Node{ID: "__main__", Kind: modgraph.Script, Path: "/src/app.py"})
	_, _, _ = g.AddNode(modgraph.Node{ID: "sys", Kind: modgraph.Builtin})
	_, _, _ = g.AddNode(modgraph.Node{ID: "tests", Kind: modgraph.Package, Path: "/src/tests/__init__.py"})
	_, _, _ = g.AddNode(modgraph.Node{ID: "helpers", Kind: modgraph.SourceModule, Path: "/src/helpers.py"})
	_ = g.AddRoot("__main__")
	_ = g.AddEdge("__main__", "sys", modgraph.EdgeInfo{})
	_ = g.AddEdge("__main__", "tests", modgraph.EdgeInfo{Conditional: true})
	_ = g.AddEdge("tests", "helpers", modgraph.EdgeInfo{})

	stats := g.FilterStack(modgraph.HasPathFilter, modgraph.PrefixFilter("tests"))

	fmt.Println("seen:", stats.Seen)
	fmt.Println("removed:", stats.Removed)
	fmt.Println("orphaned:", stats.Orphaned)
	fmt.Println("remaining:", stats.Remaining())
	fmt.Println("imports of __main__:", g.Imports("__main__"))
	// Output:
	// seen: 4
	// removed: 2
	// orphaned: 1
	// remaining: 2
	// imports of __main__: [helpers]
}

func ExampleBuildMissingReport() {
	g := modgraph.New()
	_, _, _ = g.AddNode(modgraph.Node{ID: "app", Kind: modgraph.SourceModule, Path: "/src/app.py"})
	_, _, _ = g.AddNode(modgraph.Node{ID: "winreg", Kind: modgraph.Missing})
	_, _, _ = g.AddNode(modgraph.Node{ID: "yaml", Kind: modgraph.Missing})
	_ = g.AddEdge("app", "winreg", modgraph.EdgeInfo{Conditional: true})
	_ = g.AddEdge("app", "yaml", modgraph.EdgeInfo{})

	r := modgraph.BuildMissingReport(g, nil)
	fmt.Println("unconditional:", modgraph.Names(r.Unconditional))
	fmt.Println("conditional:", modgraph.Names(r.Conditional))
	// Output:
	// unconditional: [yaml]
	// conditional: [winreg]
}
