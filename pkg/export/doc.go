// Package export writes the module graph in formats meant for people and
// other tools.
//
// # JSON
//
// The JSON format has three top-level arrays:
//
//	{
//	  "roots": ["/src/app.py"],
//	  "nodes": [
//	    {"id": "/src/app.py", "kind": "Script", "path": "/src/app.py"},
//	    {"id": "json", "kind": "Package", "path": "/lib/python3.12/json/__init__.py"}
//	  ],
//	  "edges": [
//	    {"from": "/src/app.py", "to": "json"}
//	  ]
//	}
//
// Edges carry the import context as optional booleans: conditional,
// from_import, function and orphan. [ReadJSON] restores a graph from this
// format, so a graph can be exported by one build and inspected later.
//
// # DOT and SVG
//
// [ToDOT] produces a Graphviz digraph where the node shape and color
// reflect the module kind and the edge style reflects the import context.
// [RenderSVG] renders DOT in process with go-graphviz; no Graphviz install
// is needed.
//
// # Cross reference
//
// [WriteXref] lists, per module, its kind, file, imports and referrers.
// It is the machine-readable counterpart of the missing-imports report.
//
// Only visible nodes are exported; nodes hidden by a filter are left out
// together with their edges.
package export
