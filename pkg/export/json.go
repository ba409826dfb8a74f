package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/macpack/pkg/modgraph"
)

type graph struct {
	Roots []string `json:"roots,omitempty"`
	Nodes []node   `json:"nodes"`
	Edges []edge   `json:"edges"`
}

type node struct {
	ID   string            `json:"id"`
	Kind string            `json:"kind"`
	Path string            `json:"path,omitempty"`
	Meta modgraph.Metadata `json:"meta,omitempty"`
}

type edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Conditional bool   `json:"conditional,omitempty"`
	FromImport  bool   `json:"from_import,omitempty"`
	Function    bool   `json:"function,omitempty"`
	Orphan      bool   `json:"orphan,omitempty"`
}

// WriteJSON encodes g as JSON and writes it to w.
func WriteJSON(g *modgraph.Graph, w io.Writer) error {
	nodes := g.Nodes()
	edges := g.Edges()
	out := graph{
		Roots: g.Roots(),
		Nodes: make([]node, len(nodes)),
		Edges: make([]edge, len(edges)),
	}
	for i, n := range nodes {
		nd := node{ID: n.ID, Kind: n.Kind.String(), Path: n.Path}
		if len(n.Meta) > 0 {
			nd.Meta = n.Meta
		}
		out.Nodes[i] = nd
	}
	for i, e := range edges {
		out.Edges[i] = edge{
			From:        e.From,
			To:          e.To,
			Conditional: e.Info.Conditional,
			FromImport:  e.Info.FromImport,
			Function:    e.Info.Function,
			Orphan:      e.Info.Orphan,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON writes g to a JSON file at path.
func ExportJSON(g *modgraph.Graph, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteJSON(g, w) })
}

// ReadJSON decodes a graph written by [WriteJSON]. Unknown kinds and edges
// to unknown nodes are errors.
func ReadJSON(r io.Reader) (*modgraph.Graph, error) {
	var data graph
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	g := modgraph.New()
	for _, n := range data.Nodes {
		kind, ok := modgraph.ParseKind(n.Kind)
		if !ok {
			return nil, fmt.Errorf("node %s: unknown kind %q", n.ID, n.Kind)
		}
		nd, _, err := g.AddNode(modgraph.Node{ID: n.ID, Kind: kind, Path: n.Path})
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		for k, v := range n.Meta {
			nd.Meta[k] = v
		}
	}
	for _, e := range data.Edges {
		info := modgraph.EdgeInfo{
			Conditional: e.Conditional,
			FromImport:  e.FromImport,
			Function:    e.Function,
			Orphan:      e.Orphan,
		}
		if err := g.AddEdge(e.From, e.To, info); err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", e.From, e.To, err)
		}
	}
	for _, id := range data.Roots {
		if err := g.AddRoot(id); err != nil {
			return nil, fmt.Errorf("root %s: %w", id, err)
		}
	}
	return g, nil
}

// ImportJSON reads a graph from the JSON file at path.
func ImportJSON(path string) (*modgraph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSON(f)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return write(f)
}
