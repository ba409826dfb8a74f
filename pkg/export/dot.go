package export

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/macpack/pkg/modgraph"
)

// DOTOptions configures [ToDOT].
type DOTOptions struct {
	// Detailed adds the kind and file path to node labels.
	Detailed bool
	// Problems limits the output to problem nodes and their direct
	// referrers.
	Problems bool
}

// ToDOT converts g to Graphviz DOT.
//
// Scripts are drawn as double octagons, packages as folders and compiled
// extensions as 3D boxes. Missing and invalid modules are red, excluded and
// builtin modules grey. Conditional imports are dashed, imports inside
// functions dotted, and edges added by filtering grey. Only the first
// import between two modules is drawn.
func ToDOT(g *modgraph.Graph, opts DOTOptions) string {
	keep := func(string) bool { return true }
	if opts.Problems {
		keep = problemSet(g)
	}

	var buf bytes.Buffer
	buf.WriteString("digraph modules {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\", fontsize=12];\n")
	buf.WriteString("  edge [arrowsize=0.6];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		if !keep(n.ID) {
			continue
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(nodeAttrs(n, opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	drawn := make(map[[2]string]bool)
	for _, e := range g.Edges() {
		pair := [2]string{e.From, e.To}
		if !keep(e.From) || !keep(e.To) || drawn[pair] {
			continue
		}
		drawn[pair] = true
		if attrs := edgeAttrs(e.Info); len(attrs) > 0 {
			fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.From, e.To, strings.Join(attrs, ", "))
		} else {
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func problemSet(g *modgraph.Graph) func(string) bool {
	set := make(map[string]bool)
	for _, n := range g.Nodes() {
		if !n.Kind.IsProblem() {
			continue
		}
		set[n.ID] = true
		for _, ref := range g.Referrers(n.ID) {
			set[ref] = true
		}
	}
	return func(id string) bool { return set[id] }
}

func nodeAttrs(n *modgraph.Node, detailed bool) []string {
	label := n.ID
	if detailed {
		label += "\n" + n.Kind.String()
		if n.Path != "" {
			label += "\n" + n.Path
		}
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}

	switch n.Kind {
	case modgraph.Script:
		attrs = append(attrs, "shape=doubleoctagon")
	case modgraph.Package, modgraph.NamespacePackage:
		attrs = append(attrs, "shape=folder")
	case modgraph.CompiledExtension:
		attrs = append(attrs, "shape=box3d")
	}
	switch {
	case n.Kind.IsProblem():
		attrs = append(attrs, "fillcolor=\"#fde2e1\"", "color=\"#c0392b\"")
	case n.Kind == modgraph.Excluded || n.Kind == modgraph.Builtin:
		attrs = append(attrs, "fillcolor=lightgrey", "fontcolor=\"#555555\"")
	}
	if n.Kind == modgraph.NamespacePackage || n.Kind == modgraph.Excluded {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"")
	}
	return attrs
}

func edgeAttrs(info modgraph.EdgeInfo) []string {
	var attrs []string
	switch {
	case info.Function:
		attrs = append(attrs, "style=dotted")
	case info.Conditional:
		attrs = append(attrs, "style=dashed")
	}
	if info.Orphan {
		attrs = append(attrs, "color=grey")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the point-based size Graphviz emits with a
// viewBox-only root element so the SVG scales in a browser.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
