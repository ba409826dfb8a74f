package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/matzehuels/macpack/pkg/modgraph"
)

// Format names accepted by [Write].
const (
	FormatJSON = "json"
	FormatDOT  = "dot"
	FormatSVG  = "svg"
)

// Formats lists the supported formats.
var Formats = []string{FormatJSON, FormatDOT, FormatSVG}

// ValidateFormat checks that format is supported.
func ValidateFormat(format string) error {
	if !slices.Contains(Formats, format) {
		return fmt.Errorf("invalid graph format: %q (must be one of: %s)", format, strings.Join(Formats, ", "))
	}
	return nil
}

// Write encodes g in the given format.
func Write(ctx context.Context, g *modgraph.Graph, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return WriteJSON(g, w)
	case FormatDOT:
		_, err := io.WriteString(w, ToDOT(g, DOTOptions{}))
		return err
	case FormatSVG:
		svg, err := RenderSVG(ctx, ToDOT(g, DOTOptions{}))
		if err != nil {
			return err
		}
		_, err = w.Write(svg)
		return err
	}
	return ValidateFormat(format)
}

// Export writes g to path in the given format.
func Export(ctx context.Context, g *modgraph.Graph, format, path string) error {
	if err := ValidateFormat(format); err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error { return Write(ctx, g, format, w) })
}

// XrefEntry describes one module in a cross reference.
type XrefEntry struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Path      string   `json:"path,omitempty"`
	Imports   []string `json:"imports,omitempty"`
	Referrers []string `json:"referrers,omitempty"`
}

// Xref builds the cross reference of g, sorted by module name.
func Xref(g *modgraph.Graph) []XrefEntry {
	nodes := g.Nodes()
	out := make([]XrefEntry, 0, len(nodes))
	for _, n := range nodes {
		e := XrefEntry{ID: n.ID, Kind: n.Kind.String(), Path: n.Path}
		e.Imports = sortedCopy(g.Imports(n.ID))
		e.Referrers = sortedCopy(g.Referrers(n.ID))
		out = append(out, e)
	}
	return out
}

// WriteXref writes the cross reference of g as JSON.
func WriteXref(g *modgraph.Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Xref(g)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportXref writes the cross reference of g to path.
func ExportXref(g *modgraph.Graph, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteXref(g, w) })
}

func sortedCopy(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
