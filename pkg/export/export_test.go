package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/macpack/pkg/modgraph"
)

func sampleGraph(t *testing.T) *modgraph.Graph {
	t.Helper()
	g := modgraph.New()
	nodes := []modgraph.Node{
		{ID: "/src/app.py", Kind: modgraph.Script, Path: "/src/app.py"},
		{ID: "json", Kind: modgraph.Package, Path: "/lib/json/__init__.py"},
		{ID: "_speedups", Kind: modgraph.CompiledExtension, Path: "/lib/_speedups.so"},
		{ID: "winreg", Kind: modgraph.Missing},
		{ID: "sys", Kind: modgraph.Builtin},
	}
	for _, n := range nodes {
		if _, _, err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	edges := []struct {
		from, to string
		info     modgraph.EdgeInfo
	}{
		{"/src/app.py", "json", modgraph.EdgeInfo{}},
		{"/src/app.py", "json", modgraph.EdgeInfo{FromImport: true}},
		{"/src/app.py", "winreg", modgraph.EdgeInfo{Conditional: true}},
		{"/src/app.py", "sys", modgraph.EdgeInfo{}},
		{"json", "_speedups", modgraph.EdgeInfo{Function: true}},
	}
	for _, e := range edges {
		if err := g.AddEdge(e.from, e.to, e.info); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.AddRoot("/src/app.py"); err != nil {
		t.Fatal(err)
	}
	n, _ := g.Node("json")
	n.Meta["recipe"] = "stdlib"
	return g
}

func TestJSONRoundTrip(t *testing.T) {
	g := sampleGraph(t)
	var buf bytes.Buffer
	if err := WriteJSON(g, &buf); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}

	if diff := cmp.Diff(g.Roots(), got.Roots()); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(g.Edges(), got.Edges()); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	n, ok := got.Node("json")
	if !ok || n.Kind != modgraph.Package || n.Path != "/lib/json/__init__.py" || n.Meta["recipe"] != "stdlib" {
		t.Errorf("json node = %+v", n)
	}
}

func TestReadJSONErrors(t *testing.T) {
	tests := map[string]string{
		"bad json":     `{`,
		"unknown kind": `{"nodes":[{"id":"a","kind":"Bogus"}],"edges":[]}`,
		"unknown edge": `{"nodes":[{"id":"a","kind":"SourceModule"}],"edges":[{"from":"a","to":"b"}]}`,
		"unknown root": `{"roots":["x"],"nodes":[],"edges":[]}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadJSON(strings.NewReader(input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExportImportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := ExportJSON(sampleGraph(t), path); err != nil {
		t.Fatal(err)
	}
	g, err := ImportJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if g.NodeCount() != 5 {
		t.Errorf("NodeCount() = %d, want 5", g.NodeCount())
	}
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(sampleGraph(t), DOTOptions{})
	for _, want := range []string{
		`"/src/app.py" [label="/src/app.py", shape=doubleoctagon];`,
		`"json" [label="json", shape=folder];`,
		`"_speedups" [label="_speedups", shape=box3d];`,
		`"winreg" [label="winreg", fillcolor="#fde2e1", color="#c0392b"];`,
		`"/src/app.py" -> "winreg" [style=dashed];`,
		`"json" -> "_speedups" [style=dotted];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
	if n := strings.Count(dot, `"/src/app.py" -> "json"`); n != 1 {
		t.Errorf("app -> json drawn %d times, want 1", n)
	}
}

func TestToDOTProblems(t *testing.T) {
	dot := ToDOT(sampleGraph(t), DOTOptions{Problems: true})
	if !strings.Contains(dot, `"/src/app.py" -> "winreg"`) {
		t.Errorf("problem edge missing:\n%s", dot)
	}
	if strings.Contains(dot, `"json"`) {
		t.Errorf("unrelated node present:\n%s", dot)
	}
}

func TestXref(t *testing.T) {
	got := Xref(sampleGraph(t))
	want := []XrefEntry{
		{ID: "/src/app.py", Kind: "Script", Path: "/src/app.py", Imports: []string{"json", "sys", "winreg"}},
		{ID: "_speedups", Kind: "CompiledExtension", Path: "/lib/_speedups.so", Referrers: []string{"json"}},
		{ID: "json", Kind: "Package", Path: "/lib/json/__init__.py", Imports: []string{"_speedups"}, Referrers: []string{"/src/app.py"}},
		{ID: "sys", Kind: "Builtin", Referrers: []string{"/src/app.py"}},
		{ID: "winreg", Kind: "Missing", Referrers: []string{"/src/app.py"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Xref mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFormats(t *testing.T) {
	g := sampleGraph(t)
	ctx := context.Background()
	for _, format := range []string{FormatJSON, FormatDOT} {
		var buf bytes.Buffer
		if err := Write(ctx, g, format, &buf); err != nil {
			t.Errorf("Write(%s) error: %v", format, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Write(%s) wrote nothing", format)
		}
	}
	if err := Write(ctx, g, "png", &bytes.Buffer{}); err == nil {
		t.Error("Write(png) should fail")
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(sampleGraph(t), DOTOptions{Detailed: true}))
	if err != nil {
		t.Fatalf("RenderSVG() error: %v", err)
	}
	if !bytes.Contains(svg, []byte("<svg")) || !bytes.Contains(svg, []byte("winreg")) {
		t.Errorf("unexpected SVG output: %.200s", svg)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="100pt" height="50pt" viewBox="0.00 0.00 100.00 50.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100.00 50.00" width="100" height="50"><g/></svg>`
	if got != want {
		t.Errorf("normalizeViewBox() = %s, want %s", got, want)
	}
}
