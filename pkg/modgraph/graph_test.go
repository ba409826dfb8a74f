package modgraph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustNode(t *testing.T, g *Graph, id string, kind Kind, path string) *Node {
	t.Helper()
	n, _, err := g.AddNode(Node{ID: id, Kind: kind, Path: path})
	if err != nil {
		t.Fatalf("AddNode(%q): %v", id, err)
	}
	return n
}

func mustEdge(t *testing.T, g *Graph, from, to string, info EdgeInfo) {
	t.Helper()
	if err := g.AddEdge(from, to, info); err != nil {
		t.Fatalf("AddEdge(%q, %q): %v", from, to, err)
	}
}

func TestAddNodeReturnsExisting(t *testing.T) {
	g := New()
	first, created, err := g.AddNode(Node{ID: "json", Kind: Package, Path: "/lib/json/__init__.py"})
	if err != nil || !created {
		t.Fatalf("AddNode() = %v, %v, want created", created, err)
	}

	second, created, err := g.AddNode(Node{ID: "json", Kind: Missing})
	if err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if created {
		t.Error("AddNode() created a duplicate node")
	}
	if second != first {
		t.Error("AddNode() did not return the existing node")
	}
	if second.Kind != Package {
		t.Errorf("Kind = %v, want %v", second.Kind, Package)
	}
	if g.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, want 1", g.NodeCount())
	}
}

func TestAddNodeEmptyID(t *testing.T) {
	g := New()
	if _, _, err := g.AddNode(Node{}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("AddNode() error = %v, want %v", err, ErrInvalidNodeID)
	}
}

func TestAddEdge(t *testing.T) {
	g := New()
	mustNode(t, g, "a", SourceModule, "/a.py")
	mustNode(t, g, "b", Missing, "")

	if err := g.AddEdge("a", "zzz", EdgeInfo{}); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("AddEdge() to unknown error = %v, want %v", err, ErrUnknownNode)
	}

	mustEdge(t, g, "a", "b", EdgeInfo{})
	mustEdge(t, g, "a", "b", EdgeInfo{})
	mustEdge(t, g, "a", "b", EdgeInfo{Conditional: true, Function: true})

	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount() = %d, want 2", g.EdgeCount())
	}
	want := []EdgeInfo{{}, {Conditional: true, Function: true}}
	if diff := cmp.Diff(want, g.EdgeInfos("a", "b")); diff != "" {
		t.Errorf("EdgeInfos() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b"}, g.Imports("a")); diff != "" {
		t.Errorf("Imports() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, g.Referrers("b")); diff != "" {
		t.Errorf("Referrers() mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten(t *testing.T) {
	g := New()
	mustNode(t, g, "__main__", Script, "/app.py")
	mustNode(t, g, "a", SourceModule, "/a.py")
	mustNode(t, g, "b", SourceModule, "/b.py")
	mustNode(t, g, "c", SourceModule, "/c.py")
	mustNode(t, g, "unreachable", SourceModule, "/u.py")
	_ = g.AddRoot("__main__")
	mustEdge(t, g, "__main__", "a", EdgeInfo{})
	mustEdge(t, g, "__main__", "b", EdgeInfo{})
	mustEdge(t, g, "a", "c", EdgeInfo{})
	mustEdge(t, g, "b", "c", EdgeInfo{})
	mustEdge(t, g, "c", "a", EdgeInfo{})

	var got []string
	for _, n := range g.Flatten() {
		got = append(got, n.ID)
	}
	want := []string{"__main__", "a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Flatten() mismatch (-want +got):\n%s", diff)
	}
}

func TestHideAndRemove(t *testing.T) {
	g := New()
	mustNode(t, g, "a", SourceModule, "/a.py")
	mustNode(t, g, "b", SourceModule, "/b.py")
	mustNode(t, g, "c", SourceModule, "/c.py")
	mustEdge(t, g, "a", "b", EdgeInfo{})
	mustEdge(t, g, "b", "c", EdgeInfo{})

	g.Hide("b")
	if !g.IsHidden("b") {
		t.Error("IsHidden(b) = false after Hide")
	}
	if len(g.Imports("a")) != 0 {
		t.Errorf("Imports(a) = %v, want none", g.Imports("a"))
	}
	if _, ok := g.Find("b"); ok {
		t.Error("Find(b) found a hidden node")
	}
	if _, ok := g.Node("b"); !ok {
		t.Error("Node(b) lost a hidden node")
	}
	if g.NodeCount() != 2 {
		t.Errorf("NodeCount() = %d, want 2", g.NodeCount())
	}

	g.RemoveNode("c")
	if _, ok := g.Node("c"); ok {
		t.Error("Node(c) still present after RemoveNode")
	}
	if infos := g.EdgeInfos("b", "c"); infos != nil {
		t.Errorf("EdgeInfos(b, c) = %v after RemoveNode", infos)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Script, "Script"},
		{CompiledExtension, "CompiledExtension"},
		{InvalidRelativeImport, "InvalidRelativeImport"},
		{Kind(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
		if tt.want == "Unknown" {
			continue
		}
		if k, ok := ParseKind(tt.want); !ok || k != tt.kind {
			t.Errorf("ParseKind(%q) = %v, %v", tt.want, k, ok)
		}
	}
}
