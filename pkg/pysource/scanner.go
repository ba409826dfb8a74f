package pysource

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Import is one imported module reference.
//
// For "import a.b" Module is "a.b" and Names is empty. For
// "from ..pkg import x, y" Module is "pkg", Level is 2 and Names holds x and
// y. For "from . import x" Module is empty.
type Import struct {
	Module      string   `json:"module,omitempty"`
	Level       int      `json:"level,omitempty"`
	Names       []string `json:"names,omitempty"`
	Star        bool     `json:"star,omitempty"`
	FromImport  bool     `json:"from_import,omitempty"`
	Conditional bool     `json:"conditional,omitempty"`
	Function    bool     `json:"function,omitempty"`
	Line        int      `json:"line"`
}

// Result is the outcome of scanning one file.
type Result struct {
	Imports     []Import `json:"imports,omitempty"`
	GlobalNames []string `json:"globals,omitempty"`
	SyntaxError bool     `json:"syntax_error,omitempty"`
	// ErrorLine is the first line with a parse error (1-based).
	ErrorLine int `json:"error_line,omitempty"`
}

// Scanner extracts imports from source code.
type Scanner interface {
	Scan(ctx context.Context, src []byte) (*Result, error)
}

// Grammar identifies the parser used by [TreeSitterScanner]; it is part of
// scan cache keys.
const Grammar = "tree-sitter-python"

// TreeSitterScanner parses Python source with tree-sitter. It is safe for
// concurrent use; every call creates its own parser.
type TreeSitterScanner struct{}

// NewScanner returns a tree-sitter backed scanner.
func NewScanner() *TreeSitterScanner { return &TreeSitterScanner{} }

// Scan parses src and returns its imports and module-level names.
func (s *TreeSitterScanner) Scan(ctx context.Context, src []byte) (*Result, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse python source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return &Result{SyntaxError: true, ErrorLine: firstErrorLine(root)}, nil
	}

	w := &walker{src: src, globals: make(map[string]bool)}
	w.walk(root, scope{})

	return &Result{
		Imports:     w.imports,
		GlobalNames: slices.Sorted(maps.Keys(w.globals)),
	}, nil
}

// scope is the syntactic context of a node.
type scope struct {
	conditional bool
	function    bool
	class       bool
}

type walker struct {
	src     []byte
	imports []Import
	globals map[string]bool
}

func (w *walker) walk(n *sitter.Node, sc scope) {
	switch n.Type() {
	case "import_statement":
		w.importStatement(n, sc)
		return
	case "import_from_statement":
		w.fromStatement(n, sc)
		return
	case "future_import_statement":
		w.futureStatement(n, sc)
		return
	case "function_definition":
		w.bind(n.ChildByFieldName("name"), sc)
		sc.function = true
	case "lambda":
		sc.function = true
	case "class_definition":
		w.bind(n.ChildByFieldName("name"), sc)
		sc.class = true
	case "if_statement", "try_statement", "match_statement":
		// Clauses are children of the statement and inherit the flag.
		// Loop and with bodies run unconditionally.
		sc.conditional = true
	case "for_statement":
		w.bindTargets(n.ChildByFieldName("left"), sc)
	case "assignment", "augmented_assignment":
		w.bindTargets(n.ChildByFieldName("left"), sc)
	case "global_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "identifier" {
				w.globals[c.Content(w.src)] = true
			}
		}
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), sc)
	}
}

func (w *walker) moduleLevel(sc scope) bool { return !sc.function && !sc.class }

func (w *walker) bind(n *sitter.Node, sc scope) {
	if n == nil || !w.moduleLevel(sc) {
		return
	}
	if n.Type() == "identifier" {
		w.globals[n.Content(w.src)] = true
	}
}

// bindTargets records every identifier on the left side of an assignment.
// Attribute and subscript targets bind nothing.
func (w *walker) bindTargets(n *sitter.Node, sc scope) {
	if n == nil || !w.moduleLevel(sc) {
		return
	}
	switch n.Type() {
	case "identifier":
		w.globals[n.Content(w.src)] = true
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list", "tuple", "list", "list_splat_pattern", "parenthesized_expression":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.bindTargets(n.NamedChild(i), sc)
		}
	}
}

func (w *walker) line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func (w *walker) importStatement(n *sitter.Node, sc scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		var name, alias string
		switch c.Type() {
		case "dotted_name":
			name = dotted(c, w.src)
		case "aliased_import":
			name = dotted(c.ChildByFieldName("name"), w.src)
			if a := c.ChildByFieldName("alias"); a != nil {
				alias = a.Content(w.src)
			}
		default:
			continue
		}
		if name == "" {
			continue
		}
		w.imports = append(w.imports, Import{
			Module:      name,
			Conditional: sc.conditional,
			Function:    sc.function,
			Line:        w.line(n),
		})
		if w.moduleLevel(sc) {
			if alias != "" {
				w.globals[alias] = true
			} else {
				w.globals[strings.SplitN(name, ".", 2)[0]] = true
			}
		}
	}
}

func (w *walker) fromStatement(n *sitter.Node, sc scope) {
	imp := Import{
		FromImport:  true,
		Conditional: sc.conditional,
		Function:    sc.function,
		Line:        w.line(n),
	}

	moduleSeen := false
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "comment":
			continue
		case "wildcard_import":
			imp.Star = true
			continue
		}
		if !moduleSeen {
			moduleSeen = true
			if c.Type() == "relative_import" {
				imp.Level, imp.Module = relative(c, w.src)
			} else {
				imp.Module = dotted(c, w.src)
			}
			continue
		}

		var name, alias string
		switch c.Type() {
		case "dotted_name", "identifier":
			name = dotted(c, w.src)
		case "aliased_import":
			name = dotted(c.ChildByFieldName("name"), w.src)
			if a := c.ChildByFieldName("alias"); a != nil {
				alias = a.Content(w.src)
			}
		default:
			continue
		}
		if name == "" {
			continue
		}
		imp.Names = append(imp.Names, name)
		if w.moduleLevel(sc) {
			if alias != "" {
				w.globals[alias] = true
			} else {
				w.globals[name] = true
			}
		}
	}

	if imp.Module == "" && imp.Level == 0 {
		return
	}
	w.imports = append(w.imports, imp)
}

// futureStatement records "from __future__ import x". The module exists in
// every interpreter but still belongs in the archive.
func (w *walker) futureStatement(n *sitter.Node, sc scope) {
	imp := Import{
		Module:      "__future__",
		FromImport:  true,
		Conditional: sc.conditional,
		Function:    sc.function,
		Line:        w.line(n),
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name", "identifier":
			imp.Names = append(imp.Names, dotted(c, w.src))
		case "aliased_import":
			imp.Names = append(imp.Names, dotted(c.ChildByFieldName("name"), w.src))
		}
	}
	w.imports = append(w.imports, imp)
}

// dotted returns the dotted name of a dotted_name node without whitespace
// or comments between its parts.
func dotted(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	if n.Type() != "dotted_name" {
		return n.Content(src)
	}
	parts := make([]string, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "identifier" {
			parts = append(parts, c.Content(src))
		}
	}
	return strings.Join(parts, ".")
}

// relative splits a relative_import node into its level and module.
func relative(n *sitter.Node, src []byte) (int, string) {
	level, module := 0, ""
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "import_prefix":
			level = strings.Count(c.Content(src), ".")
		case "dotted_name":
			module = dotted(c, src)
		}
	}
	return level, module
}

func firstErrorLine(n *sitter.Node) int {
	if n.Type() == "ERROR" || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.HasError() || c.IsMissing() {
			return firstErrorLine(c)
		}
	}
	return int(n.StartPoint().Row) + 1
}
