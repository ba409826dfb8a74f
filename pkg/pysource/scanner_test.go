package pysource

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func scan(t *testing.T, src string) *Result {
	t.Helper()
	res, err := NewScanner().Scan(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return res
}

func TestScanImports(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Import
	}{
		{
			name: "plain",
			src:  "import os\nimport a.b as c, sys\n",
			want: []Import{
				{Module: "os", Line: 1},
				{Module: "a.b", Line: 2},
				{Module: "sys", Line: 2},
			},
		},
		{
			name: "from",
			src:  "from xml.etree import ElementTree, cElementTree as CET\n",
			want: []Import{
				{Module: "xml.etree", Names: []string{"ElementTree", "cElementTree"}, FromImport: true, Line: 1},
			},
		},
		{
			name: "relative",
			src:  "from ..util import helper\nfrom . import sibling\n",
			want: []Import{
				{Module: "util", Level: 2, Names: []string{"helper"}, FromImport: true, Line: 1},
				{Level: 1, Names: []string{"sibling"}, FromImport: true, Line: 2},
			},
		},
		{
			name: "star",
			src:  "from tkinter import *\n",
			want: []Import{
				{Module: "tkinter", Star: true, FromImport: true, Line: 1},
			},
		},
		{
			name: "parenthesized",
			src:  "from pkg import (\n    one,\n    two,\n)\n",
			want: []Import{
				{Module: "pkg", Names: []string{"one", "two"}, FromImport: true, Line: 1},
			},
		},
		{
			name: "future",
			src:  "from __future__ import annotations\n",
			want: []Import{
				{Module: "__future__", Names: []string{"annotations"}, FromImport: true, Line: 1},
			},
		},
		{
			name: "try except",
			src:  "try:\n    import json\nexcept ImportError:\n    import simplejson as json\n",
			want: []Import{
				{Module: "json", Conditional: true, Line: 2},
				{Module: "simplejson", Conditional: true, Line: 4},
			},
		},
		{
			name: "guarded in function",
			src:  "def load():\n    if FAST:\n        import B\n",
			want: []Import{
				{Module: "B", Conditional: true, Function: true, Line: 3},
			},
		},
		{
			name: "loops and with are unconditional",
			src:  "for x in y:\n    import a\nwhile True:\n    import b\nwith ctx:\n    import c\n",
			want: []Import{
				{Module: "a", Line: 2},
				{Module: "b", Line: 4},
				{Module: "c", Line: 6},
			},
		},
		{
			name: "if else",
			src:  "if a:\n    pass\nelif b:\n    import x\nelse:\n    import y\n",
			want: []Import{
				{Module: "x", Conditional: true, Line: 4},
				{Module: "y", Conditional: true, Line: 6},
			},
		},
		{
			name: "function only",
			src:  "def load():\n    from lazy import thing\n    return thing\n",
			want: []Import{
				{Module: "lazy", Names: []string{"thing"}, FromImport: true, Function: true, Line: 2},
			},
		},
		{
			name: "method",
			src:  "class K:\n    def m(self):\n        import inner\n",
			want: []Import{
				{Module: "inner", Function: true, Line: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := scan(t, tt.src)
			if res.SyntaxError {
				t.Fatalf("unexpected syntax error at line %d", res.ErrorLine)
			}
			if diff := cmp.Diff(tt.want, res.Imports, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Imports mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanGlobals(t *testing.T) {
	src := `import os.path
import numpy as np
from . import sibling
from pkg import attr as renamed
X = 1
a, b = 1, 2
counter += 1
obj.attr = 3

class Widget:
    inner = 1

def helper():
    local = 2
    global STATE
    STATE = local

if DEBUG:
    flag = True

for item in range(3):
    pass
`
	res := scan(t, src)
	want := []string{"STATE", "Widget", "X", "a", "b", "counter", "flag", "helper", "item", "np", "os", "renamed", "sibling"}
	if diff := cmp.Diff(want, res.GlobalNames); diff != "" {
		t.Errorf("GlobalNames mismatch (-want +got):\n%s", diff)
	}
}

func TestScanSyntaxError(t *testing.T) {
	res := scan(t, "import os\ndef broken(:\n    pass\n")
	if !res.SyntaxError {
		t.Fatal("SyntaxError = false, want true")
	}
	if len(res.Imports) != 0 {
		t.Errorf("Imports = %v, want none for an unparsable file", res.Imports)
	}
	if res.ErrorLine != 2 {
		t.Errorf("ErrorLine = %d, want 2", res.ErrorLine)
	}
}
