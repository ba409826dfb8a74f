// Package pysource extracts import statements from Python source files.
//
// Files are parsed with tree-sitter's Python grammar. Every import found is
// returned with the syntactic context it appears in, which decides how a
// missing import is reported later:
//
//   - Conditional: the statement sits below an if, try or match statement,
//     including their clauses; loop and with bodies do not count
//   - Function: the statement sits inside a def or lambda body
//   - FromImport: the statement has the "from X import Y" form
//
// The scanner also collects the names bound at module level, so the graph
// builder can tell "from pkg import attr" apart from "from pkg import submodule".
//
// A file that does not parse is reported through [Result.SyntaxError]; it is
// never an error of the scan itself.
package pysource
