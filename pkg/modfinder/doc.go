// Package modfinder builds the module import graph of a Python application.
//
// A [Finder] starts from one or more entry-point scripts, scans their import
// statements and resolves every imported name against an ordered search
// path: the script directories first, then the configured roots, then the
// interpreter's sys.path. The first directory that provides a module wins.
//
// Per directory the candidates are tried in the interpreter's own order:
//
//  1. a package directory with an __init__ file
//  2. a compiled extension (every configured suffix), name.py, name.pyc
//  3. a directory without __init__, which becomes a namespace package only
//     if no directory on the whole path provides a regular module
//
// Names that cannot be resolved become [modgraph.Missing] nodes, unparsable
// sources [modgraph.InvalidSource] and corrupt bytecode
// [modgraph.InvalidBytecode]; the walk never stops for a single bad file.
//
// The finder is re-invokable: [Finder.FindNeeded] and [Finder.Import] reuse
// nodes that already exist, so asking for a module twice adds nothing.
package modfinder
