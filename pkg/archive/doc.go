// Package archive writes the Python half of a bundle: the module archive,
// the compiled extension tree and copied resources.
//
// The archive is a zip file that the bundled interpreter imports from.
// [Writer.WriteArchive] compiles every module with a [Compiler], adds
// package data files and writes members in sorted order with a fixed
// timestamp, so two builds of the same input produce identical bytes.
// Every directory gets an explicit entry; zipimport does not treat "pkg/"
// as a namespace package unless the directory entry exists.
//
// Extensions cannot be imported from a zip. [Writer.PlaceExtensions]
// copies them into lib-dynload under their dotted path and, for dotted
// names, returns a loader shim module for the archive. The shim finds the
// physical file on sys.path and loads it under the extension's name, so
// the enclosing package in the archive resolves the submodule normally.
//
// All writes replace what is already at the destination. Running a build
// again over a previous output leaves exactly the new output behind.
package archive
