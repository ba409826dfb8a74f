// Package macho reads and patches the dynamic-library load commands of
// Mach-O binaries.
//
// [FileInspector] lists the libraries a binary links against, its install
// name and its run-path entries, for thin and universal (fat) files alike.
// [Rewriter] changes the library paths recorded in those load commands in
// place. A command that grows uses the free space between the end of the
// load commands and the first section; if that padding is too small the
// rewrite fails with [ErrNoRoom] and the file is left untouched.
//
// [CachedInspector] memoizes inspections per path. The relocator inspects
// the same framework binaries from many referrers, so reads are shared.
package macho
