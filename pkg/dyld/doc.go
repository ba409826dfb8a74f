// Package dyld resolves library install names the way the macOS dynamic
// loader does.
//
// A [Resolver] turns a load-command path such as "@rpath/libfoo.dylib" or
// "/opt/lib/Foo.framework/Versions/A/Foo" into an existing file. The
// candidates are tried in dyld's order and the first one that exists wins:
//
//  1. explicit override directories (DYLD_LIBRARY_PATH, DYLD_FRAMEWORK_PATH)
//  2. @executable_path, @loader_path and every @rpath entry
//  3. the name itself
//  4. the framework and library fallback directories
//
// All inputs come from the Resolver fields; the process environment is
// never read.
package dyld
