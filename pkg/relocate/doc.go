// Package relocate copies the native libraries that bundled binaries
// depend on into the bundle and rewrites the binaries to use the copies.
//
// # Closure
//
// [Relocator.Run] starts from the placed extension modules and any extra
// roots (the Python runtime, requested frameworks) and follows load
// commands breadth first. Every dependency is resolved with a
// [dyld.Resolver]. System libraries are left alone, excluded libraries are
// checked for existence but not copied, and everything else is copied once
// into the frameworks directory:
//
//   - a framework keeps its layout: the referenced Versions/<v> subtree
//     without headers, a Versions/Current link and the top-level aliases
//   - a plain dylib is copied under its real name; when it was reached
//     through a symlink, the symlink name is recreated next to it
//
// The dependency is then rewritten in the referrer to a path relative to
// @loader_path, and every copied library gets a new install name:
// @rpath/<path below Frameworks>, or @loader_path/<name> for libraries
// placed next to their referrer. A resolved path is copied at most once;
// later referrers reuse the recorded destination.
//
// Dependencies written as @loader_path/... are resolved against the
// placed referrer first and then against the referrer's original
// directory. In the second case the library is copied to the same
// relative location next to the placed referrer, so the load command stays
// valid unchanged.
//
// # Concurrency
//
// Load commands of one breadth-first level are read in parallel. Copies,
// rewrites and the path to destination map are handled by the calling
// goroutine only.
package relocate
