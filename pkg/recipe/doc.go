// Package recipe corrects the module graph for imports that static analysis
// cannot see.
//
// Many packages load code at runtime: Qt discovers plugins on disk,
// matplotlib picks a backend by name, pkg_resources finds vendored modules
// through an import hook. A recipe is a [Check] that looks at the current
// graph and, when it recognizes such a pattern, returns a [Result] that
// describes the fix: more modules to include, whole packages, filters,
// bootstrap scripts, resource files, frameworks and imports that are known
// to be missing.
//
// # Fixed point
//
// [Engine.Apply] runs the checks of a [Registry] until none of them match.
// Whenever one matches it is consumed, its includes and packages are fed
// back into the finder, and the scan restarts from the first unconsumed
// recipe because the new modules may make an earlier recipe match. A recipe
// is never asked again once it has matched, so the loop ends after at most
// one scan per registered recipe plus a final empty scan.
//
// # Built-in recipes
//
// [Default] returns a registry with the recipes shipped with macpack:
// pyside, sip, matplotlib, pkg_resources, lxml and sqlite3.
package recipe
