// Package pkg provides the core libraries for macpack, which bundles Python
// applications as self-contained macOS .app and .plugin bundles.
//
// # Overview
//
// A bundle holds everything a script needs at run time: its modules packed
// into a zip archive, compiled extensions, the native libraries they load
// and, unless the build is semi-standalone, the interpreter itself. The pkg
// directory is organized into four areas:
//
//  1. Analysis: [modgraph], [pysource], [modfinder], [recipe], [pyenv]
//  2. Native code: [macho], [dyld], [relocate]
//  3. Output: [archive], [export], [fsutil]
//  4. Orchestration: [pipeline], [config], plus the shared [cache], [errors]
//     and [observability] packages
//
// # Architecture
//
// The data flow of one build:
//
//	script + config
//	       ↓
//	  [modfinder] walks imports ([pysource] scans each file)
//	       ↓
//	  [recipe] corrects the graph for known packages
//	       ↓
//	  [modgraph] filters it and reports missing imports
//	       ↓
//	  [archive] writes modules, extensions and resources
//	       ↓
//	  [relocate] copies native libraries and rewrites load commands
//	       ↓
//	  dist/Name.app
//
// # Quick Start
//
// Build an application bundle:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/macpack/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, logger)
//	result, err := runner.Execute(context.Background(), pipeline.Options{
//	    App:      "main.py",
//	    Packages: []string{"certifi"},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Layout.Root) // dist/main.app
//
// Inspect the module graph without building:
//
//	res, _ := runner.Graph(ctx, pipeline.Options{App: "main.py"})
//	export.Export(ctx, res.Graph, export.FormatSVG, "graph.svg")
//
// # Main Packages
//
// [modgraph] - The module dependency graph. Nodes carry a kind (source,
// package, extension, missing, ...) and edges carry how an import was
// written. Includes the filter stack and the missing-imports report.
//
// [modfinder] - Resolves import statements against the search path and
// grows the graph from the scripts and forced includes.
//
// [recipe] - Per-package corrections applied until none matches: hidden
// imports, data files, prescripts, frameworks.
//
// [relocate] - Computes the closure of native libraries loaded by the
// bundled binaries, copies them into Contents/Frameworks and rewrites
// their load commands through [macho].
//
// [archive] - Writes the module zip with compiled bytecode, places
// extensions and copies resources.
//
// [pipeline] - Runs all stages in order and stages the bundle so a failed
// build never replaces a good one.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...               # All tests
//	go test ./pkg/relocate/...      # Specific package
//	go test -run Example ./pkg/...  # Examples only
//
// Tests that need a real interpreter skip themselves when python3 is not on
// PATH. Mach-O fixtures are generated by [machotest].
//
// [modgraph]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/modgraph
// [pysource]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/pysource
// [modfinder]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/modfinder
// [recipe]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/recipe
// [pyenv]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/pyenv
// [macho]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/macho
// [machotest]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/macho/machotest
// [dyld]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/dyld
// [relocate]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/relocate
// [archive]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/archive
// [export]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/export
// [fsutil]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/fsutil
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/pipeline
// [config]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/config
// [cache]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/macpack/pkg/observability
package pkg
