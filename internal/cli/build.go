package cli

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/macpack/pkg/observability"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

// buildCommand creates the build command, which produces an .app or
// .plugin bundle from a script.
func (c *CLI) buildCommand() *cobra.Command {
	var flags targetFlags

	cmd := &cobra.Command{
		Use:   "build [script]",
		Short: "Build a macOS application bundle from a Python script",
		Long: `Build a macOS application or plugin bundle from a Python script.

Settings are read from macpack.toml, or from the [tool.macpack] table of
pyproject.toml, in the working directory or next to the script. Flags
override the file.

Examples:
  macpack build main.py                          # dist/main.app
  macpack build --plugin -n Helper helper.py     # dist/Helper.plugin
  macpack build -p certifi -r assets main.py     # extra package and resources
  macpack build --semi-standalone main.py        # use the installed Python`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := withLogger(cmd.Context(), c.Logger)
			opts, err := flags.options(ctx, cmd, args)
			if err != nil {
				return err
			}
			return c.runBuild(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags.registerTarget(cmd)
	flags.registerOutput(cmd)

	return cmd
}

// runBuild executes one build and prints its summary to w. The spinner
// draws on errw.
func (c *CLI) runBuild(ctx context.Context, opts pipeline.Options, w, errw io.Writer) error {
	runner, err := c.newRunner(opts.NoCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	logger := loggerFromContext(ctx)
	label := "Building " + filepath.Base(opts.Script())

	// Debug output and the spinner would overwrite each other.
	var spinner *Spinner
	if logger.GetLevel() > LogDebug {
		spinner = newSpinner(ctx, errw, label)
		spinner.Start()
	}
	hooks := installHooks(logger, spinner, label)
	defer observability.Reset()

	prog := newProgress(logger)
	result, err := runner.Execute(ctx, opts)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	p := newPrinter(w)
	p.success("Built %s %s", filepath.Base(result.Layout.Root), StyleDim.Render("in "+prog.elapsed().String()))
	p.file(result.Layout.Root)
	for _, path := range result.Exports {
		p.file(path)
	}
	p.stats(result.Stats, hooks.cache.hits.Load())
	p.missing(result.Missing, opts.ReportedBuckets())
	if strings.HasSuffix(result.Layout.Root, ".app") {
		p.nextStep("Run it", "open "+result.Layout.Root)
	}
	return nil
}
