package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/matzehuels/macpack/pkg/export"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

// graphOpts holds the output flags of the graph command.
type graphOpts struct {
	format string // json, dot or svg
	output string // output file (stdout if empty)
	xref   bool   // write the cross reference instead of the graph
}

// graphCommand creates the graph command, which analyzes a script without
// writing a bundle.
func (c *CLI) graphCommand() *cobra.Command {
	var flags targetFlags
	out := graphOpts{format: export.FormatJSON}

	cmd := &cobra.Command{
		Use:   "graph [script]",
		Short: "Print the module graph of a Python script",
		Long: `Find every module a script needs and print the module graph.

The graph goes through the same recipes and filters as a build, so it shows
exactly what "macpack build" would put into the bundle.

Examples:
  macpack graph main.py                      # JSON on stdout
  macpack graph -f svg -o graph.svg main.py  # rendered with Graphviz
  macpack graph --xref main.py               # who imports what`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := export.ValidateFormat(out.format); err != nil {
				return err
			}
			ctx := withLogger(cmd.Context(), c.Logger)
			opts, err := flags.options(ctx, cmd, args)
			if err != nil {
				return err
			}
			return c.runGraph(ctx, opts, out, cmd.OutOrStdout())
		},
	}

	flags.registerTarget(cmd)
	cmd.Flags().StringVarP(&out.format, "format", "f", out.format, "output format: json, dot or svg")
	cmd.Flags().StringVarP(&out.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&out.xref, "xref", false, "write the import cross reference as JSON instead")

	return cmd
}

// runGraph builds the graph of opts and writes it to the output file or w.
func (c *CLI) runGraph(ctx context.Context, opts pipeline.Options, out graphOpts, w io.Writer) error {
	runner, err := c.newRunner(opts.NoCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(loggerFromContext(ctx))
	result, err := runner.Graph(ctx, opts)
	if err != nil {
		return err
	}
	g := result.Graph

	if out.output == "" {
		if out.xref {
			return export.WriteXref(g, w)
		}
		return export.Write(ctx, g, out.format, w)
	}

	if out.xref {
		err = export.ExportXref(g, out.output)
	} else {
		err = export.Export(ctx, g, out.format, out.output)
	}
	if err != nil {
		return err
	}
	prog.done("Exported graph")

	p := newPrinter(w)
	p.success("Wrote %s", out.output)
	p.keyValue("modules", fmt.Sprint(g.NodeCount()))
	p.keyValue("imports", fmt.Sprint(g.EdgeCount()))
	p.keyValue("python", result.Env.Version)
	p.missing(result.Missing, opts.ReportedBuckets())
	return nil
}
