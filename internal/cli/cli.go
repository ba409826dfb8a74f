package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/macpack/pkg/buildinfo"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

// appName names the binary and its cache directory.
const appName = "macpack"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds the state shared by all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a CLI that logs to w at the given level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel changes the level after flags are parsed.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand returns the macpack command with every subcommand attached.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Bundle Python applications as macOS apps",
		Long: `macpack turns a Python script into a standalone macOS application or plugin bundle.

It finds every module the script imports, packs them into a zip archive,
copies the native libraries they load and rewrites their load commands so
the bundle runs on machines without the build environment.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(
		c.buildCommand(),
		c.graphCommand(),
		c.cacheCommand(),
		c.completionCommand(),
	)
	return root
}

// newRunner creates a pipeline runner backed by the user cache, or by no
// cache at all when noCache is set.
func (c *CLI) newRunner(noCache bool) (*pipeline.Runner, error) {
	store, err := c.openCache(noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(store, nil, c.Logger), nil
}
