package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/macpack/pkg/modgraph"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - spinner, numbers
	colorGreen  = lipgloss.Color("35")  // Green - success, cache hits
	colorYellow = lipgloss.Color("220") // Amber - missing imports
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - paths
	colorGray   = lipgloss.Color("245") // Gray - labels
	colorDim    = lipgloss.Color("240") // Dim gray - details
)

var (
	// StyleDim for secondary text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for paths and values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for missing-import warnings.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleLabel   = lipgloss.NewStyle().Foreground(colorGray).Width(10)
	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
	separator   = " · "
)

// =============================================================================
// Printer
// =============================================================================

// printer writes the human-readable result of a command. Logs go to the
// logger on stderr; the printer writes to the command's output.
type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

// success prints a line with a green check mark.
func (p *printer) success(format string, args ...any) {
	p.println(styleSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

// warning prints an amber line.
func (p *printer) warning(format string, args ...any) {
	p.println(StyleWarning.Render(iconWarning + " " + fmt.Sprintf(format, args...)))
}

// info prints a neutral status line.
func (p *printer) info(format string, args ...any) {
	p.println(StyleDim.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// detail prints an indented, dimmed line below the previous one.
func (p *printer) detail(format string, args ...any) {
	p.println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// file prints a written path.
func (p *printer) file(path string) {
	p.println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// keyValue prints a labeled value.
func (p *printer) keyValue(key, value string) {
	p.println(styleLabel.Render(key) + " " + StyleValue.Render(value))
}

// stats prints the graph filter totals and the build statistics. cached is
// the number of scans and probes answered from the cache.
func (p *printer) stats(stats pipeline.Stats, cached int64) {
	f := stats.Filter
	p.println("  " + StyleDim.Render(strings.Join([]string{
		fmt.Sprintf("%d seen", f.Seen),
		fmt.Sprintf("%d filtered", f.Removed),
		fmt.Sprintf("%d orphaned", f.Orphaned),
		fmt.Sprintf("%d remaining", f.Remaining()),
	}, separator)))

	parts := []string{fmt.Sprintf("%d modules", stats.Modules)}
	if stats.Extensions > 0 {
		parts = append(parts, fmt.Sprintf("%d extensions", stats.Extensions))
	}
	if stats.Libraries > 0 {
		parts = append(parts, fmt.Sprintf("%d libraries", stats.Libraries))
	}
	line := "  " + StyleDim.Render(strings.Join(parts, separator))
	if cached > 0 {
		line += StyleDim.Render(separator) + styleSuccess.Render(fmt.Sprintf("%d cached", cached))
	}
	p.println(line)
}

// missing prints one warning per reported bucket that has entries.
func (p *printer) missing(report *modgraph.MissingReport, buckets []modgraph.Bucket) {
	if report == nil {
		return
	}
	for _, b := range buckets {
		names := modgraph.Names(report.Bucket(b))
		if len(names) == 0 {
			continue
		}
		p.warning("%d missing %s imports", len(names), b)
		p.detail("%s", strings.Join(names, ", "))
	}
	if len(report.SyntaxErrors) > 0 {
		p.warning("%d modules with syntax errors", len(report.SyntaxErrors))
		p.detail("%s", strings.Join(report.SyntaxErrors, ", "))
	}
}

// nextStep prints a suggested command after a blank line.
func (p *printer) nextStep(description, cmd string) {
	p.println("")
	p.println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}
