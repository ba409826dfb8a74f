package recipe

import (
	"context"
	"errors"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/macpack/pkg/modfinder"
	"github.com/matzehuels/macpack/pkg/modgraph"
)

// Finder is the part of the graph builder the engine drives.
// *modfinder.Finder implements it.
type Finder interface {
	Graph() *modgraph.Graph
	FindNeeded(ctx context.Context, includes, packages []string) error
	RunSource(ctx context.Context, id string, src []byte) (*modgraph.Node, error)
	IsPackage(name string) bool
}

// Engine applies a registry of recipes to a finder's graph.
type Engine struct {
	Registry *Registry
	Logger   *log.Logger
}

// Outcome is the accumulated correction of one [Engine.Apply] run.
type Outcome struct {
	Result

	// Applied lists the recipes that matched, in the order they matched.
	Applied []string
	// Scans counts the passes over the unconsumed recipes, including the
	// final pass in which nothing matched.
	Scans int
}

// Apply runs the checks until one full scan over the unconsumed recipes
// produces no match. Includes, packages and prescripts of a matching recipe
// are walked by f before the scan restarts.
//
// A package requested by a recipe that cannot be found is logged and
// skipped; it does not fail the build.
func (e *Engine) Apply(ctx context.Context, rc *Context, f Finder) (*Outcome, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	reg := e.Registry
	if reg == nil {
		reg = Default()
	}
	if rc == nil {
		rc = &Context{}
	}
	if rc.Logger == nil {
		rc.Logger = logger
	}
	if rc.IsPackage == nil {
		rc.IsPackage = f.IsPackage
	}

	out := &Outcome{}
	pending := reg.Names()
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Scans++

		matched := -1
		var res *Result
		for i, name := range pending {
			check, _ := reg.Lookup(name)
			if res = check(rc, f.Graph()); res != nil {
				matched = i
				break
			}
		}
		if matched < 0 {
			return out, nil
		}

		name := pending[matched]
		pending = slices.Delete(pending, matched, matched+1)
		out.Applied = append(out.Applied, name)
		out.Merge(res)
		logger.Info("using recipe", "recipe", name,
			"includes", len(res.Includes), "packages", len(res.Packages),
			"resources", len(res.Resources), "prescripts", len(res.Prescripts))

		if err := feed(ctx, f, name, res, logger); err != nil {
			return out, err
		}
	}
}

func feed(ctx context.Context, f Finder, name string, res *Result, logger *log.Logger) error {
	if len(res.Includes) > 0 || len(res.Packages) > 0 {
		err := f.FindNeeded(ctx, res.Includes, res.Packages)
		if errors.Is(err, modfinder.ErrPackageNotFound) {
			logger.Warn("recipe package not found", "recipe", name, "err", err)
		} else if err != nil {
			return err
		}
	}
	for _, p := range res.Prescripts {
		if _, err := f.RunSource(ctx, PrescriptID(name, p.Name), p.Source); err != nil {
			return err
		}
	}
	return nil
}

// PrescriptID is the graph node ID of a recipe bootstrap script.
func PrescriptID(recipe, name string) string {
	return "__prescript__." + recipe + "." + name
}
