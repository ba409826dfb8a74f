package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/matzehuels/macpack/pkg/buildinfo"
	"github.com/matzehuels/macpack/pkg/fsutil"
	"github.com/matzehuels/macpack/pkg/modgraph"
)

// Manifest is written to Contents/Resources/build-manifest.json. Paths are
// relative to the bundle root.
type Manifest struct {
	BuildID        string         `json:"build_id"`
	Name           string         `json:"name"`
	Kind           string         `json:"kind"` // "app" or "plugin"
	Tool           buildinfo.Info `json:"tool"`
	Python         string         `json:"python"`
	SemiStandalone bool           `json:"semi_standalone"`
	Strip          bool           `json:"strip"`
	CreatedAt      time.Time      `json:"created_at"`

	// RuntimeLocations is where the launcher looks for the Python runtime,
	// in order.
	RuntimeLocations []string `json:"runtime_locations,omitempty"`

	Recipes      []string `json:"recipes,omitempty"`
	Modules      []string `json:"modules"`
	Extensions   []string `json:"extensions,omitempty"`
	Libraries    []string `json:"libraries,omitempty"`
	Missing      []string `json:"missing,omitempty"`
	SyntaxErrors []string `json:"syntax_errors,omitempty"`
}

func newManifest(opts *Options, res *Result, staged Layout) *Manifest {
	m := &Manifest{
		BuildID:        res.BuildID,
		Name:           opts.Name,
		Kind:           "app",
		Tool:           buildinfo.Get(),
		Python:         res.Env.Version,
		SemiStandalone: opts.SemiStandalone,
		Strip:          opts.Strip,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		Recipes:        res.Recipes.Applied,
		Modules:        []string{},
		Libraries:      res.Copied,
	}
	if opts.Plugin != "" {
		m.Kind = "plugin"
	}
	if res.Env != nil && res.Env.Executable != "" {
		m.RuntimeLocations = res.Env.RuntimePreferences(opts.SemiStandalone)
	}
	for _, n := range res.Graph.Flatten() {
		if n.Kind.HasCode() && n.Kind != modgraph.Script && n.Path != "" {
			m.Modules = append(m.Modules, n.ID)
		}
	}
	slices.Sort(m.Modules)
	m.Modules = slices.Compact(m.Modules)
	for _, p := range res.Extensions {
		m.Extensions = append(m.Extensions, staged.Rel(p.Dest))
	}
	slices.Sort(m.Extensions)
	if res.Missing != nil {
		for _, b := range []map[string][]string{
			res.Missing.Unconditional, res.Missing.FromImport,
			res.Missing.FromImportConditional, res.Missing.Conditional,
		} {
			for name := range b {
				m.Missing = append(m.Missing, name)
			}
		}
		slices.Sort(m.Missing)
		m.SyntaxErrors = slices.Sorted(slices.Values(res.Missing.SyntaxErrors))
	}
	return m
}

func (m *Manifest) write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return fsutil.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadManifest loads the manifest of a built bundle.
func ReadManifest(bundle string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(bundle, "Contents", "Resources", ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
