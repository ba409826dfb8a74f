package recipe

import (
	_ "embed"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/matzehuels/macpack/pkg/modgraph"
)

var (
	//go:embed data/qt.conf
	qtConf []byte
	//go:embed data/matplotlib_prescript.py
	matplotlibPrescript []byte
	//go:embed data/pkg_resources_prescript.py
	pkgResourcesPrescript []byte
)

var builtins = []struct {
	name  string
	check Check
}{
	{"pyside", checkPySide},
	{"sip", checkSip},
	{"matplotlib", checkMatplotlib},
	{"pkg_resources", checkPkgResources},
	{"lxml", checkLxml},
	{"sqlite3", checkSqlite3},
}

// found returns the node for name if it is in the graph and backed by a
// file.
func found(g *modgraph.Graph, name string) *modgraph.Node {
	n, ok := g.Find(name)
	if !ok || n.Path == "" {
		return nil
	}
	return n
}

// packageDir returns the directory of a package node.
func packageDir(n *modgraph.Node) string {
	if len(n.SearchPaths) > 0 {
		return n.SearchPaths[0]
	}
	return filepath.Dir(n.Path)
}

func checkPySide(ctx *Context, g *modgraph.Graph) *Result {
	var pkg *modgraph.Node
	for _, name := range []string{"PySide6", "PySide2", "PySide"} {
		if pkg = found(g, name); pkg != nil {
			break
		}
	}
	if pkg == nil {
		return nil
	}

	res := &Result{Resources: []File{{Dest: "qt.conf", Data: qtConf}}}
	pluginDir := qtPluginDir(packageDir(pkg))
	if pluginDir == "" {
		if len(ctx.QtPlugins) > 0 {
			ctx.logger().Warn("qt plugin directory not found", "package", pkg.ID)
		}
		return res
	}

	for _, item := range ctx.QtPlugins {
		if !strings.Contains(item, "/") {
			item += "/*"
		}
		if !strings.Contains(item, "*") {
			res.Resources = append(res.Resources, File{
				Source: filepath.Join(pluginDir, item),
				Dest:   filepath.ToSlash(filepath.Join("qt_plugins", item)),
			})
			continue
		}
		matches, err := doublestar.Glob(filepath.Join(pluginDir, item))
		if err != nil {
			ctx.logger().Warn("bad qt plugin pattern", "pattern", item, "err", err)
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			rel, err := filepath.Rel(pluginDir, m)
			if err != nil {
				continue
			}
			res.Resources = append(res.Resources, File{
				Source: m,
				Dest:   filepath.ToSlash(filepath.Join("qt_plugins", rel)),
			})
		}
	}
	return res
}

// qtPluginDir locates the plugin directory shipped inside a PySide wheel.
func qtPluginDir(pkgDir string) string {
	for _, dir := range []string{
		filepath.Join(pkgDir, "Qt", "plugins"),
		filepath.Join(pkgDir, "plugins"),
	} {
		if isDir(dir) {
			return dir
		}
	}
	return ""
}

func checkSip(_ *Context, g *modgraph.Graph) *Result {
	for _, pkg := range []string{"PyQt6", "PyQt5"} {
		if found(g, pkg) == nil {
			continue
		}
		res := &Result{Includes: []string{pkg + ".sip"}}
		// uic loads its widget plugins by file name.
		if found(g, pkg+".uic") != nil {
			res.Packages = []string{pkg + ".uic"}
		}
		return res
	}
	if found(g, "sip") != nil {
		return &Result{Includes: []string{"sip"}}
	}
	return nil
}

func checkMatplotlib(ctx *Context, g *modgraph.Graph) *Result {
	pkg := found(g, "matplotlib")
	if pkg == nil {
		return nil
	}

	res := &Result{
		Prescripts: []Prescript{{Name: "matplotlib", Source: matplotlibPrescript}},
	}
	if data := filepath.Join(packageDir(pkg), "mpl-data"); isDir(data) {
		res.Resources = append(res.Resources, File{Source: data, Dest: "mpl-data"})
	}

	switch backends := ctx.MatplotlibBackends; {
	case len(backends) == 0:
		res.Packages = []string{"matplotlib"}
	case len(backends) == 1 && backends[0] == "*":
		res.Packages = []string{"matplotlib.backends"}
	case len(backends) == 1 && backends[0] == "-":
		// Only the backends the application imports itself.
	default:
		for _, b := range backends {
			res.Includes = append(res.Includes, "matplotlib.backends.backend_"+strings.ToLower(b))
		}
	}
	return res
}

func checkPkgResources(ctx *Context, g *modgraph.Graph) *Result {
	if found(g, "pkg_resources") == nil {
		return nil
	}
	res := &Result{
		Prescripts: []Prescript{{Name: "pkg_resources", Source: pkgResourcesPrescript}},
		ExpectedMissingImports: []string{
			"__main__.__requires__",
			"pkg_resources.extern",
		},
	}
	if ctx.IsPackage != nil && ctx.IsPackage("pkg_resources._vendor") {
		res.Packages = []string{"pkg_resources._vendor"}
	}
	return res
}

func checkLxml(_ *Context, g *modgraph.Graph) *Result {
	if found(g, "lxml.etree") == nil && found(g, "lxml.objectify") == nil {
		return nil
	}
	res := &Result{Includes: []string{"lxml._elementpath", "gzip"}}
	if found(g, "lxml.isoschematron") != nil {
		// The schematron stylesheets live next to the package modules.
		res.Packages = []string{"lxml.isoschematron"}
	}
	return res
}

func checkSqlite3(_ *Context, g *modgraph.Graph) *Result {
	if found(g, "sqlite3") == nil {
		return nil
	}
	return &Result{Includes: []string{"_sqlite3"}}
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
