package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/matzehuels/macpack/pkg/export"
	"github.com/matzehuels/macpack/pkg/observability"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

// project writes a script importing a builtin, one module from a separate
// search path directory and a missing conditional import.
func project(t *testing.T) (root, script, site string) {
	t.Helper()
	root = t.TempDir()
	script = writeFile(t, filepath.Join(root, "app", "main.py"), "import sys\nimport helper\n\ntry:\n    import winreg\nexcept ImportError:\n    pass\n")
	site = filepath.Join(root, "site")
	writeFile(t, filepath.Join(site, "helper.py"), "VALUE = 1\n")
	return root, script, site
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"build", "graph", "cache", "completion"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered (have %v)", want, names)
		}
	}
}

func TestGraphCommand(t *testing.T) {
	_, script, site := project(t)

	out, err := execute(t, "graph", "--python-version", "3.12", "--search-path", site, "-f", "json", script)
	if err != nil {
		t.Fatalf("graph error: %v", err)
	}
	g, err := export.ReadJSON(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ReadJSON() error: %v\n%s", err, out)
	}
	if _, ok := g.Node("helper"); !ok {
		t.Error("helper missing from graph output")
	}
}

func TestGraphCommandToFile(t *testing.T) {
	root, script, site := project(t)
	dest := filepath.Join(root, "graph.dot")

	if _, err := execute(t, "graph", "--python-version", "3.12", "--search-path", site, "-f", "dot", "-o", dest, script); err != nil {
		t.Fatalf("graph error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "digraph") || !strings.Contains(string(data), `"helper"`) {
		t.Errorf("unexpected DOT output:\n%s", data)
	}
}

func TestGraphCommandBadFormat(t *testing.T) {
	_, script, _ := project(t)
	if _, err := execute(t, "graph", "--python-version", "3.12", "-f", "png", script); err == nil {
		t.Error("graph should reject an unknown format")
	}
}

var filterLine = regexp.MustCompile(`(\d+) seen · (\d+) filtered · (\d+) orphaned · (\d+) remaining`)

func TestBuildCommand(t *testing.T) {
	root, script, site := project(t)
	dist := filepath.Join(root, "dist")

	out, err := execute(t, "build",
		"--python-version", "3.12",
		"--search-path", site,
		"--dist-dir", dist,
		"--build-dir", filepath.Join(root, "build"),
		"-n", "Hello",
		script)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}

	m, err := pipeline.ReadManifest(filepath.Join(dist, "Hello.app"))
	if err != nil {
		t.Fatalf("ReadManifest() error: %v", err)
	}
	if m.Name != "Hello" || m.Kind != "app" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.Missing) != 1 || m.Missing[0] != "winreg" {
		t.Errorf("missing = %v, want [winreg]", m.Missing)
	}
	for _, want := range []string{"Built Hello.app", "1 missing conditional imports", "winreg", "open " + filepath.Join(dist, "Hello.app")} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	m := filterLine.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("summary has no filter totals:\n%s", out)
	}
	seen, _ := strconv.Atoi(m[1])
	filtered, _ := strconv.Atoi(m[2])
	remaining, _ := strconv.Atoi(m[4])
	if seen == 0 || filtered == 0 || remaining != seen-filtered {
		t.Errorf("filter totals = %q, want sys filtered and remaining = seen - filtered", m[0])
	}

	// Hooks installed for the build are removed afterwards.
	if _, ok := observability.Pipeline().(observability.NoopPipelineHooks); !ok {
		t.Error("pipeline hooks were not reset after the build")
	}
}

func TestBuildCommandInvalidTarget(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "build", "--python-version", "3.12", filepath.Join(dir, "missing.py")); err == nil {
		t.Error("build should fail for a missing script")
	}
}

func TestCacheDir(t *testing.T) {
	t.Run("xdg", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
		dir, err := cacheDir()
		if err != nil || dir != filepath.Join("/tmp/xdg", appName) {
			t.Errorf("cacheDir() = %q, %v", dir, err)
		}
	})
	t.Run("home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("XDG_CACHE_HOME", "")
		t.Setenv("HOME", home)
		dir, err := cacheDir()
		if err != nil || dir != filepath.Join(home, ".cache", appName) {
			t.Errorf("cacheDir() = %q, %v", dir, err)
		}
	})
}

func TestCacheCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"cache", "path"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if got, want := strings.TrimSpace(out.String()), filepath.Join(dir, appName); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}

	entry := writeFile(t, filepath.Join(dir, appName, "ab", "cdef.json"), "{}")
	root = c.RootCommand()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"cache", "clear"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(entry); !os.IsNotExist(err) {
		t.Error("cache clear left an entry behind")
	}
	if !strings.Contains(out.String(), "Removed 1 cache entries") {
		t.Errorf("clear output = %q", out.String())
	}
}
