package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/macpack/pkg/archive"
	macerrors "github.com/matzehuels/macpack/pkg/errors"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const sample = `
app = "src/main.py"
name = "Hello"
includes = ["encodings.*", "json"]
packages = ["certifi"]
excludes = ["tkinter"]
dylib_excludes = ["/opt/homebrew/lib/libssl.3.dylib"]
resources = ["assets", { source = "icons/app.icns", dest = "app.icns" }]
expected_missing_imports = ["winreg", "@missing.txt"]
python = "python3.12"
optimize = 2
compressed = true
graph = "svg"
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(write(t, dir, FileName, sample))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := &Config{
		App:                    filepath.Join(dir, "src", "main.py"),
		Name:                   "Hello",
		Includes:               []string{"encodings.*", "json"},
		Packages:               []string{"certifi"},
		Excludes:               []string{"tkinter"},
		DylibExcludes:          []string{"/opt/homebrew/lib/libssl.3.dylib"},
		Resources:              []Resource{{Source: filepath.Join(dir, "assets")}, {Source: filepath.Join(dir, "icons", "app.icns"), Dest: "app.icns"}},
		ExpectedMissingImports: []string{"winreg", "@" + filepath.Join(dir, "missing.txt")},
		Python:                 "python3.12",
		Optimize:               2,
		Compressed:             true,
		Graph:                  "svg",
		Path:                   filepath.Join(dir, FileName),
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPyproject(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, PyprojectName, `
[project]
name = "hello"
version = "1.0"

[tool.black]
line-length = 100

[tool.macpack]
plugin = "plugin.py"
semi_standalone = true
search_path = ["vendor"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Plugin != filepath.Join(dir, "plugin.py") || !cfg.SemiStandalone {
		t.Errorf("cfg = %+v", cfg)
	}
	if diff := cmp.Diff([]string{filepath.Join(dir, "vendor")}, cfg.SearchPath); diff != "" {
		t.Errorf("search path (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]struct {
		file, content string
		code          macerrors.Code
	}{
		"syntax":           {FileName, `app = `, macerrors.ErrCodeInvalidConfig},
		"unknown key":      {FileName, "app = \"a.py\"\nincldues = [\"x\"]\n", macerrors.ErrCodeInvalidConfig},
		"bad resource":     {FileName, `resources = [42]`, macerrors.ErrCodeInvalidConfig},
		"resource key":     {FileName, `resources = [{ source = "a", target = "b" }]`, macerrors.ErrCodeInvalidConfig},
		"no table":         {PyprojectName, "[project]\nname = \"x\"\n", macerrors.ErrCodeInvalidConfig},
		"pyproject typo":   {PyprojectName, "[tool.macpack]\nap = \"a.py\"\n", macerrors.ErrCodeInvalidConfig},
		"wrong value type": {FileName, `optimize = "high"`, macerrors.ErrCodeInvalidConfig},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := Load(write(t, dir, tt.file, tt.content))
			if !macerrors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), FileName)); !macerrors.Is(err, macerrors.ErrCodeFileNotFound) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestFind(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		got, err := Find(t.TempDir())
		if err != nil || got != "" {
			t.Errorf("Find() = %q, %v", got, err)
		}
	})
	t.Run("pyproject without table", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, PyprojectName, "[tool.ruff]\nline-length = 88\n")
		got, err := Find(dir)
		if err != nil || got != "" {
			t.Errorf("Find() = %q, %v", got, err)
		}
	})
	t.Run("pyproject", func(t *testing.T) {
		dir := t.TempDir()
		want := write(t, dir, PyprojectName, "[tool.macpack]\napp = \"main.py\"\n")
		got, err := Find(dir)
		if err != nil || got != want {
			t.Errorf("Find() = %q, %v, want %q", got, err, want)
		}
	})
	t.Run("macpack.toml wins", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, PyprojectName, "[tool.macpack]\napp = \"main.py\"\n")
		want := write(t, dir, FileName, "app = \"main.py\"\n")
		got, err := Find(dir)
		if err != nil || got != want {
			t.Errorf("Find() = %q, %v, want %q", got, err, want)
		}
	})
}

func TestApply(t *testing.T) {
	cfg := &Config{
		App:            "/src/main.py",
		Includes:       []string{"json"},
		Resources:      []Resource{{Source: "/src/icon.icns", Dest: "app.icns"}},
		SemiStandalone: true,
		Optimize:       1,
		DistDir:        "/out",
	}
	opts := pipeline.Options{Name: "Keep", Includes: []string{"flag"}}
	cfg.Apply(&opts)

	want := pipeline.Options{
		App:            "/src/main.py",
		Name:           "Keep",
		Includes:       []string{"json"},
		Resources:      []archive.Resource{{Source: "/src/icon.icns", Dest: "app.icns"}},
		SemiStandalone: true,
		Optimize:       1,
		DistDir:        "/out",
	}
	if diff := cmp.Diff(want, opts, cmp.AllowUnexported(pipeline.Options{})); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func ExampleDecode() {
	cfg, err := Decode([]byte(`
app = "main.py"
resources = ["README.txt"]
`))
	if err != nil {
		panic(err)
	}
	cfg.Resolve("/project")
	fmt.Println(cfg.App)
	fmt.Println(cfg.Resources[0].Source)
	// Output:
	// /project/main.py
	// /project/README.txt
}
