package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"

	"github.com/matzehuels/macpack/pkg/archive"
	"github.com/matzehuels/macpack/pkg/pipeline"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// parseTarget runs the build command's flag handling without building.
func parseTarget(t *testing.T, args ...string) pipeline.Options {
	t.Helper()
	var f targetFlags
	cmd := &cobra.Command{Use: "build"}
	f.registerTarget(cmd)
	f.registerOutput(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v) error: %v", args, err)
	}
	opts, err := f.options(context.Background(), cmd, cmd.Flags().Args())
	if err != nil {
		t.Fatalf("options() error: %v", err)
	}
	return opts
}

func TestTargetOptions(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, filepath.Join(dir, "macpack.toml"), `
app = "main.py"
includes = ["json"]
semi_standalone = true
optimize = 2
resources = ["assets"]
`)
	abs := func(p string) string { return filepath.Join(dir, p) }

	tests := []struct {
		name string
		args []string
		want pipeline.Options
	}{
		{
			name: "config only",
			args: []string{"--config", cfg},
			want: pipeline.Options{
				App:            abs("main.py"),
				Includes:       []string{"json"},
				Resources:      []archive.Resource{{Source: abs("assets")}},
				SemiStandalone: true,
				Optimize:       2,
			},
		},
		{
			name: "flags win",
			args: []string{"--config", cfg, "-i", "csv,xml.*", "-O", "0", "--semi-standalone=false", "-n", "Hello"},
			want: pipeline.Options{
				App:       abs("main.py"),
				Name:      "Hello",
				Includes:  []string{"csv", "xml.*"},
				Resources: []archive.Resource{{Source: abs("assets")}},
			},
		},
		{
			name: "script argument replaces app",
			args: []string{"--config", cfg, "other.py"},
			want: pipeline.Options{
				App:            "other.py",
				Includes:       []string{"json"},
				Resources:      []archive.Resource{{Source: abs("assets")}},
				SemiStandalone: true,
				Optimize:       2,
			},
		},
		{
			name: "plugin flag turns app into plugin",
			args: []string{"--config", cfg, "--plugin"},
			want: pipeline.Options{
				Plugin:         abs("main.py"),
				Includes:       []string{"json"},
				Resources:      []archive.Resource{{Source: abs("assets")}},
				SemiStandalone: true,
				Optimize:       2,
			},
		},
		{
			name: "resources are appended",
			args: []string{"--config", cfg, "-r", "icon.icns=app.icns", "-r", "README"},
			want: pipeline.Options{
				App:      abs("main.py"),
				Includes: []string{"json"},
				Resources: []archive.Resource{
					{Source: abs("assets")},
					{Source: "icon.icns", Dest: "app.icns"},
					{Source: "README"},
				},
				SemiStandalone: true,
				Optimize:       2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTarget(t, tt.args...)
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreUnexported(pipeline.Options{})); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTargetOptionsConfigNextToScript(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "macpack.toml"), "name = \"FromConfig\"\npackages = [\"certifi\"]\n")
	script := writeFile(t, filepath.Join(dir, "main.py"), "")

	got := parseTarget(t, script)
	if got.Name != "FromConfig" || got.App != script {
		t.Errorf("options = %+v, want name from config next to %s", got, script)
	}
	if diff := cmp.Diff([]string{"certifi"}, got.Packages); diff != "" {
		t.Errorf("packages (-want +got):\n%s", diff)
	}
}

func TestTargetOptionsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, filepath.Join(dir, "macpack.toml"), "app = \n")

	var f targetFlags
	cmd := &cobra.Command{Use: "build"}
	f.registerTarget(cmd)
	if err := cmd.ParseFlags([]string{"--config", cfg}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.options(context.Background(), cmd, nil); err == nil {
		t.Error("options() should fail on a broken config")
	}
}
