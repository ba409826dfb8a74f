package pyenv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in           string
		major, minor int
		wantErr      bool
	}{
		{"3.12", 3, 12, false},
		{"3.9.18", 3, 9, false},
		{" 3.11 ", 3, 11, false},
		{"3", 0, 0, true},
		{"three.x", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		major, minor, err := ParseVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if major != tt.major || minor != tt.minor {
			t.Errorf("ParseVersion(%q) = %d.%d, want %d.%d", tt.in, major, minor, tt.major, tt.minor)
		}
	}
}

func TestDefault(t *testing.T) {
	env, err := Default("3.12")
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if env.ShortVersion() != "3.12" || env.Tag() != "312" {
		t.Errorf("versions = %s / %s", env.ShortVersion(), env.Tag())
	}
	if !env.IsBuiltin("sys") || env.IsBuiltin("json") {
		t.Error("IsBuiltin mismatch for sys/json")
	}
	want := []string{".cpython-312-darwin.so", ".abi3.so", ".so"}
	if diff := cmp.Diff(want, env.ExtensionSuffixes); diff != "" {
		t.Errorf("ExtensionSuffixes mismatch (-want +got):\n%s", diff)
	}
}

func TestRuntime(t *testing.T) {
	tests := []struct {
		name      string
		env       Env
		wantDylib string
		wantPath  string
	}{
		{
			name: "framework",
			env: Env{
				Major: 3, Minor: 12, Framework: "Python",
				FrameworkDir: "/Library/Frameworks/Python.framework/Versions/3.12",
			},
			wantDylib: "Python",
			wantPath:  "/Library/Frameworks/Python.framework/Versions/3.12/Python",
		},
		{
			name:      "shared library",
			env:       Env{Major: 3, Minor: 11, BasePrefix: "/opt/py"},
			wantDylib: "libpython3.11.dylib",
			wantPath:  "/opt/py/lib/libpython3.11.dylib",
		},
		{
			name:      "explicit libdir",
			env:       Env{Major: 3, Minor: 11, LibDir: "/usr/local/lib", SharedLibrary: "libpython3.11.dylib"},
			wantDylib: "libpython3.11.dylib",
			wantPath:  "/usr/local/lib/libpython3.11.dylib",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dylib, path := tt.env.Runtime()
			if dylib != tt.wantDylib || path != tt.wantPath {
				t.Errorf("Runtime() = %s, %s; want %s, %s", dylib, path, tt.wantDylib, tt.wantPath)
			}
		})
	}
}

func TestRuntimePreferences(t *testing.T) {
	env := Env{Major: 3, Minor: 12, BasePrefix: "/opt/py"}
	got := env.RuntimePreferences(true)
	want := []string{"@executable_path/../Frameworks/libpython3.12.dylib", "/opt/py/lib/libpython3.12.dylib"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RuntimePreferences mismatch (-want +got):\n%s", diff)
	}
	if n := len(env.RuntimePreferences(false)); n != 1 {
		t.Errorf("standalone preferences = %d entries, want 1", n)
	}
}

func TestDecode(t *testing.T) {
	out := []byte(`{"version":"3.12.4","major":3,"minor":12,"prefix":"/opt/py","sys_path":["/opt/py/lib/python3.12/","/x/site-packages"],"builtin_modules":["sys"]}`)
	env, err := decode("/opt/py/bin/python3", out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Interpreter != "/opt/py/bin/python3" {
		t.Errorf("Interpreter = %s", env.Interpreter)
	}
	if env.SysPath[0] != "/opt/py/lib/python3.12" {
		t.Errorf("SysPath not cleaned: %v", env.SysPath)
	}

	if _, err := decode("p", []byte(`{}`)); err == nil {
		t.Error("decode accepted output without a version")
	}
	if _, err := decode("p", []byte(`not json`)); err == nil {
		t.Error("decode accepted invalid JSON")
	}
}
