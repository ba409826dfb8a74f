package pyenv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/matzehuels/macpack/pkg/cache"
)

// probeScript prints the interpreter configuration as one JSON object.
const probeScript = `
import importlib.machinery, json, os, sys, sysconfig
cv = sysconfig.get_config_var
fw = cv("PYTHONFRAMEWORK") or ""
fwdir = ""
if fw:
    fwdir = os.path.join(cv("PYTHONFRAMEWORKPREFIX") or "", fw + ".framework", "Versions", "%d.%d" % sys.version_info[:2])
base = getattr(sys, "real_prefix", None) or getattr(sys, "base_prefix", sys.prefix)
app = os.path.join(base, "Resources", "Python.app")
json.dump({
    "version": "%d.%d.%d" % sys.version_info[:3],
    "major": sys.version_info[0],
    "minor": sys.version_info[1],
    "prefix": sys.prefix,
    "base_prefix": base,
    "stdlib_dir": sysconfig.get_paths()["stdlib"],
    "executable": sys.executable,
    "sys_path": [p for p in sys.path if p],
    "extension_suffixes": importlib.machinery.EXTENSION_SUFFIXES,
    "builtin_modules": sorted(sys.builtin_module_names),
    "framework": fw,
    "framework_dir": fwdir,
    "lib_dir": cv("LIBDIR") or "",
    "shared_library": cv("LDLIBRARY") or "",
    "enable_shared": bool(cv("Py_ENABLE_SHARED")),
    "python_app": app if os.path.isdir(app) else "",
}, sys.stdout)
`

// ProbeOptions configures [Probe].
type ProbeOptions struct {
	Cache cache.Cache // nil disables caching
	Keyer cache.Keyer
}

// Probe runs interpreter once and returns its configuration. Results are
// cached by interpreter path, size and modification time.
func Probe(ctx context.Context, interpreter string, opts ProbeOptions) (*Env, error) {
	path, err := exec.LookPath(interpreter)
	if err != nil {
		return nil, fmt.Errorf("find interpreter %q: %w", interpreter, err)
	}

	c := opts.Cache
	if c == nil {
		c = cache.NewNullCache()
	}
	keyer := opts.Keyer
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}

	var key string
	if fi, err := os.Stat(path); err == nil {
		key = keyer.ProbeKey(path, cache.ProbeKeyOpts{Size: fi.Size(), ModTime: fi.ModTime()})
		var env Env
		if hit, _ := cache.GetJSON(ctx, c, "probe", key, &env); hit {
			return &env, nil
		}
	}

	env, err := run(ctx, path)
	if err != nil {
		return nil, err
	}
	if key != "" {
		_ = cache.SetJSON(ctx, c, "probe", key, env, cache.TTLProbe)
	}
	return env, nil
}

func run(ctx context.Context, path string) (*Env, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-I", "-c", probeScript)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("probe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return decode(path, stdout.Bytes())
}

func decode(path string, data []byte) (*Env, error) {
	var env Env
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode probe output of %s: %w", path, err)
	}
	if env.Major == 0 {
		return nil, fmt.Errorf("probe output of %s has no version", path)
	}
	env.Interpreter = path
	for i, p := range env.SysPath {
		env.SysPath[i] = filepath.Clean(p)
	}
	return &env, nil
}
