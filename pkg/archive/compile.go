package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Module is one Python module destined for the archive.
type Module struct {
	ID      string // Dotted module name
	Path    string // Source or bytecode file; empty when Source is set
	Source  []byte // Generated source, such as a loader shim
	Package bool   // Stored as <id>/__init__
}

// Name returns the archive path of the module without extension:
// "pkg/sub/__init__" for packages, "pkg/sub/mod" otherwise.
func (m Module) Name() string {
	name := strings.ReplaceAll(m.ID, ".", "/")
	if m.Package {
		name += "/__init__"
	}
	return name
}

func (m Module) isBytecode() bool {
	return m.Source == nil && strings.HasSuffix(m.Path, ".pyc")
}

// Member is one file in the archive.
type Member struct {
	Name string // Slash-separated path inside the archive
	Data []byte
}

// Failure is a module the compiler rejected, usually for a syntax error
// the import scanner accepted.
type Failure struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Compiler turns modules into archive members. Modules that fail to
// compile are left out of the members and returned as failures; the error
// is reserved for conditions that stop the whole batch.
type Compiler interface {
	Compile(ctx context.Context, mods []Module) ([]Member, []Failure, error)
}

// SourceCompiler stores modules as plain .py files. Modules that only exist
// as bytecode are stored as is.
type SourceCompiler struct{}

// Compile implements [Compiler].
func (SourceCompiler) Compile(ctx context.Context, mods []Module) ([]Member, []Failure, error) {
	members := make([]Member, 0, len(mods))
	for _, m := range mods {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, err := m.read()
		if err != nil {
			return nil, nil, err
		}
		ext := ".py"
		if m.isBytecode() {
			ext = ".pyc"
		}
		members = append(members, Member{Name: m.Name() + ext, Data: data})
	}
	return members, nil, nil
}

func (m Module) read() ([]byte, error) {
	if m.Source != nil {
		return m.Source, nil
	}
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", m.ID, err)
	}
	return data, nil
}

// compileScript compiles the jobs read from stdin and prints the jobs that
// failed as a JSON list of {index, message} objects. Hash-based pycs keep the
// output independent of source modification times.
const compileScript = `
import json, py_compile, sys
opt = int(sys.argv[1])
failed = []
for i, (src, cfile, dfile) in enumerate(json.load(sys.stdin)):
    try:
        py_compile.compile(src, cfile=cfile, dfile=dfile, optimize=opt, doraise=True,
                           invalidation_mode=py_compile.PycInvalidationMode.UNCHECKED_HASH)
    except py_compile.PyCompileError as e:
        failed.append({"index": i, "message": e.msg.strip()})
json.dump(failed, sys.stdout)
`

// PythonCompiler byte-compiles modules with the target interpreter's
// py_compile, in one interpreter run for the whole module set.
type PythonCompiler struct {
	Interpreter string
	Optimize    int // -1 uses the interpreter's own level
	TempDir     string
}

// Compile implements [Compiler].
func (c PythonCompiler) Compile(ctx context.Context, mods []Module) ([]Member, []Failure, error) {
	tmp, err := os.MkdirTemp(c.TempDir, "macpack-compile-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create compile directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	members := make([]Member, len(mods))
	var jobs [][3]string
	var outputs []int
	for i, m := range mods {
		if m.isBytecode() {
			data, err := m.read()
			if err != nil {
				return nil, nil, err
			}
			members[i] = Member{Name: m.Name() + ".pyc", Data: data}
			continue
		}
		src := m.Path
		if m.Source != nil {
			src = filepath.Join(tmp, "src", strconv.Itoa(i)+".py")
			if err := writeTemp(src, m.Source); err != nil {
				return nil, nil, err
			}
		}
		cfile := filepath.Join(tmp, "out", strconv.Itoa(i)+".pyc")
		jobs = append(jobs, [3]string{src, cfile, m.Name() + ".py"})
		outputs = append(outputs, i)
	}

	rejected := map[int]string{}
	if len(jobs) > 0 {
		if rejected, err = c.run(ctx, jobs); err != nil {
			return nil, nil, err
		}
	}

	var failures []Failure
	for n, i := range outputs {
		if msg, bad := rejected[n]; bad {
			failures = append(failures, Failure{ID: mods[i].ID, Message: msg})
			continue
		}
		data, err := os.ReadFile(jobs[n][1])
		if err != nil {
			return nil, nil, fmt.Errorf("read compiled %s: %w", mods[i].ID, err)
		}
		members[i] = Member{Name: mods[i].Name() + ".pyc", Data: data}
	}

	kept := members[:0]
	for _, m := range members {
		if m.Name != "" {
			kept = append(kept, m)
		}
	}
	return kept, failures, nil
}

// run compiles jobs in one interpreter process and returns the messages of
// the rejected jobs keyed by job index.
func (c PythonCompiler) run(ctx context.Context, jobs [][3]string) (map[int]string, error) {
	input, err := json.Marshal(jobs)
	if err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Interpreter, "-I", "-c", compileScript, strconv.Itoa(c.Optimize))
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("byte-compile with %s: %w: %s", c.Interpreter, err, strings.TrimSpace(stderr.String()))
	}

	var failed []struct {
		Index   int    `json:"index"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &failed); err != nil {
		return nil, fmt.Errorf("byte-compile with %s: unexpected output: %w", c.Interpreter, err)
	}

	rejected := make(map[int]string, len(failed))
	for _, f := range failed {
		rejected[f.Index] = f.Message
	}
	return rejected, nil
}

func writeTemp(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
