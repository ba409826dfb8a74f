package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"
)

// modTime is stamped on every archive entry. It is the earliest time the
// zip format can represent.
var modTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Data is a non-module file stored in the archive, such as package data or
// a recipe loader file.
type Data struct {
	Name  string // Slash-separated archive path
	Path  string // File or directory on disk; directories are added recursively
	Bytes []byte // Used instead of Path when set
}

// Writer writes archives and places extensions.
type Writer struct {
	Compiler   Compiler // nil stores source
	Compressed bool     // Deflate members instead of storing them
	Logger     *log.Logger
}

// Stats summarizes one written archive.
type Stats struct {
	Path    string `json:"path"`
	Modules int    `json:"modules"`
	Data    int    `json:"data"`
	Dirs    int    `json:"dirs"`
	Bytes   int64  `json:"bytes"`

	// Invalid lists the modules left out because they did not compile.
	Invalid []Failure `json:"invalid,omitempty"`
}

func (w *Writer) logger() *log.Logger {
	if w.Logger == nil {
		return log.New(io.Discard)
	}
	return w.Logger
}

func (w *Writer) compiler() Compiler {
	if w.Compiler == nil {
		return SourceCompiler{}
	}
	return w.Compiler
}

// WriteArchive compiles mods, adds data and writes the archive to dst,
// replacing any existing file. Members are ordered by name and every
// directory has its own entry. When a name occurs twice the module wins
// over data, and the first of two data files wins. Modules the compiler
// rejects are left out and listed in [Stats.Invalid].
func (w *Writer) WriteArchive(ctx context.Context, dst string, mods []Module, data []Data) (*Stats, error) {
	compiled, failures, err := w.compiler().Compile(ctx, mods)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		w.logger().Warn("module does not compile", "module", f.ID, "err", f.Message)
	}

	files := make(map[string][]byte, len(compiled)+len(data))
	for _, m := range compiled {
		files[m.Name] = m.Data
	}
	nData := 0
	for _, d := range data {
		added, err := w.addData(files, d)
		if err != nil {
			return nil, err
		}
		nData += added
	}

	names := make([]string, 0, len(files))
	dirs := make(map[string]bool)
	for name := range files {
		names = append(names, name)
		for dir := path.Dir(name); dir != "."; dir = path.Dir(dir) {
			dirs[dir+"/"] = true
		}
	}
	for dir := range dirs {
		names = append(names, dir)
	}
	slices.Sort(names)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	tmp := dst + ".tmp"
	if err := w.write(ctx, tmp, names, files); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("replace archive: %w", err)
	}

	fi, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Path: dst, Modules: len(compiled), Data: nData, Dirs: len(dirs), Bytes: fi.Size(), Invalid: failures}
	w.logger().Debug("wrote archive", "path", dst, "modules", stats.Modules, "data", stats.Data, "bytes", stats.Bytes)
	return stats, nil
}

func (w *Writer) write(ctx context.Context, dst string, names []string, files map[string][]byte) (err error) {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", closeErr)
		}
	}()

	zw := zip.NewWriter(f)
	defer func() {
		if closeErr := zw.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("finalize archive: %w", closeErr)
		}
	}()

	method := zip.Store
	if w.Compressed {
		method = zip.Deflate
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		header := &zip.FileHeader{Name: name, Method: method, Modified: modTime}
		if strings.HasSuffix(name, "/") {
			header.Method = zip.Store
			header.SetMode(fs.ModeDir | 0o755)
		} else {
			header.SetMode(0o644)
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// addData stores d in files and returns the number of files added.
func (w *Writer) addData(files map[string][]byte, d Data) (int, error) {
	name := strings.Trim(d.Name, "/")
	if d.Bytes != nil || d.Path == "" {
		return w.put(files, name, d.Bytes), nil
	}

	info, err := os.Stat(d.Path)
	if err != nil {
		return 0, fmt.Errorf("archive data %s: %w", d.Path, err)
	}
	if !info.IsDir() {
		b, err := os.ReadFile(d.Path)
		if err != nil {
			return 0, fmt.Errorf("archive data %s: %w", d.Path, err)
		}
		return w.put(files, name, b), nil
	}

	added := 0
	err = filepath.WalkDir(d.Path, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if IsJunk(e.Name()) {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Path, p)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		added += w.put(files, path.Join(name, filepath.ToSlash(rel)), b)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive data %s: %w", d.Path, err)
	}
	return added, nil
}

func (w *Writer) put(files map[string][]byte, name string, b []byte) int {
	if _, dup := files[name]; dup {
		w.logger().Debug("archive member already present", "name", name)
		return 0
	}
	if b == nil {
		b = []byte{}
	}
	files[name] = b
	return 1
}
