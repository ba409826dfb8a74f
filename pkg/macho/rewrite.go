package macho

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Rewriter patches dependency load commands in place.
type Rewriter struct {
	// OnRewrite is called with the path of every file that was changed.
	OnRewrite func(path string)
}

// Rewrite replaces the dependency from with to in every slice of path.
func (w *Rewriter) Rewrite(path, from, to string) error {
	_, err := w.RewriteAll(path, map[string]string{from: to})
	return err
}

// RewriteAll applies changes (old name to new name) to the library load
// commands of path and returns the number of commands changed. The install
// name and run paths are never touched. The file is replaced atomically and
// keeps its permissions; nothing is written when no command matches or
// when any slice runs out of header padding.
func (w *Rewriter) RewriteAll(path string, changes map[string]string) (int, error) {
	return w.Relink(path, "", changes)
}

// Relink is [Rewriter.RewriteAll] that also sets the install name of a
// library to id. An empty id leaves the install name alone.
func (w *Rewriter) Relink(path, id string, changes map[string]string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) < 8 || !isMachOHeader(data) {
		return 0, fmt.Errorf("%s: %w", path, ErrNotMachO)
	}

	var total int
	for _, s := range sliceRanges(data) {
		n, err := rewriteSlice(data[s.off:s.end], id, changes)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		total += n
	}
	if total == 0 {
		return 0, nil
	}

	if err := replaceFile(path, data); err != nil {
		return 0, err
	}
	if w != nil && w.OnRewrite != nil {
		w.OnRewrite(path)
	}
	return total, nil
}

type byteRange struct{ off, end int }

// sliceRanges returns the byte ranges of every architecture slice.
func sliceRanges(data []byte) []byteRange {
	if binary.BigEndian.Uint32(data) != magicFat {
		return []byteRange{{0, len(data)}}
	}
	n := int(binary.BigEndian.Uint32(data[4:]))
	var out []byteRange
	for i := range n {
		p := fatHeaderSize + i*fatArchSize
		if p+fatArchSize > len(data) {
			break
		}
		off := int(binary.BigEndian.Uint32(data[p+8:]))
		size := int(binary.BigEndian.Uint32(data[p+12:]))
		if off+size > len(data) {
			continue
		}
		out = append(out, byteRange{off, off + size})
	}
	return out
}

type header struct {
	bo         binary.ByteOrder
	is64       bool
	ncmds      int
	sizeofcmds int
}

func (h header) size() int {
	if h.is64 {
		return headerSize64
	}
	return headerSize32
}

func (h header) align() int {
	if h.is64 {
		return 8
	}
	return 4
}

func parseHeader(b []byte) (header, error) {
	if len(b) < headerSize64 {
		return header{}, ErrNotMachO
	}
	var h header
	switch binary.LittleEndian.Uint32(b) {
	case magic64:
		h.bo, h.is64 = binary.LittleEndian, true
	case magic32:
		h.bo = binary.LittleEndian
	default:
		switch binary.BigEndian.Uint32(b) {
		case magic64:
			h.bo, h.is64 = binary.BigEndian, true
		case magic32:
			h.bo = binary.BigEndian
		default:
			return header{}, ErrNotMachO
		}
	}
	h.ncmds = int(h.bo.Uint32(b[16:]))
	h.sizeofcmds = int(h.bo.Uint32(b[20:]))
	return h, nil
}

func rewriteSlice(b []byte, id string, changes map[string]string) (int, error) {
	h, err := parseHeader(b)
	if err != nil {
		return 0, err
	}
	start := h.size()
	end := start + h.sizeofcmds
	if end > len(b) {
		return 0, fmt.Errorf("load commands exceed file size: %w", ErrNotMachO)
	}

	cmds := make([][]byte, 0, h.ncmds)
	for off, i := start, 0; i < h.ncmds; i++ {
		if off+8 > end {
			return 0, fmt.Errorf("truncated load command %d: %w", i, ErrNotMachO)
		}
		size := int(h.bo.Uint32(b[off+4:]))
		if size < 8 || off+size > end {
			return 0, fmt.Errorf("bad size for load command %d: %w", i, ErrNotMachO)
		}
		cmds = append(cmds, bytes.Clone(b[off:off+size]))
		off += size
	}

	var n, grown int
	for i, c := range cmds {
		if len(c) < dylibCommandSize {
			continue
		}
		old := commandString(c, h.bo)
		var repl string
		if h.bo.Uint32(c) == lcIDDylib {
			repl = id
		} else if _, ok := loadKind(h.bo.Uint32(c)); ok {
			repl = changes[old]
		}
		if repl == "" || repl == old {
			continue
		}
		cmds[i] = withName(c, h.bo, repl, h.align())
		grown += len(cmds[i]) - len(c)
		n++
	}
	if n == 0 {
		return 0, nil
	}

	if grown > 0 {
		limit, err := firstDataOffset(b)
		if err != nil {
			return 0, err
		}
		if end+grown > limit {
			return 0, fmt.Errorf("need %d bytes, have %d: %w", grown, limit-end, ErrNoRoom)
		}
	}

	off := start
	for _, c := range cmds {
		copy(b[off:], c)
		off += len(c)
	}
	h.bo.PutUint32(b[20:], uint32(off-start))
	return n, nil
}

// withName returns a copy of a dylib command that points at name, grown
// to the next aligned size if the old command is too small.
func withName(c []byte, bo binary.ByteOrder, name string, align int) []byte {
	nameOff := int(bo.Uint32(c[8:]))
	size := len(c)
	if need := nameOff + len(name) + 1; need > size {
		size = (need + align - 1) / align * align
	}
	out := make([]byte, size)
	copy(out, c[:nameOff])
	copy(out[nameOff:], name)
	bo.PutUint32(out[4:], uint32(size))
	return out
}

// firstDataOffset is the file offset of the first section or segment
// content after the header. Load commands may grow up to this offset.
func firstDataOffset(b []byte) (int, error) {
	mf, err := macho.NewFile(bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotMachO, err)
	}
	limit := len(b)
	for _, s := range mf.Sections {
		if s.Offset > 0 && int(s.Offset) < limit {
			limit = int(s.Offset)
		}
	}
	for _, l := range mf.Loads {
		if seg, ok := l.(*macho.Segment); ok && seg.Filesz > 0 && seg.Offset > 0 && int(seg.Offset) < limit {
			limit = int(seg.Offset)
		}
	}
	return limit, nil
}

func replaceFile(path string, data []byte) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), fi.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
