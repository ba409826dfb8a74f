// Package machotest builds small synthetic Mach-O files for tests.
//
// The files carry a header, one __TEXT segment with a single section, the
// requested dylib and rpath load commands and a configurable amount of
// padding between the load commands and the section data. They are valid
// enough for debug/macho and for the rewriter, not for dyld.
package machotest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// File types.
const (
	Execute = 0x2
	Dylib   = 0x6
	Bundle  = 0x8
)

// CPU types.
const (
	CPUAmd64 = 0x01000007
	CPUArm64 = 0x0100000c
)

// Load command kinds usable in [Dep].
const (
	LoadDylib       = 0xc
	LoadWeakDylib   = 0x80000018
	ReexportDylib   = 0x8000001f
	LazyLoadDylib   = 0x20
	LoadUpwardDylib = 0x80000023
)

// Dep is one dependency load command.
type Dep struct {
	Name string
	Cmd  uint32 // zero means LoadDylib
}

// Spec describes a synthetic 64-bit little-endian Mach-O slice.
type Spec struct {
	Type    uint32 // zero means Dylib
	CPU     uint32 // zero means CPUAmd64
	ID      string // LC_ID_DYLIB, omitted when empty
	Deps    []Dep
	RPaths  []string
	Padding int // free bytes after the load commands; zero means 512
}

// Deps is shorthand for plain LC_LOAD_DYLIB dependencies.
func Deps(names ...string) []Dep {
	out := make([]Dep, len(names))
	for i, n := range names {
		out[i] = Dep{Name: n}
	}
	return out
}

var le = binary.LittleEndian

// Build returns the bytes of a thin Mach-O file.
func Build(s Spec) []byte {
	if s.Type == 0 {
		s.Type = Dylib
	}
	if s.CPU == 0 {
		s.CPU = CPUAmd64
	}
	if s.Padding == 0 {
		s.Padding = 512
	}

	var cmds [][]byte
	if s.ID != "" {
		cmds = append(cmds, dylibCmd(0xd, s.ID))
	}
	for _, d := range s.Deps {
		cmd := d.Cmd
		if cmd == 0 {
			cmd = LoadDylib
		}
		cmds = append(cmds, dylibCmd(cmd, d.Name))
	}
	for _, p := range s.RPaths {
		cmds = append(cmds, strCmd(0x8000001c, 12, p))
	}

	const segSize = 72 + 80
	sizeofcmds := segSize
	for _, c := range cmds {
		sizeofcmds += len(c)
	}
	textOff := align(32+sizeofcmds+s.Padding, 16)
	text := bytes.Repeat([]byte{0xc3}, 16)
	total := textOff + len(text)

	var buf bytes.Buffer
	put32(&buf, 0xfeedfacf, s.CPU, 3, s.Type, uint32(len(cmds)+1), uint32(sizeofcmds), 0, 0)

	// LC_SEGMENT_64 __TEXT with one __text section.
	put32(&buf, 0x19, segSize)
	buf.Write(name16("__TEXT"))
	put64(&buf, 0, uint64(total), 0, uint64(total))
	put32(&buf, 5, 5, 1, 0)
	buf.Write(name16("__text"))
	buf.Write(name16("__TEXT"))
	put64(&buf, uint64(textOff), uint64(len(text)))
	put32(&buf, uint32(textOff), 4, 0, 0, 0x80000400, 0, 0, 0)

	for _, c := range cmds {
		buf.Write(c)
	}
	buf.Write(make([]byte, textOff-buf.Len()))
	buf.Write(text)
	return buf.Bytes()
}

// Fat returns a universal file containing the given slices.
func Fat(cpus []uint32, slices ...[]byte) []byte {
	const alignLog = 12
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0xcafebabe))
	binary.Write(&buf, binary.BigEndian, uint32(len(slices)))

	off := align(8+20*len(slices), 1<<alignLog)
	offsets := make([]int, len(slices))
	for i, s := range slices {
		offsets[i] = off
		binary.Write(&buf, binary.BigEndian, []uint32{cpus[i], 3, uint32(off), uint32(len(s)), alignLog})
		off = align(off+len(s), 1<<alignLog)
	}
	for i, s := range slices {
		buf.Write(make([]byte, offsets[i]-buf.Len()))
		buf.Write(s)
	}
	return buf.Bytes()
}

// Write builds a thin file at path, creating parent directories.
func Write(t testing.TB, path string, s Spec) string {
	t.Helper()
	WriteBytes(t, path, Build(s))
	return path
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o755); err != nil {
		t.Fatal(err)
	}
}

func dylibCmd(cmd uint32, name string) []byte {
	c := strCmd(cmd, 24, name)
	le.PutUint32(c[12:], 2)          // timestamp
	le.PutUint32(c[16:], 0x00010000) // current version
	le.PutUint32(c[20:], 0x00010000) // compatibility version
	return c
}

func strCmd(cmd uint32, hdr int, s string) []byte {
	size := align(hdr+len(s)+1, 8)
	c := make([]byte, size)
	le.PutUint32(c[0:], cmd)
	le.PutUint32(c[4:], uint32(size))
	le.PutUint32(c[8:], uint32(hdr))
	copy(c[hdr:], s)
	return c
}

func name16(s string) []byte {
	b := make([]byte, 16)
	copy(b, s)
	return b
}

func put32(buf *bytes.Buffer, vs ...uint32) {
	for _, v := range vs {
		_ = binary.Write(buf, le, v)
	}
}

func put64(buf *bytes.Buffer, vs ...uint64) {
	for _, v := range vs {
		_ = binary.Write(buf, le, v)
	}
}

func align(n, a int) int { return (n + a - 1) / a * a }
