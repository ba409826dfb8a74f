package macho

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"slices"
)

var (
	// ErrNotMachO is returned for files that are not Mach-O binaries.
	ErrNotMachO = errors.New("not a Mach-O file")

	// ErrNoRoom is returned by [Rewriter] when a load command cannot grow
	// because the header has too little padding.
	ErrNoRoom = errors.New("not enough header padding for load command")
)

// Load command identifiers.
const (
	lcReqDyld         = 0x80000000
	lcLoadDylib       = 0xc
	lcIDDylib         = 0xd
	lcLoadWeakDylib   = 0x18 | lcReqDyld
	lcRPath           = 0x1c | lcReqDyld
	lcReexportDylib   = 0x1f | lcReqDyld
	lcLazyLoadDylib   = 0x20
	lcLoadUpwardDylib = 0x23 | lcReqDyld
	lcSegment         = 0x1
	lcSegment64       = 0x19
	dylibCommandSize  = 24
	rpathCommandSize  = 12
	magic32           = 0xfeedface
	magic64           = 0xfeedfacf
	cigam32           = 0xcefaedfe
	cigam64           = 0xcffaedfe
	magicFat          = 0xcafebabe
	headerSize32      = 28
	headerSize64      = 32
	fatHeaderSize     = 8
	fatArchSize       = 20
	maxFatArches      = 20
)

// LoadKind is how a dependency is linked.
type LoadKind int

const (
	Load LoadKind = iota
	Weak
	Reexport
	Lazy
	Upward
)

func (k LoadKind) String() string {
	switch k {
	case Load:
		return "load"
	case Weak:
		return "weak"
	case Reexport:
		return "reexport"
	case Lazy:
		return "lazy"
	case Upward:
		return "upward"
	}
	return "unknown"
}

func loadKind(cmd uint32) (LoadKind, bool) {
	switch cmd {
	case lcLoadDylib:
		return Load, true
	case lcLoadWeakDylib:
		return Weak, true
	case lcReexportDylib:
		return Reexport, true
	case lcLazyLoadDylib:
		return Lazy, true
	case lcLoadUpwardDylib:
		return Upward, true
	}
	return 0, false
}

// Dependency is one library load command.
type Dependency struct {
	Name string
	Kind LoadKind
}

// File is the linkage information of a Mach-O file. For universal files
// the dependencies and run paths of all slices are merged, keeping the
// order of first occurrence.
type File struct {
	Path         string
	InstallName  string
	Dependencies []Dependency
	RPaths       []string
	Archs        []string
	Fat          bool
}

// DependencyNames returns the library paths in load-command order.
func (f *File) DependencyNames() []string {
	out := make([]string, 0, len(f.Dependencies))
	for _, d := range f.Dependencies {
		out = append(out, d.Name)
	}
	return out
}

func (f *File) addDependency(d Dependency) {
	if !slices.ContainsFunc(f.Dependencies, func(e Dependency) bool { return e.Name == d.Name }) {
		f.Dependencies = append(f.Dependencies, d)
	}
}

func (f *File) addRPath(p string) {
	if !slices.Contains(f.RPaths, p) {
		f.RPaths = append(f.RPaths, p)
	}
}

// IsMachO reports whether path starts with a thin or fat Mach-O magic.
// Java class files share the fat magic; they are told apart by the arch
// count.
func IsMachO(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var hdr [8]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return false
	}
	return isMachOHeader(hdr[:])
}

func isMachOHeader(hdr []byte) bool {
	switch binary.BigEndian.Uint32(hdr) {
	case magic32, magic64, cigam32, cigam64:
		return true
	case magicFat:
		n := binary.BigEndian.Uint32(hdr[4:])
		return n > 0 && n < maxFatArches
	}
	return false
}

// cstring returns the NUL-terminated string at the start of b.
func cstring(b []byte) string {
	if i := slices.Index(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
