package macho

import (
	"debug/macho"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Inspector reads the linkage information of a binary.
type Inspector interface {
	Inspect(path string) (*File, error)
}

// FileInspector reads binaries from disk.
type FileInspector struct{}

// Inspect parses path. It returns an error wrapping [ErrNotMachO] if the
// file is not a Mach-O binary.
func (FileInspector) Inspect(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil || !isMachOHeader(hdr[:]) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotMachO)
	}

	out := &File{Path: path}
	if binary.BigEndian.Uint32(hdr[:]) == magicFat {
		ff, err := macho.NewFatFile(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out.Fat = true
		for _, arch := range ff.Arches {
			readSlice(out, arch.File)
		}
		return out, nil
	}

	mf, err := macho.NewFile(r)
	if err != nil {
		var fe *macho.FormatError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("%s: %w: %v", path, ErrNotMachO, err)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	readSlice(out, mf)
	return out, nil
}

func readSlice(out *File, mf *macho.File) {
	out.Archs = append(out.Archs, archName(mf.Cpu))
	for _, l := range mf.Loads {
		raw := l.Raw()
		if len(raw) < 12 {
			continue
		}
		cmd := mf.ByteOrder.Uint32(raw)
		switch {
		case cmd == lcIDDylib:
			if out.InstallName == "" {
				out.InstallName = commandString(raw, mf.ByteOrder)
			}
		case cmd == lcRPath:
			out.addRPath(commandString(raw, mf.ByteOrder))
		default:
			if kind, ok := loadKind(cmd); ok {
				out.addDependency(Dependency{Name: commandString(raw, mf.ByteOrder), Kind: kind})
			}
		}
	}
}

// commandString returns the string a dylib or rpath command points at. The
// offset field sits right after cmd and cmdsize in both layouts.
func commandString(raw []byte, bo binary.ByteOrder) string {
	off := bo.Uint32(raw[8:])
	if off >= uint32(len(raw)) {
		return ""
	}
	return cstring(raw[off:])
}

func archName(cpu macho.Cpu) string {
	switch cpu {
	case macho.CpuAmd64:
		return "x86_64"
	case macho.CpuArm64:
		return "arm64"
	case macho.Cpu386:
		return "i386"
	case macho.CpuArm:
		return "arm"
	case macho.CpuPpc:
		return "ppc"
	case macho.CpuPpc64:
		return "ppc64"
	}
	return cpu.String()
}
