package wasm

import (
	"bytes"
	"fmt"
)

// Section IDs from the core binary format.
const (
	SectionCustom byte = 0
	SectionType   byte = 1
	SectionImport byte = 2
	SectionFunc   byte = 3
	SectionTable  byte = 4
	SectionMemory byte = 5
	SectionGlobal byte = 6
	SectionExport byte = 7
	SectionStart  byte = 8
)

// Export kinds from the export section.
const (
	ExportFunc   byte = 0
	ExportTable  byte = 1
	ExportMemory byte = 2
	ExportGlobal byte = 3
)

var magic = []byte{0x00, 0x61, 0x73, 0x6d}

// IsModule reports whether data begins with the core Wasm magic and
// version 1 header. Component binaries (layer != 0) are rejected.
func IsModule(data []byte) bool {
	if len(data) < 8 || !bytes.Equal(data[:4], magic) {
		return false
	}
	return data[4] == 0x01 && data[5] == 0x00 && data[6] == 0x00 && data[7] == 0x00
}

// ExportedFunctions returns the names of all exported functions in a core
// module, in declaration order. It walks section framing only and skips
// code; malformed framing is an error.
func ExportedFunctions(data []byte) ([]string, error) {
	if !IsModule(data) {
		return nil, fmt.Errorf("not a core wasm module")
	}

	r := bytes.NewReader(data[8:])
	var names []string
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}
		size, err := ReadLEB128u(r)
		if err != nil {
			return nil, fmt.Errorf("read section size: %w", err)
		}
		if uint32(r.Len()) < size {
			return nil, fmt.Errorf("section %d truncated: %d bytes declared, %d remain", id, size, r.Len())
		}

		if id != SectionExport {
			if _, err := r.Seek(int64(size), 1); err != nil {
				return nil, err
			}
			continue
		}

		count, err := ReadLEB128u(r)
		if err != nil {
			return nil, fmt.Errorf("read export count: %w", err)
		}
		for i := uint32(0); i < count; i++ {
			nameLen, err := ReadLEB128u(r)
			if err != nil {
				return nil, fmt.Errorf("read export name length: %w", err)
			}
			if uint32(r.Len()) < nameLen {
				return nil, fmt.Errorf("export name truncated")
			}
			name := make([]byte, nameLen)
			if _, err := r.Read(name); err != nil {
				return nil, err
			}
			kind, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("read export kind: %w", err)
			}
			if _, err := ReadLEB128u(r); err != nil {
				return nil, fmt.Errorf("read export index: %w", err)
			}
			if kind == ExportFunc {
				names = append(names, string(name))
			}
		}
		return names, nil
	}
	return names, nil
}

// HasExportedFunction reports whether the module exports a function named name.
func HasExportedFunction(data []byte, name string) bool {
	names, err := ExportedFunctions(data)
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
