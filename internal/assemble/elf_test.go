package assemble

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"testing"
)

// Returns a minimal little-endian ELF64 executable header for machine.
func fullHeader(machine elf.Machine) []byte {
	h := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Ehsize:    64,
		Phentsize: 56,
		Shentsize: 64,
	}
	copy(h.Ident[:], []byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)})

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}

func TestCheckELF(t *testing.T) {
	tests := []struct {
		name    string
		file    []byte
		machine elf.Machine
		want    error
	}{
		{name: "x86-64 match", file: fullHeader(elf.EM_X86_64), machine: elf.EM_X86_64},
		{name: "aarch64 match", file: fullHeader(elf.EM_AARCH64), machine: elf.EM_AARCH64},
		{name: "arm64 binary for x86-64", file: fullHeader(elf.EM_AARCH64), machine: elf.EM_X86_64, want: ErrArchMismatch},
		{name: "x86-64 library for arm64", file: fullHeader(elf.EM_X86_64), machine: elf.EM_AARCH64, want: ErrArchMismatch},
		{name: "not elf", file: []byte("#!/bin/sh\necho hi\n"), machine: elf.EM_X86_64, want: ErrNotELF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckELF(bytes.NewReader(tt.file), tt.machine)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMachine(t *testing.T) {
	m, err := machine(bytes.NewReader(fullHeader(elf.EM_AARCH64)))
	if err != nil {
		t.Fatal(err)
	}
	if m != elf.EM_AARCH64 {
		t.Fatalf("machine = %v", m)
	}
}
