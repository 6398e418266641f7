package assemble

import (
	"debug/elf"
	"fmt"
	"io"
)

// Verifies that r holds an ELF file for machine.
func CheckELF(r io.ReaderAt, want elf.Machine) error {
	got, err := machine(r)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: built for %s, want %s", ErrArchMismatch, got, want)
	}
	return nil
}

// Returns the machine r was built for.
func machine(r io.ReaderAt) (elf.Machine, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return elf.EM_NONE, fmt.Errorf("%w: %w", ErrNotELF, err)
	}
	defer f.Close()
	return f.Machine, nil
}
