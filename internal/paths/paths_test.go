package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsScopedToProgram(t *testing.T) {
	for name, p := range map[string]string{
		"runtime": Runtime(),
		"work":    Work(),
		"data":    Data(),
	} {
		if !strings.Contains(p, programName) {
			t.Errorf("%s path %q does not contain %q", name, p, programName)
		}
	}
}

func TestFilesLiveInTheirDirectories(t *testing.T) {
	if filepath.Dir(Socket()) != Runtime() {
		t.Errorf("socket %q not under %q", Socket(), Runtime())
	}
	if filepath.Dir(PIDFile()) != Runtime() {
		t.Errorf("pid file %q not under %q", PIDFile(), Runtime())
	}
	if filepath.Dir(Ledger()) != Data() {
		t.Errorf("ledger %q not under %q", Ledger(), Data())
	}
}
