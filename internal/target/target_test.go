package target

import (
	"debug/elf"
	"errors"
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		platform string
		triple   string
		machine  elf.Machine
		wantErr  bool
	}{
		{platform: "linux/amd64", triple: "x86_64-unknown-linux-gnu", machine: elf.EM_X86_64},
		{platform: "linux/arm64", triple: "aarch64-unknown-linux-gnu", machine: elf.EM_AARCH64},
		{platform: " linux/amd64", wantErr: true},
		{platform: "linux/arm64\n", wantErr: true},
		{platform: "linux/aarch64", wantErr: true},
		{platform: "linux/x86_64", wantErr: true},
		{platform: "linux/arm/v7", wantErr: true},
		{platform: "windows/amd64", wantErr: true},
		{platform: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			got, err := Lookup(tt.platform)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedPlatform) {
					t.Fatalf("err = %v, want ErrUnsupportedPlatform", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Triple != tt.triple {
				t.Errorf("triple = %q, want %q", got.Triple, tt.triple)
			}
			if got.Machine != tt.machine {
				t.Errorf("machine = %v, want %v", got.Machine, tt.machine)
			}
		})
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	a, _ := Lookup(PlatformARM64)
	a.Env["PKG_CONFIG_PATH"] = "mutated"
	a.Packages[0] = "mutated"

	b, _ := Lookup(PlatformARM64)
	if b.Env["PKG_CONFIG_PATH"] == "mutated" || b.Packages[0] == "mutated" {
		t.Fatal("Lookup leaked a reference to the table")
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name                     string
		explicit, build, targetP string
		want                     string
		wantErr                  error
	}{
		{name: "explicit wins", explicit: "linux/arm64", build: "linux/amd64", targetP: "linux/amd64", want: "linux/arm64"},
		{name: "target platform", targetP: "linux/arm64", build: "linux/amd64", want: "linux/arm64"},
		{name: "build platform fallback", build: "linux/amd64", want: "linux/amd64"},
		{name: "nothing supplied", wantErr: ErrUnspecifiedPlatform},
		{name: "blank supplied", explicit: "  ", wantErr: ErrUnspecifiedPlatform},
		{name: "padded explicit", explicit: "linux/arm64 ", wantErr: ErrUnsupportedPlatform},
		{name: "unsupported explicit", explicit: "linux/riscv64", targetP: "linux/amd64", wantErr: ErrUnsupportedPlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.explicit, tt.build, tt.targetP)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Platform != tt.want {
				t.Fatalf("platform = %q, want %q", got.Platform, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	all, err := Resolve(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}

	dedup, err := Resolve([]string{"linux/arm64", "linux/arm64"})
	if err != nil {
		t.Fatal(err)
	}
	if len(dedup) != 1 {
		t.Fatalf("len = %d, want 1", len(dedup))
	}

	if _, err := Resolve([]string{"linux/amd64", "linux/s390x"}); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("err = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestLibPathMatchesArchitecture(t *testing.T) {
	for _, tgt := range All() {
		lib := tgt.LibPath("libz.so.1")
		if !strings.Contains(lib, tgt.Multiarch) {
			t.Errorf("%s: lib path %q does not use %q", tgt.Platform, lib, tgt.Multiarch)
		}
		if !strings.HasPrefix(tgt.Triple, strings.SplitN(tgt.Multiarch, "-", 2)[0]) {
			t.Errorf("%s: multiarch %q does not match triple %q", tgt.Platform, tgt.Multiarch, tgt.Triple)
		}
	}
}

func TestSlug(t *testing.T) {
	tgt, _ := Lookup(PlatformAMD64)
	if tgt.Slug() != "linux-amd64" {
		t.Fatalf("slug = %q", tgt.Slug())
	}
}
