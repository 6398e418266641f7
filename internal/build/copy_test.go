package build

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, contents := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func tarNames(t *testing.T, data []byte) map[string]*tar.Header {
	t.Helper()
	names := make(map[string]*tar.Header)
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		if err != nil {
			t.Fatal(err)
		}
		names[hdr.Name] = hdr
	}
}

func TestWriteHostTarExcludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"Cargo.toml":                 "[package]",
		"src/main.rs":                "fn main() {}",
		"target/release/boilmaster":  "stale",
		".git/HEAD":                  "ref: refs/heads/main",
		".kiln/skeleton/Cargo.toml":  "[package]",
		"crates/search/src/lib.rs":   "",
		"crates/search/target/debug": "stale",
	})

	var buf bytes.Buffer
	if err := writeHostTar(&buf, root, "app"); err != nil {
		t.Fatal(err)
	}

	names := tarNames(t, buf.Bytes())
	for _, want := range []string{"app", "app/Cargo.toml", "app/src/main.rs", "app/crates/search/src/lib.rs"} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing %s", want)
		}
	}
	for name := range names {
		for _, dir := range []string{"target", ".git", ".kiln"} {
			if slices.Contains(strings.Split(name, "/"), dir) {
				t.Errorf("excluded entry %s copied", name)
			}
		}
	}
}

func TestWriteHostTarSymlink(t *testing.T) {
	root := writeTree(t, map[string]string{"config/default.toml": "port = 8080"})
	if err := os.Symlink("default.toml", filepath.Join(root, "config", "current.toml")); err != nil {
		t.Skip("symlinks unsupported:", err)
	}

	var buf bytes.Buffer
	if err := writeHostTar(&buf, root, "app"); err != nil {
		t.Fatal(err)
	}

	hdr, ok := tarNames(t, buf.Bytes())["app/config/current.toml"]
	if !ok {
		t.Fatal("symlink not archived")
	}
	if hdr.Typeflag != tar.TypeSymlink || hdr.Linkname != "default.toml" {
		t.Errorf("got type %c link %q, want symlink to default.toml", hdr.Typeflag, hdr.Linkname)
	}
}

func TestWriteHostTarFile(t *testing.T) {
	root := writeTree(t, map[string]string{"boilmaster.toml": "port = 8080"})

	var buf bytes.Buffer
	if err := writeHostTar(&buf, filepath.Join(root, "boilmaster.toml"), "config.toml"); err != nil {
		t.Fatal(err)
	}

	names := tarNames(t, buf.Bytes())
	if len(names) != 1 {
		t.Fatalf("archived %d entries, want 1", len(names))
	}
	hdr, ok := names["config.toml"]
	if !ok {
		t.Fatalf("entries = %v, want config.toml", names)
	}
	if hdr.Size != int64(len("port = 8080")) || hdr.Uid != 0 || hdr.Uname != "" {
		t.Errorf("header = %+v, want root-owned file of the source size", hdr)
	}
}

func TestExecuteCopyHost(t *testing.T) {
	root := writeTree(t, map[string]string{"boilmaster.toml": "port = 8080"})
	ctr := &fakeContainer{engine: newFakeEngine()}

	if err := executeCopy(context.Background(), ctr, "boilmaster.toml boilmaster.toml", "/app", root, nil); err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(ctr.copies, []string{"/app"}) {
		t.Errorf("copies = %v, want [/app]", ctr.copies)
	}
	if !slices.Equal(ctr.entries, []string{"boilmaster.toml"}) {
		t.Errorf("entries = %v, want [boilmaster.toml]", ctr.entries)
	}
}

func TestExecuteCopyStage(t *testing.T) {
	e := newFakeEngine()
	src := &fakeContainer{engine: e}
	dst := &fakeContainer{engine: e}
	stages := map[string]Container{"compile": src}

	err := executeCopy(context.Background(), dst, "compile:/app/target/x86_64-unknown-linux-gnu/release/boilmaster /app/boilmaster", "", "", stages)
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(dst.copies, []string{"/app"}) {
		t.Errorf("copies = %v, want [/app]", dst.copies)
	}
	if !slices.Equal(dst.entries, []string{"boilmaster"}) {
		t.Errorf("entries = %v, want [boilmaster]", dst.entries)
	}
}

func TestExecuteCopyErrors(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		copy string
	}{
		{name: "missing dest", copy: "boilmaster.toml"},
		{name: "missing host file", copy: "absent.toml /app/absent.toml"},
		{name: "unknown stage", copy: "deps:/app/Cargo.lock /app/Cargo.lock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctr := &fakeContainer{engine: newFakeEngine()}
			err := executeCopy(context.Background(), ctr, tt.copy, "/app", root, map[string]Container{})
			if !errors.Is(err, ErrCopy) {
				t.Errorf("got %v, want ErrCopy", err)
			}
		})
	}
}
