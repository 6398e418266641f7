package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/opencontainers/go-digest"
)

// Version substituted for the project's own packages.
const maskedVersion = "0.0.1"

// Kind of build target declared by a package.
type Kind string

const (
	KindLib     Kind = "lib"
	KindBin     Kind = "bin"
	KindBuild   Kind = "build"
	KindTest    Kind = "test"
	KindBench   Kind = "bench"
	KindExample Kind = "example"
)

// A source file cargo expects for a build target, relative to the manifest.
type BuildTarget struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
}

// A normalized Cargo.toml.
type Manifest struct {
	Path     string        `json:"path"`              // Slash-separated path relative to the source root.
	Package  string        `json:"package,omitempty"` // Package name, empty for virtual workspace manifests.
	Contents string        `json:"contents"`          // Canonical TOML with local versions masked.
	Targets  []BuildTarget `json:"targets"`           // Sorted by path.
}

// A verbatim or normalized auxiliary file.
type File struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// Deterministic description of a project's dependency graph.
type Recipe struct {
	Manifests []Manifest `json:"manifests"`
	Lockfile  *File      `json:"lockfile,omitempty"`
	Config    *File      `json:"config,omitempty"`
	Toolchain *File      `json:"toolchain,omitempty"`
}

// Returns the canonical JSON encoding of the recipe.
func (r *Recipe) Bytes() []byte {
	// Only strings, slices and pointers to structs of strings: cannot fail.
	b, _ := json.Marshal(r)
	return b
}

// Content digest of the recipe. Equal recipes always have equal digests.
func (r *Recipe) Digest() digest.Digest {
	return digest.FromBytes(r.Bytes())
}

// Names of the project's own packages, sorted.
func (r *Recipe) LocalPackages() []string {
	var names []string
	for _, m := range r.Manifests {
		if m.Package != "" {
			names = append(names, m.Package)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Whether a lock file was captured.
func (r *Recipe) Locked() bool {
	return r.Lockfile != nil
}

// Writes the recipe as JSON to path.
func (r *Recipe) Save(path string) error {
	if err := os.WriteFile(path, r.Bytes(), 0644); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	return nil
}

// Reads a recipe previously written by [Recipe.Save].
func Load(path string) (*Recipe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	var r Recipe
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: recipe %s: %w", ErrMalformedManifest, path, err)
	}
	return &r, nil
}

// Writes a skeleton project into dir.
//
// Manifests, lock file, configuration and toolchain file are written as
// captured. Every build target gets a stub source: an empty library or an
// empty main function. Compiling the skeleton builds all dependencies and
// trivial local crates.
func (r *Recipe) Materialize(dir string) error {
	for _, m := range r.Manifests {
		if err := writeFile(dir, m.Path, m.Contents); err != nil {
			return err
		}
		base := filepath.Dir(filepath.FromSlash(m.Path))
		for _, t := range m.Targets {
			if err := writeFile(dir, filepath.ToSlash(filepath.Join(base, t.Path)), stub(t.Kind)); err != nil {
				return err
			}
		}
	}

	for _, f := range []*File{r.Lockfile, r.Config, r.Toolchain} {
		if f == nil {
			continue
		}
		if err := writeFile(dir, f.Path, f.Contents); err != nil {
			return err
		}
	}
	return nil
}

// Source used in place of a build target.
func stub(kind Kind) string {
	if kind == KindLib {
		return ""
	}
	return "fn main() {}\n"
}

func writeFile(root, rel, contents string) error {
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	return nil
}
