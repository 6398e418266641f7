package planner

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const manifestName = "Cargo.toml"

// Directories never searched for manifests.
var skippedDirs = map[string]bool{
	"target":       true,
	"node_modules": true,
}

// Toolchain files recognised at the source root, in cargo's precedence order.
var toolchainFiles = []string{"rust-toolchain.toml", "rust-toolchain"}

// Derives the recipe for the source tree rooted at root.
//
// Every Cargo.toml below root is captured, skipping build output, VCS and
// other hidden directories. Fails with [ErrMissingManifest] when root has no
// Cargo.toml and with [ErrMalformedManifest] when any manifest or the lock
// file cannot be parsed.
func Plan(root string) (*Recipe, error) {
	if _, err := os.Stat(filepath.Join(root, manifestName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingManifest, root)
		}
		return nil, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}

	var recipe Recipe

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != manifestName {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		m, err := readManifest(root, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		recipe.Manifests = append(recipe.Manifests, *m)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMalformedManifest) || errors.Is(err, ErrFileSystem) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}

	slices.SortFunc(recipe.Manifests, func(a, b Manifest) int {
		return strings.Compare(a.Path, b.Path)
	})

	if recipe.Lockfile, err = readLockfile(root, recipe.LocalPackages()); err != nil {
		return nil, err
	}
	if recipe.Config, err = readConfig(root); err != nil {
		return nil, err
	}
	if recipe.Toolchain, err = readVerbatim(root, toolchainFiles...); err != nil {
		return nil, err
	}

	slog.Debug("recipe planned",
		"root", root,
		"manifests", len(recipe.Manifests),
		"locked", recipe.Locked(),
		"digest", recipe.Digest(),
	)

	return &recipe, nil
}

// Whether a directory is excluded from the manifest search.
func skipDir(name string) bool {
	return skippedDirs[name] || strings.HasPrefix(name, ".")
}

// Reads, parses, and normalizes the lock file, if present.
func readLockfile(root string, local []string) (*File, error) {
	data, err := os.ReadFile(filepath.Join(root, "Cargo.lock"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}

	contents, err := normalizeLockfile(data, local)
	if err != nil {
		return nil, fmt.Errorf("%w: Cargo.lock: %w", ErrMalformedManifest, err)
	}
	return &File{Path: "Cargo.lock", Contents: contents}, nil
}

// Reads and canonicalizes the Cargo configuration, if present.
func readConfig(root string) (*File, error) {
	for _, name := range []string{".cargo/config.toml", ".cargo/config"} {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileSystem, err)
		}

		contents, err := canonicalize(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedManifest, name, err)
		}
		return &File{Path: name, Contents: contents}, nil
	}
	return nil, nil
}

// Reads the first existing file among names, unmodified.
func readVerbatim(root string, names ...string) (*File, error) {
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileSystem, err)
		}
		return &File{Path: name, Contents: string(data)}, nil
	}
	return nil, nil
}
