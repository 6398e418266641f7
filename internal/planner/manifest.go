package planner

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Dependency tables whose path dependencies carry version requirements.
var dependencyTables = []string{"dependencies", "dev-dependencies", "build-dependencies"}

// Declared target arrays and the directory holding their default sources.
var declaredTargets = []struct {
	key  string
	kind Kind
	dir  string
}{
	{"bin", KindBin, "src/bin"},
	{"test", KindTest, "tests"},
	{"bench", KindBench, "benches"},
	{"example", KindExample, "examples"},
}

// Reads a manifest at rel (slash-separated, relative to root) and normalizes it.
func readManifest(root, rel string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedManifest, rel, err)
	}

	dir := filepath.Join(root, filepath.Dir(filepath.FromSlash(rel)))

	m := &Manifest{Path: rel}
	if pkg, ok := table(doc, "package"); ok {
		name, _ := pkg["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("%w: %s: package has no name", ErrMalformedManifest, rel)
		}
		m.Package = name
		m.Targets = discoverTargets(doc, pkg, dir)
	}

	maskVersions(doc)

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedManifest, rel, err)
	}
	m.Contents = string(out)

	return m, nil
}

// Replaces every version that changes with a release of the project itself:
// the package version, the workspace package version, and version
// requirements on path dependencies.
func maskVersions(doc map[string]any) {
	if pkg, ok := table(doc, "package"); ok {
		if _, isString := pkg["version"].(string); isString {
			pkg["version"] = maskedVersion
		}
	}

	if ws, ok := table(doc, "workspace"); ok {
		if wpkg, ok := table(ws, "package"); ok {
			if _, isString := wpkg["version"].(string); isString {
				wpkg["version"] = maskedVersion
			}
		}
		maskPathDependencies(ws, "dependencies")
	}

	for _, key := range dependencyTables {
		maskPathDependencies(doc, key)
	}

	if targets, ok := table(doc, "target"); ok {
		for _, cfg := range targets {
			if t, ok := cfg.(map[string]any); ok {
				for _, key := range dependencyTables {
					maskPathDependencies(t, key)
				}
			}
		}
	}
}

// Masks version requirements of path dependencies in parent[key].
func maskPathDependencies(parent map[string]any, key string) {
	deps, ok := table(parent, key)
	if !ok {
		return
	}
	for _, dep := range deps {
		spec, ok := dep.(map[string]any)
		if !ok {
			continue
		}
		if _, isPath := spec["path"]; !isPath {
			continue
		}
		if _, hasVersion := spec["version"].(string); hasVersion {
			spec["version"] = maskedVersion
		}
	}
}

// Lists the source files cargo will look for when building the package.
//
// Explicit declarations are honoured first. Of the conventional locations
// only the crate roots src/lib.rs, src/main.rs and build.rs are probed;
// auto-discovered binaries, examples and tests are left out so that adding
// one keeps the recipe. Only the existence of files is consulted, never
// their contents.
func discoverTargets(doc, pkg map[string]any, dir string) []BuildTarget {
	seen := map[string]bool{}
	var targets []BuildTarget
	add := func(kind Kind, p string) {
		p = path.Clean(filepath.ToSlash(p))
		if seen[p] {
			return
		}
		seen[p] = true
		targets = append(targets, BuildTarget{Kind: kind, Path: p})
	}

	if lib, ok := table(doc, "lib"); ok {
		if p, ok := lib["path"].(string); ok {
			add(KindLib, p)
		}
	}
	if exists(dir, "src/lib.rs") {
		add(KindLib, "src/lib.rs")
	}

	name, _ := pkg["name"].(string)
	for _, decl := range declaredTargets {
		entries, _ := doc[decl.key].([]any)
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if p, ok := entry["path"].(string); ok {
				add(decl.kind, p)
				continue
			}
			tname, _ := entry["name"].(string)
			if tname == "" {
				continue
			}
			if decl.kind == KindBin && tname == name {
				add(KindBin, "src/main.rs")
				continue
			}
			add(decl.kind, decl.dir+"/"+tname+".rs")
		}
	}

	if exists(dir, "src/main.rs") {
		add(KindBin, "src/main.rs")
	}

	switch build := pkg["build"].(type) {
	case string:
		add(KindBuild, build)
	case bool:
		// build = false disables the build script.
	default:
		if exists(dir, "build.rs") {
			add(KindBuild, "build.rs")
		}
	}

	slices.SortFunc(targets, func(a, b BuildTarget) int {
		return strings.Compare(a.Path, b.Path)
	})
	return targets
}

// Returns the sub-table doc[key], if it is a table.
func table(doc map[string]any, key string) (map[string]any, bool) {
	t, ok := doc[key].(map[string]any)
	return t, ok
}

func exists(dir, rel string) bool {
	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}
