package planner

import (
	"slices"

	"github.com/pelletier/go-toml/v2"
)

// Parses and re-encodes a lock file, masking the versions of local packages.
//
// Local packages are those without a "source" (they are not fetched from a
// registry or git) whose name belongs to the project.
func normalizeLockfile(data []byte, local []string) (string, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return "", err
	}

	packages, _ := doc["package"].([]any)
	for _, p := range packages {
		pkg, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if _, remote := pkg["source"]; remote {
			continue
		}
		name, _ := pkg["name"].(string)
		if slices.Contains(local, name) {
			pkg["version"] = maskedVersion
		}
	}

	return canonicalizeDoc(doc)
}

// Parses TOML and re-encodes it with sorted keys and no comments.
func canonicalize(data []byte) (string, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	return canonicalizeDoc(doc)
}

func canonicalizeDoc(doc map[string]any) (string, error) {
	out, err := toml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
