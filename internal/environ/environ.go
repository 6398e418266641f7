// Package environ describes the service's persistence layout.
//
// The service keeps several categories of data (patch files, schema
// definitions, version metadata, search indexes). Each category has a
// directory that the service reads from an environment variable. All default
// directories live under a single mounted volume so operators manage one
// persistence boundary.
//
// Resolution precedence is fixed: a variable present in the environment wins,
// otherwise the built-in default under the volume root applies.
package environ

import (
	"os"
	"path"
	"slices"
)

// A logical persistent-data category.
type Category string

const (
	Patches  Category = "patches"
	Schemas  Category = "schemas"
	Versions Category = "versions"
	Search   Category = "search"
)

// Binding of a category to its environment variable and default location.
type Variable struct {
	Category Category
	Name     string // Environment variable consulted by the service.
	Subdir   string // Default directory relative to the volume root.
}

// Persistence variables in declaration order.
var Variables = []Variable{
	{Category: Patches, Name: "BM_VERSION_PATCH_DIRECTORY", Subdir: "patches"},
	{Category: Schemas, Name: "BM_SCHEMA_EXDSCHEMA_DIRECTORY", Subdir: "exdschema"},
	{Category: Versions, Name: "BM_VERSION_DIRECTORY", Subdir: "versions"},
	{Category: Search, Name: "BM_SEARCH_SQLITE_DIRECTORY", Subdir: "search"},
}

// Credentials the service reads at start. They are supplied when the
// container is started and never written into the image.
var Credentials = []string{
	"BM_HTTP_ADMIN_AUTH_USERNAME",
	"BM_HTTP_ADMIN_AUTH_PASSWORD",
}

// Resolved directory for each category.
type Environment struct {
	Volume string
	Dirs   map[Category]string
}

// Returns the directories used when nothing is overridden.
func Defaults(volume string) Environment {
	return Resolve(volume, func(string) (string, bool) { return "", false })
}

// Resolves each category against lookup, which follows [os.LookupEnv].
//
// A variable that is present, even if empty, is taken verbatim.
func Resolve(volume string, lookup func(string) (string, bool)) Environment {
	env := Environment{
		Volume: volume,
		Dirs:   make(map[Category]string, len(Variables)),
	}
	for _, v := range Variables {
		if value, ok := lookup(v.Name); ok {
			env.Dirs[v.Category] = value
			continue
		}
		env.Dirs[v.Category] = path.Join(volume, v.Subdir)
	}
	return env
}

// Resolves against the process environment.
func FromProcess(volume string) Environment {
	return Resolve(volume, os.LookupEnv)
}

// Formats the environment as "NAME=dir" entries in declaration order, ready
// to be declared on an image.
func (e Environment) Environ() []string {
	out := make([]string, 0, len(Variables))
	for _, v := range Variables {
		out = append(out, v.Name+"="+e.Dirs[v.Category])
	}
	return out
}

// Reports the categories whose directory falls outside the volume. Data in
// these directories is lost when the container is replaced.
func (e Environment) Outside() []Category {
	var out []Category
	for _, v := range Variables {
		dir := path.Clean(e.Dirs[v.Category])
		if dir != e.Volume && !isUnder(dir, e.Volume) {
			out = append(out, v.Category)
		}
	}
	return out
}

// Returns the credential variables missing from lookup.
func MissingCredentials(lookup func(string) (string, bool)) []string {
	var missing []string
	for _, name := range Credentials {
		if v, ok := lookup(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}
	return slices.Clip(missing)
}

func isUnder(dir, root string) bool {
	root = path.Clean(root)
	if root == "/" {
		return path.IsAbs(dir)
	}
	return len(dir) > len(root) && dir[:len(root)] == root && dir[len(root)] == '/'
}
