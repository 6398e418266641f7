// Package planner derives a dependency recipe from a Cargo source tree.
//
// A [Recipe] captures only what determines how third-party dependencies are
// compiled: every Cargo.toml, the lock file, Cargo configuration, the
// toolchain file, and the set of build targets each package declares.
// Application source never enters it, and versions of the project's own
// packages are masked, so editing code or bumping the release version leaves
// the recipe, and therefore the dependency cache, untouched.
//
// Manifests are parsed and re-encoded, which makes the recipe insensitive to
// formatting and comments. A malformed manifest fails planning before any
// compilation is attempted.
//
// The recipe can be materialized as a skeleton project whose stub sources
// compile to nothing, so building the skeleton compiles dependencies alone:
//
//	recipe, err := planner.Plan("./service")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(recipe.Digest()) // sha256:...
//	err = recipe.Materialize(skeletonDir)
package planner
