// Package target holds the table of supported compilation targets.
//
// Each entry maps a container platform identifier (as passed by build
// orchestrators in TARGETPLATFORM) to a Rust compilation triple together with
// everything needed to cross-compile for it: the Debian architecture name,
// the multiarch library directory, packages to install, and environment
// overrides. Cross-compilation setup is data, not control flow; the builder
// reads the entry once per target build.
//
// Only two platforms are supported. Any other identifier is a configuration
// error reported before compilation starts:
//
//	t, err := target.Lookup("linux/arm64")
//	if err != nil {
//	    return err // target.ErrUnsupportedPlatform
//	}
//	fmt.Println(t.Triple) // aarch64-unknown-linux-gnu
package target
