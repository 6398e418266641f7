// Package assemble guards what goes into the runtime image.
//
// Before a runtime stage is executed, [Validate] checks its definition: one
// binary taken from the compile stage, an entrypoint pointing at it, and no
// toolchain directories copied in. After the stage runs, [CheckELF] confirms
// that the binary and every shared library were built for the target's
// machine, so an image never pairs an arm64 binary with an x86-64 library.
package assemble
