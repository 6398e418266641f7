// Package build runs pipeline plans against a container engine.
//
// A release resolves its targets, computes the dependency recipe once and
// builds the shared base stage once. Each target then runs its own stages
// concurrently: the dependency stage (skipped when its committed image
// already exists), the compile stage, and the runtime stage, which is
// checked and exported to the target's output directory. A failure aborts
// only its own target; nothing is exported for a target unless all of its
// stages succeeded.
//
// Step state (environment variables, working directory, shell) is
// accumulated across steps within a stage and reset between stages.
// Cross-stage copies read from containers of the same target.
//
// Example usage:
//
//	res, err := build.Release(ctx, build.NewEngine(rt), build.Options{
//	    Project:   proj,
//	    Platforms: []string{"linux/amd64", "linux/arm64"},
//	})
//	if err != nil {
//	    return err
//	}
package build
