// Package runtime manages build containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon and resolves stage base images:
// OCI archives are imported, local records (committed stages) are used as
// they are, and registry references are pulled for the requested platform.
// Containers are created from the image with a fresh snapshot and kept alive
// by a long-running task.
//
// Each [Container] accepts commands, tar streams in and out, and file reads.
// When a stage finishes, its filesystem diff is either committed to a new
// image record, so later builds can start from it, or exported as an OCI
// archive with the final image configuration. Destroy a container when it is
// no longer needed to release its snapshot and task. Containers carry the
// [LabelManaged] label, and [Runtime.Prune] removes any that a killed
// process left behind.
//
// Command output is logged line by line at debug level, tagged with the
// container ID, while it runs.
//
// Example usage:
//
//	rt, err := runtime.New("", "kiln", "")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "debian:bookworm-slim", "svc-runtime", "linux/arm64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	path, err := ctr.Export(ctx, runtime.ExportOptions{Dir: "dist"})
package runtime
