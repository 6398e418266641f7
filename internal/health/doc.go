// Package health defines the liveness contract advertised by runtime images.
//
// A [Policy] names the probed path and port and the polling parameters an
// orchestrator applies: a start period during which failures are tolerated,
// the interval between checks, a per-check timeout, and the number of
// consecutive failures that mark the container unhealthy. The image only
// declares the policy; the service implements the endpoint.
//
// [Monitor] evaluates observations against a policy the same way container
// engines do, and [Watch] drives it with real HTTP probes for operators who
// want to check a running container from the outside.
package health
