// Package project loads the kiln.toml file describing the service to package.
//
// Every field has a default matching the service's conventional layout, so
// the file only lists what differs. Relative paths are resolved against the
// directory holding the file.
//
//	name = "boilmaster"
//	binary = "boilmaster"
//	config = "boilmaster.toml"
//
//	[images]
//	toolchain = "docker.io/library/rust:1-bookworm"
//	runtime = "docker.io/library/debian:bookworm-slim"
//
//	[runtime]
//	port = 8080
//	volume = "/app/persist"
//	utilities = ["git"]
//
//	[health]
//	start_period = "45s"
package project
