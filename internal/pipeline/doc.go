// Package pipeline composes the stages that turn a source tree into a runtime
// image for one architecture target.
//
// A plan is an ordered list of four stages:
//
//	base     toolchain image with native build prerequisites (host platform)
//	deps     third-party dependencies compiled from the planner's skeleton
//	compile  application source built on top of the deps image
//	runtime  minimal image for the target platform holding only the binary,
//	         its default configuration, and the shared libraries it links
//
// The base and deps stages are committed to images whose tags are derived
// from their definitions (and, for deps, the recipe digest and triple), so a
// later build with identical inputs skips them. Stages run on the host
// platform except runtime, which runs on the target platform. Everything
// target-specific comes from the target table; nothing in a plan branches on
// architecture at execution time.
//
// [Render] writes the same plan as a Dockerfile for use with other builders.
package pipeline
