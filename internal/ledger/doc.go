// Package ledger records build history in a local SQLite database.
//
// Every target build appends one entry: the target, the recipe digest that
// keyed its dependency layer, the source fingerprint, whether the dependency
// layer came from cache, timing, outcome and the exported artifact. The
// history answers "did that change rebuild dependencies" without consulting
// the container engine.
//
// Connections come from a fixed pool; each connection runs in WAL mode so
// concurrent target builds can record while the CLI reads.
package ledger
