package cli

import (
	"context"
	"os"
	"strings"

	"github.com/cruciblehq/kiln/internal/target"
)

// Represents the 'kiln targets' command.
type TargetsCmd struct{}

// Executes the targets command.
func (c *TargetsCmd) Run(ctx context.Context) error {
	host := target.Host()

	var rows [][]string
	for _, t := range target.All() {
		build := "cross"
		if t.IsNative(host) {
			build = "native"
		}
		rows = append(rows, []string{
			t.Platform,
			t.Triple,
			strings.TrimPrefix(t.Machine.String(), "EM_"),
			build,
			t.LibDir(),
		})
	}

	writeTable(os.Stdout, []string{"PLATFORM", "TRIPLE", "MACHINE", "BUILD", "LIBDIR"}, rows)
	return nil
}
