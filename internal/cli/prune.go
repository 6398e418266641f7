package cli

import (
	"context"
	"fmt"
)

// Represents the 'kiln prune' command.
//
// Removes stage containers left behind by interrupted local builds. The
// daemon does this itself when it starts.
type PruneCmd struct{}

func (c *PruneCmd) Run(ctx context.Context) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d container(s)\n", n)
	return nil
}
