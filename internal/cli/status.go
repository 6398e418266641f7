package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/cruciblehq/kiln/internal/protocol"
)

// Represents the 'kiln status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	var res protocol.StatusResult
	if err := call(ctx, protocol.CmdStatus, nil, &res); err != nil {
		return err
	}

	writeTable(os.Stdout, []string{"FIELD", "VALUE"}, [][]string{
		{"status", status(res.Running, "running")},
		{"version", res.Version},
		{"pid", fmt.Sprint(res.Pid)},
		{"uptime", res.Uptime},
		{"builds", fmt.Sprint(res.Builds)},
		{"active", fmt.Sprint(res.Active)},
	})
	return nil
}

// Represents the 'kiln stop' command.
type StopCmd struct{}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context) error {
	return call(ctx, protocol.CmdShutdown, nil, nil)
}
