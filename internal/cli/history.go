package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/ledger"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/protocol"
)

// Represents the 'kiln history' command.
type HistoryCmd struct {
	Limit    int    `short:"n" default:"20" help:"Entries to show."`
	Platform string `short:"P" help:"Show only the last build of this platform." placeholder:"PLATFORM"`
	Daemon   bool   `help:"Read history from the kiln daemon."`
}

// Executes the history command.
func (c *HistoryCmd) Run(ctx context.Context) error {
	entries, err := c.entries(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		detail := e.Output
		if e.Error != "" {
			detail = e.Error
		}
		rows = append(rows, []string{
			e.Started.Local().Format(time.DateTime),
			e.Platform,
			status(e.Status == ledger.Succeeded, string(e.Status)),
			shortDigest(e.Recipe),
			e.Duration.Truncate(time.Second).String(),
			detail,
		})
	}

	writeTable(os.Stdout, []string{"STARTED", "PLATFORM", "STATUS", "RECIPE", "TIME", "OUTPUT"}, rows)
	return nil
}

func (c *HistoryCmd) entries(ctx context.Context) ([]ledger.Entry, error) {
	if c.Daemon {
		var res protocol.HistoryResult
		if err := call(ctx, protocol.CmdHistory, &protocol.HistoryRequest{Limit: c.Limit, Platform: c.Platform}, &res); err != nil {
			return nil, err
		}
		return res.Entries, nil
	}

	l, err := ledger.Open(paths.Ledger())
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return build.History(ctx, l, c.Platform, c.Limit)
}

// Returns the first 12 characters of a digest's encoded part.
func shortDigest(d string) string {
	_, enc, ok := strings.Cut(d, ":")
	if !ok {
		enc = d
	}
	if len(enc) > 12 {
		return enc[:12]
	}
	return enc
}
