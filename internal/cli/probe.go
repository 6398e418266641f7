package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/health"
)

// Represents the 'kiln probe' command.
type ProbeCmd struct {
	URL  string `arg:"" optional:"" help:"Liveness URL. Defaults to the project's health path on localhost."`
	Once bool   `help:"Check once instead of watching."`
}

// Executes the probe command.
//
// Watches the service with the project's health policy until it turns
// unhealthy or the command is interrupted.
func (c *ProbeCmd) Run(ctx context.Context) error {
	proj, err := loadProject()
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	policy := proj.HealthPolicy()
	url := or(c.URL, policy.URL("localhost"))
	client := &http.Client{}

	if c.Once {
		if err := health.Probe(ctx, client, url, policy.Timeout); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, status(true, string(health.Healthy)))
		return nil
	}

	slog.Info("watching", "url", url, "interval", policy.Interval, "start_period", policy.StartPeriod)

	final := health.Watch(ctx, client, url, policy, func(s health.Status) {
		fmt.Fprintln(os.Stdout, status(s != health.Unhealthy, string(s)))
	})
	if final == health.Unhealthy {
		return fmt.Errorf("%w: %s", health.ErrUnhealthy, url)
	}
	return nil
}
