package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Performs one liveness check.
//
// A response with status 200 through 399 is healthy. Any other status, a
// transport error, or exceeding timeout returns an error wrapping
// [ErrProbeFailed].
func Probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrProbeFailed, resp.StatusCode)
	}
	return nil
}

// Polls url according to policy until the container turns unhealthy or ctx
// is done.
//
// The first check runs one interval after the call, mirroring container
// engines. onChange, if non-nil, is called on every status transition. The
// returned status is the last one observed.
func Watch(ctx context.Context, client *http.Client, url string, policy Policy, onChange func(Status)) Status {
	monitor := NewMonitor(policy, time.Now())
	status := monitor.Status()

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return status
		case now := <-ticker.C:
			err := Probe(ctx, client, url, policy.Timeout)
			if err != nil {
				slog.Debug("probe failed", "url", url, "error", err)
			}

			next := monitor.Observe(now, err == nil)
			if next != status && onChange != nil {
				onChange(next)
			}
			status = next

			if status == Unhealthy {
				return status
			}
		}
	}
}
