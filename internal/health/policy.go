package health

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Polling policy for the liveness check.
type Policy struct {
	Path        string        // Liveness path served by the service.
	Port        int           // Port the service listens on.
	StartPeriod time.Duration // Grace period before failures count.
	Interval    time.Duration // Time between checks.
	Timeout     time.Duration // Per-check timeout.
	Retries     int           // Consecutive failures before unhealthy.
}

// Returns the policy used when the project does not override it.
func DefaultPolicy() Policy {
	return Policy{
		Path:        "/health/live",
		Port:        8080,
		StartPeriod: 45 * time.Second,
		Interval:    5 * time.Second,
		Timeout:     5 * time.Second,
		Retries:     3,
	}
}

// Checks that the policy can be declared on an image.
func (p Policy) Validate() error {
	switch {
	case !strings.HasPrefix(p.Path, "/"):
		return fmt.Errorf("%w: path %q must be absolute", ErrInvalidPolicy, p.Path)
	case p.Port <= 0 || p.Port > math.MaxUint16:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPolicy, p.Port)
	case p.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidPolicy)
	case p.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidPolicy)
	case p.StartPeriod < 0:
		return fmt.Errorf("%w: start period must not be negative", ErrInvalidPolicy)
	case p.Retries < 1:
		return fmt.Errorf("%w: retries must be at least 1", ErrInvalidPolicy)
	}
	return nil
}

// Returns the probe URL for a service reachable at host.
func (p Policy) URL(host string) string {
	return "http://" + host + ":" + strconv.Itoa(p.Port) + p.Path
}

// Returns the check command run inside the container.
//
// The command uses curl, so images declaring this policy must install it.
func (p Policy) Command() []string {
	secs := int(math.Ceil(p.Timeout.Seconds()))
	return []string{
		"CMD-SHELL",
		fmt.Sprintf("curl -fsS --max-time %d %s || exit 1", secs, p.URL("localhost")),
	}
}

// Returns the executable the check command depends on.
func (p Policy) Requires() string {
	return "curl"
}
