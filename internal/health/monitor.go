package health

import "time"

// Health verdict for a container.
type Status string

const (
	Starting  Status = "starting"
	Healthy   Status = "healthy"
	Unhealthy Status = "unhealthy"
)

// Applies a policy to a sequence of probe observations.
//
// Failures inside the start period are ignored. A success at any time marks
// the container healthy and ends the start period. After it, Retries
// consecutive failures mark the container unhealthy; a success resets the
// count.
type Monitor struct {
	policy  Policy
	started time.Time
	status  Status
	streak  int
	settled bool
}

// Creates a monitor for a container started at the given time.
func NewMonitor(policy Policy, started time.Time) *Monitor {
	return &Monitor{
		policy:  policy,
		started: started,
		status:  Starting,
	}
}

// Records a probe result taken at the given time and returns the new status.
func (m *Monitor) Observe(at time.Time, ok bool) Status {
	if ok {
		m.streak = 0
		m.settled = true
		m.status = Healthy
		return m.status
	}

	if !m.settled && at.Sub(m.started) < m.policy.StartPeriod {
		return m.status
	}

	m.streak++
	if m.streak >= m.policy.Retries {
		m.status = Unhealthy
	}
	return m.status
}

// Returns the current status.
func (m *Monitor) Status() Status {
	return m.status
}

// Returns the number of consecutive counted failures.
func (m *Monitor) Failures() int {
	return m.streak
}
