package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates a required component is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const defaultProbeTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Check is one named probe. Required probes turn the report Unhealthy.
type Check struct {
	Name     string
	Probe    func(ctx context.Context) error
	Required bool
}

// Database builds the required store check.
func Database(p Pinger) Check {
	return Check{Name: "database", Probe: p.Ping, Required: true}
}

// Provider builds an optional check for a remote provider.
func Provider(name string, p Prober) Check {
	return Check{Name: name, Probe: p.HealthCheck}
}

// Service coordinates health checks.
type Service struct {
	checks  []Check
	timeout time.Duration
}

// New creates a Service running checks in order.
func New(checks ...Check) *Service {
	return &Service{checks: checks, timeout: defaultProbeTimeout}
}

// Check runs every probe, each bounded by the probe timeout.
func (s *Service) Check(ctx context.Context) Report {
	report := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.checks))}
	for _, c := range s.checks {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.Probe(pctx)
		cancel()

		if err == nil {
			report.Checks[c.Name] = CheckOK
			continue
		}
		report.Checks[c.Name] = CheckError
		switch {
		case c.Required:
			report.Status = Unhealthy
		case report.Status == Healthy:
			report.Status = Degraded
		}
	}
	return report
}
