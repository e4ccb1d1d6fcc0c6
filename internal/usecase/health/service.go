package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the pipeline still answers, with reduced quality.
	Degraded Status = "degraded"
	// Unhealthy indicates the service cannot answer at all.
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

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db  DBPinger
	llm LLMChecker
}

// New creates a Service. llm can be nil when no provider is configured.
func New(db DBPinger, llm LLMChecker) *Service {
	return &Service{db: db, llm: llm}
}

// Check runs health checks against all components. A database failure
// makes the service Unhealthy: retrieval is impossible without it. An
// LLM failure alone is Degraded, since answers fall back to extracted
// passages.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	status := Healthy
	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	if s.llm != nil {
		if err := s.llm.HealthCheck(ctx); err != nil {
			checks["llm"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["llm"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
