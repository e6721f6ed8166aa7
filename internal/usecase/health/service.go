package health

import (
	"context"
	"time"
)

// Status is the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an auxiliary component failed; queries may still be served.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector database is unreachable.
	Unhealthy Status = "error"
)

// CheckResult is an individual component outcome.
type CheckResult string

const (
	// CheckOK indicates a passing check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing check.
	CheckError CheckResult = "error"
	// CheckSkipped marks a component not used in the current mode.
	CheckSkipped CheckResult = "skipped"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

// Report aggregates check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	catalog   CatalogCounter
	timeout   time.Duration
}

// New creates a Service. Any collaborator may be nil: db is nil for the in-memory backend.
func New(db DBPinger, embedding EmbeddingChecker, catalog CatalogCounter) *Service {
	return &Service{db: db, embedding: embedding, catalog: catalog, timeout: DefaultCheckTimeout}
}

// Check runs every configured check sequentially.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		"database":  CheckSkipped,
		"embedding": CheckSkipped,
		"catalog":   CheckSkipped,
	}

	if s.db != nil {
		checks["database"] = s.run(ctx, s.db.Ping)
	}
	if s.embedding != nil {
		checks["embedding"] = s.run(ctx, s.embedding.HealthCheck)
	}
	if s.catalog != nil {
		checks["catalog"] = s.run(ctx, func(context.Context) error {
			_, _, err := s.catalog.Count()
			return err
		})
	}

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == "database" {
			status = Unhealthy
			break
		}
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
