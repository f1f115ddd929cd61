// Package health aggregates dependency probes for the health endpoint.
package health

import (
	"context"
	"time"

	"github.com/campusmatch/matchagent/internal/domain"
)

// Pinger checks storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is one dependency's probe result.
type Status struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report is the aggregate health answer.
type Report struct {
	Healthy  bool              `json:"healthy"`
	Services map[string]Status `json:"services"`
}

// Service probes the store and the embedding provider.
type Service struct {
	store    Pinger
	embedder domain.HealthChecker
	timeout  time.Duration
}

// New creates a health service.
func New(store Pinger, embedder domain.HealthChecker) *Service {
	return &Service{store: store, embedder: embedder, timeout: 5 * time.Second}
}

// Check probes every dependency. The report is degraded, not an error,
// when a dependency is down.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := Report{Healthy: true, Services: make(map[string]Status)}

	report.Services["store"] = probe(s.store.Ping(ctx))
	if s.embedder != nil {
		report.Services["embeddings"] = probe(s.embedder.HealthCheck(ctx))
	}

	for _, st := range report.Services {
		if !st.Healthy {
			report.Healthy = false
		}
	}
	return report
}

func probe(err error) Status {
	if err != nil {
		return Status{Healthy: false, Error: err.Error()}
	}
	return Status{Healthy: true}
}
