package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/repositories"
)

const (
	catalogCheckName  = "catalog"
	sessionsCheckName = "quoteSessions"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SessionCounter reports the number of live wizard sessions.
type SessionCounter interface {
	Count() int
}

// SystemServiceDeps bundles collaborators required to construct a system service.
// Catalog and Sessions are optional in-process probes added next to the dependency checks.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Catalog          CatalogProvider
	Sessions         SessionCounter
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health   repositories.HealthRepository
	catalog  CatalogProvider
	sessions SessionCounter
	now      func() time.Time
	build    BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the readiness reporter used by /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	if strings.TrimSpace(build.Environment) == "" {
		build.Environment = "local"
	}
	return &systemService{
		health:   deps.HealthRepository,
		catalog:  deps.Catalog,
		sessions: deps.Sessions,
		now:      func() time.Time { return clock().UTC() },
		build:    build,
	}, nil
}

// HealthReport runs the dependency checks, adds the catalog and session probes and stamps build metadata.
// A missing catalog is an error: no quote can be built without it.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, fmt.Errorf("system service: collect: %w", err)
	}

	now := s.now()
	if report.Checks == nil {
		report.Checks = make(map[string]domain.SystemHealthCheck)
	}
	if s.catalog != nil {
		report.Checks[catalogCheckName] = s.catalogCheck(ctx, now)
	}
	if s.sessions != nil {
		report.Checks[sessionsCheckName] = domain.SystemHealthCheck{
			Status:    domain.HealthStatusOK,
			Detail:    fmt.Sprintf("%d active", s.sessions.Count()),
			CheckedAt: now,
		}
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = firstNonBlank(report.Version, s.build.Version)
	report.CommitSHA = firstNonBlank(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonBlank(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	report.Status = mergeStatus(report.Status, report.Checks)
	return report, nil
}

func (s *systemService) catalogCheck(ctx context.Context, now time.Time) domain.SystemHealthCheck {
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return domain.SystemHealthCheck{
			Status:    domain.HealthStatusError,
			Detail:    "unavailable",
			Error:     err.Error(),
			CheckedAt: now,
		}
	}
	return domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    fmt.Sprintf("%d categories, %d models", len(catalog.Categories), countModels(catalog)),
		CheckedAt: now,
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// mergeStatus keeps the repository's verdict (which knows which checks are optional)
// and escalates it when an in-process probe failed.
func mergeStatus(reported string, checks map[string]domain.SystemHealthCheck) string {
	status := strings.TrimSpace(reported)
	if status == "" {
		status = domain.HealthStatusOK
		for name, check := range checks {
			if name == catalogCheckName || name == sessionsCheckName {
				continue
			}
			switch check.Status {
			case domain.HealthStatusOK, "":
			case domain.HealthStatusError:
				return domain.HealthStatusError
			default:
				status = domain.HealthStatusDegraded
			}
		}
	}
	if check, ok := checks[catalogCheckName]; ok && check.Status == domain.HealthStatusError {
		return domain.HealthStatusError
	}
	return status
}
