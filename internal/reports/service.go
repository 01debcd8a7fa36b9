package reports

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// Stats is the dashboard aggregate served to role dashboards.
type Stats struct {
	Total              int           `json:"total"`
	ByStatus           []StatusCount `json:"by_status"`
	ByType             []TypeCount   `json:"by_type"`
	PendingReview      int           `json:"pending_review"`
	CertificatesIssued int           `json:"certificates_issued"`
}

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Stats aggregates application counts for dashboards.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	byType, err := s.repo.CountByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	issued, err := s.repo.CertificatesIssued(ctx)
	if err != nil {
		return nil, fmt.Errorf("count certificates: %w", err)
	}

	stats := &Stats{
		ByStatus:           byStatus,
		ByType:             byType,
		CertificatesIssued: issued,
	}
	for _, c := range byStatus {
		stats.Total += c.Count
		if !workflows.IsTerminal(workflows.Status(c.Status)) {
			stats.PendingReview += c.Count
		}
	}
	return stats, nil
}

// ExportRegister renders the full applications register as an .xlsx stream.
func (s *Service) ExportRegister(ctx context.Context) (io.Reader, error) {
	rows, err := s.repo.Register(ctx)
	if err != nil {
		return nil, fmt.Errorf("load register: %w", err)
	}

	s.logger.Info("exporting applications register", zap.Int("rows", len(rows)))
	return writeRegisterWorkbook(rows)
}
