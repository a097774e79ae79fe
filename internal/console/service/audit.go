package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

// ArchiveProvider описывает контракт для чтения долговременного архива журнала
type ArchiveProvider interface {
	FetchHistory(ctx context.Context, cur domain.ActivityCursor, limit int) ([]domain.ActivityEntry, error)
}

type AuditService struct {
	repo ArchiveProvider
}

func NewAuditService(repo ArchiveProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchHistory отдает страницу архива, новее-к-старым
func (s *AuditService) FetchHistory(ctx context.Context, cur domain.ActivityCursor, limit int) ([]domain.ActivityEntry, error) {
	logs, err := s.repo.FetchHistory(ctx, cur, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch history: %w", err)
	}
	return logs, nil
}
