package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"go.uber.org/zap"
)

// AuditService 审计日志服务
// 写入失败不阻断主流程，只记录警告
type AuditService struct {
	repo   *repository.AuditLogRepository
	logger *zap.Logger
}

// NewAuditService 创建审计服务
func NewAuditService(repo *repository.AuditLogRepository, logger *zap.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

// Record 写入审计日志（尽力而为）
func (s *AuditService) Record(ctx context.Context, actorID, action, entityType, entityID, details string, changes entity.JSONB) {
	log := &entity.AuditLog{
		ID:         generateID(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		Changes:    changes,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Warn("写入审计日志失败",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// List 查询审计日志
func (s *AuditService) List(ctx context.Context, page, pageSize int, filters map[string]string) (map[string]interface{}, error) {
	logs, total, err := s.repo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"logs":  logs,
		"total": total,
	}, nil
}
