package service

import (
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-hr/internal/config"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"github.com/bitfantasy/nimo-hr/internal/shared/feishu"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 服务层错误哨兵，handler按errors.Is映射到HTTP状态
var (
	ErrNotFound   = repository.ErrNotFound
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)

// notFoundf 构造带说明的实体不存在错误
func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// badRequestf 构造带说明的参数错误
func badRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// forbiddenf 构造带说明的权限错误
func forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// conflictf 构造带说明的冲突错误
func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Services 服务集合
type Services struct {
	Auth         *AuthService
	User         *UserService
	Workflow     *WorkflowService
	Template     *TemplateService
	Period       *PeriodService
	Appraisal    *AppraisalService
	Committee    *CommitteeService
	Export       *ExportService
	Audit        *AuditService
	Notification *NotificationService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	// 初始化飞书客户端（未配置则通知只落库，不推送卡片）
	var feishuClient *feishu.FeishuClient
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" {
		feishuClient = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
	}

	auditSvc := NewAuditService(repos.AuditLog, logger)
	notificationSvc := NewNotificationService(repos.Notification, repos.User, feishuClient, logger)

	appraisalSvc := NewAppraisalService(repos.Appraisal, repos.Workflow, repos.Template, repos.User, repos.Period, auditSvc, notificationSvc)

	return &Services{
		Auth:         NewAuthService(repos.User, rdb, cfg),
		User:         NewUserService(repos.User),
		Workflow:     NewWorkflowService(repos.Workflow, repos.Appraisal),
		Template:     NewTemplateService(repos.Template, repos.Appraisal),
		Period:       NewPeriodService(repos.Period, repos.User),
		Appraisal:    appraisalSvc,
		Committee:    NewCommitteeService(repos.Appraisal, repos.Workflow, repos.Template, auditSvc, notificationSvc),
		Export:       NewExportService(repos.Appraisal, repos.Period, repos.Template),
		Audit:        auditSvc,
		Notification: notificationSvc,
	}
}

// generateID 生成32位实体ID
func generateID() string {
	return uuid.New().String()[:32]
}
