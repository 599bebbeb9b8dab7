package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict 乐观锁版本不匹配：实例在读取后已被其他请求修改
	ErrVersionConflict = errors.New("version conflict")
)

// Repositories HR仓库集合
type Repositories struct {
	User         *UserRepository
	Workflow     *WorkflowRepository
	Template     *TemplateRepository
	Period       *PeriodRepository
	Appraisal    *AppraisalRepository
	AuditLog     *AuditLogRepository
	Notification *NotificationRepository
}

// NewRepositories 创建HR仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Workflow:     NewWorkflowRepository(db),
		Template:     NewTemplateRepository(db),
		Period:       NewPeriodRepository(db),
		Appraisal:    NewAppraisalRepository(db),
		AuditLog:     NewAuditLogRepository(db),
		Notification: NewNotificationRepository(db),
	}
}
