package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"github.com/bitfantasy/nimo-hr/internal/shared/feishu"
	"go.uber.org/zap"
)

// NotificationService 通知服务
// 站内通知落库，飞书卡片推送尽力而为：推送失败不影响业务流程
type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	feishu   *feishu.FeishuClient
	logger   *zap.Logger
}

// NewNotificationService 创建通知服务
func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, feishuClient *feishu.FeishuClient, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:     repo,
		userRepo: userRepo,
		feishu:   feishuClient,
		logger:   logger,
	}
}

// Notify 发送通知：落库 + 飞书卡片
func (s *NotificationService) Notify(ctx context.Context, userID, kind, title, message, link string) {
	notification := &entity.Notification{
		ID:        generateID(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Kind:      kind,
		Link:      link,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.Warn("写入站内通知失败",
			zap.String("user_id", userID),
			zap.String("kind", kind),
			zap.Error(err))
	}

	s.pushCard(ctx, userID, feishu.NewNotificationCard(title, message, link))
}

// NotifyReviewTurn 通知评审人轮到其评审
func (s *NotificationService) NotifyReviewTurn(ctx context.Context, reviewerID, employeeName, stepName, period string) {
	notification := &entity.Notification{
		ID:        generateID(),
		UserID:    reviewerID,
		Title:     "绩效评审待处理",
		Message:   employeeName + " 的 " + period + " 考核进入「" + stepName + "」环节，等待你评审",
		Kind:      entity.NotificationKindReviewTurn,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.Warn("写入站内通知失败",
			zap.String("user_id", reviewerID),
			zap.Error(err))
	}

	s.pushCard(ctx, reviewerID, feishu.NewReviewTurnCard(employeeName, stepName, period))
}

// NotifyResult 通知员工考核结果
func (s *NotificationService) NotifyResult(ctx context.Context, employeeID, period, result, comment string) {
	notification := &entity.Notification{
		ID:        generateID(),
		UserID:    employeeID,
		Title:     "绩效考核" + result,
		Message:   period + " 考核" + result,
		Kind:      entity.NotificationKindCompleted,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.Warn("写入站内通知失败",
			zap.String("user_id", employeeID),
			zap.Error(err))
	}

	s.pushCard(ctx, employeeID, feishu.NewAppraisalResultCard(period, result, comment))
}

// pushCard 推送飞书卡片，失败只记日志
func (s *NotificationService) pushCard(ctx context.Context, userID string, card feishu.InteractiveCard) {
	if s.feishu == nil {
		return
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil || user.FeishuOpenID == "" {
		return
	}
	if err := s.feishu.SendUserCard(ctx, user.FeishuOpenID, card); err != nil {
		s.logger.Warn("推送飞书卡片失败",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// ListForUser 查询用户通知
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) (map[string]interface{}, error) {
	notifications, total, err := s.repo.FindByUser(ctx, userID, unreadOnly, page, pageSize)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"notifications": notifications,
		"total":         total,
	}, nil
}

// MarkRead 标记通知已读
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead 标记全部已读
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllRead(ctx, userID)
}
