package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
)

// PeriodService 考核周期服务
type PeriodService struct {
	repo     *repository.PeriodRepository
	userRepo *repository.UserRepository
}

// NewPeriodService 创建周期服务
func NewPeriodService(repo *repository.PeriodRepository, userRepo *repository.UserRepository) *PeriodService {
	return &PeriodService{repo: repo, userRepo: userRepo}
}

// CreatePeriodRequest 创建周期请求
type CreatePeriodRequest struct {
	Label    string     `json:"label" binding:"required"` // e.g. 2026-Q1
	StartsOn *time.Time `json:"starts_on"`
	EndsOn   *time.Time `json:"ends_on"`
}

// UpdatePeriodRequest 更新周期请求
type UpdatePeriodRequest struct {
	StartsOn *time.Time `json:"starts_on"`
	EndsOn   *time.Time `json:"ends_on"`
	Status   *string    `json:"status"`
}

// AddAssignmentRequest 添加参评人员请求
type AddAssignmentRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	WorkflowID string `json:"workflow_id"`
	TemplateID string `json:"template_id"`
}

// List 查询周期列表
func (s *PeriodService) List(ctx context.Context, page, pageSize int, filters map[string]string) (map[string]interface{}, error) {
	periods, total, err := s.repo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"periods": periods,
		"total":   total,
	}, nil
}

// Get 获取周期详情
func (s *PeriodService) Get(ctx context.Context, id string) (*entity.AppraisalPeriod, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 创建周期，label全局唯一
func (s *PeriodService) Create(ctx context.Context, userID string, req *CreatePeriodRequest) (*entity.AppraisalPeriod, error) {
	if _, err := s.repo.FindByLabel(ctx, req.Label); err == nil {
		return nil, conflictf("周期已存在: %s", req.Label)
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	now := time.Now()
	period := &entity.AppraisalPeriod{
		ID:        generateID(),
		Label:     req.Label,
		StartsOn:  req.StartsOn,
		EndsOn:    req.EndsOn,
		Status:    entity.PeriodStatusOpen,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, period); err != nil {
		return nil, fmt.Errorf("创建周期失败: %w", err)
	}

	return period, nil
}

// Update 更新周期
func (s *PeriodService) Update(ctx context.Context, id string, req *UpdatePeriodRequest) (*entity.AppraisalPeriod, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.StartsOn != nil {
		period.StartsOn = req.StartsOn
	}
	if req.EndsOn != nil {
		period.EndsOn = req.EndsOn
	}
	if req.Status != nil {
		if *req.Status != entity.PeriodStatusOpen && *req.Status != entity.PeriodStatusClosed {
			return nil, badRequestf("非法状态: %s", *req.Status)
		}
		period.Status = *req.Status
	}
	period.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, period); err != nil {
		return nil, fmt.Errorf("更新周期失败: %w", err)
	}

	return period, nil
}

// Delete 删除周期，已有员工发起考核的周期不可删除
func (s *PeriodService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	assignments, err := s.repo.FindAssignments(ctx, id)
	if err != nil {
		return err
	}
	for i := range assignments {
		if assignments[i].Initialized {
			return conflictf("周期内已有考核实例发起，不可删除")
		}
	}
	return s.repo.Delete(ctx, id)
}

// ListAssignments 查询周期参评人员
func (s *PeriodService) ListAssignments(ctx context.Context, periodID string) ([]entity.PeriodAssignment, error) {
	if _, err := s.repo.FindByID(ctx, periodID); err != nil {
		return nil, err
	}
	return s.repo.FindAssignments(ctx, periodID)
}

// AddAssignment 添加参评人员，同周期同员工去重
func (s *PeriodService) AddAssignment(ctx context.Context, periodID string, req *AddAssignmentRequest) (*entity.PeriodAssignment, error) {
	period, err := s.repo.FindByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status == entity.PeriodStatusClosed {
		return nil, conflictf("周期已关闭: %s", period.Label)
	}

	if _, err := s.userRepo.FindByID(ctx, req.UserID); err != nil {
		if err == repository.ErrNotFound {
			return nil, badRequestf("员工不存在: %s", req.UserID)
		}
		return nil, err
	}

	if _, err := s.repo.FindAssignment(ctx, periodID, req.UserID); err == nil {
		return nil, conflictf("员工已在参评名单中")
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	now := time.Now()
	assignment := &entity.PeriodAssignment{
		ID:         generateID(),
		PeriodID:   periodID,
		UserID:     req.UserID,
		WorkflowID: req.WorkflowID,
		TemplateID: req.TemplateID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("添加参评人员失败: %w", err)
	}

	return assignment, nil
}

// RemoveAssignment 移除参评人员，已发起考核的不可移除
func (s *PeriodService) RemoveAssignment(ctx context.Context, periodID, userID string) error {
	assignment, err := s.repo.FindAssignment(ctx, periodID, userID)
	if err != nil {
		return err
	}
	if assignment.Initialized {
		return conflictf("该员工已发起考核实例，不可移除")
	}
	return s.repo.DeleteAssignment(ctx, assignment.ID)
}
