package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
)

// WorkflowService 考核工作流服务
type WorkflowService struct {
	repo          *repository.WorkflowRepository
	appraisalRepo *repository.AppraisalRepository
}

// NewWorkflowService 创建工作流服务
func NewWorkflowService(repo *repository.WorkflowRepository, appraisalRepo *repository.AppraisalRepository) *WorkflowService {
	return &WorkflowService{repo: repo, appraisalRepo: appraisalRepo}
}

// StepRequest 工作流步骤定义
type StepRequest struct {
	ID              string `json:"id"` // 更新时带上已有步骤ID，新增步骤留空
	Name            string `json:"name" binding:"required"`
	Rank            int    `json:"rank" binding:"required"`
	ResponsibleRole string `json:"responsible_role" binding:"required"`
	IsRequired      *bool  `json:"is_required"`
	DueInDays       int    `json:"due_in_days"`
}

// CreateWorkflowRequest 创建工作流请求
type CreateWorkflowRequest struct {
	Name        string        `json:"name" binding:"required"`
	Description string        `json:"description"`
	Steps       []StepRequest `json:"steps" binding:"required,min=1"`
}

// UpdateWorkflowRequest 更新工作流请求
type UpdateWorkflowRequest struct {
	Name        *string       `json:"name"`
	Description *string       `json:"description"`
	Status      *string       `json:"status"`
	Steps       []StepRequest `json:"steps"`
}

// 步骤可指派的角色
var validStepRoles = map[string]bool{
	entity.RoleEmployee:   true,
	entity.RoleSupervisor: true,
	entity.RoleHR:         true,
	entity.RoleCommittee:  true,
}

// validateSteps 校验步骤定义：rank严格递增、角色合法
func validateSteps(steps []StepRequest) error {
	if len(steps) == 0 {
		return badRequestf("工作流至少需要一个步骤")
	}
	prevRank := 0
	for i, step := range steps {
		if !validStepRoles[step.ResponsibleRole] {
			return badRequestf("步骤%d角色非法: %s", i+1, step.ResponsibleRole)
		}
		if step.Rank <= prevRank {
			return badRequestf("步骤rank必须严格递增")
		}
		prevRank = step.Rank
	}
	return nil
}

// List 查询工作流列表
func (s *WorkflowService) List(ctx context.Context, page, pageSize int, filters map[string]string) (map[string]interface{}, error) {
	workflows, total, err := s.repo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"workflows": workflows,
		"total":     total,
	}, nil
}

// Get 获取工作流详情
func (s *WorkflowService) Get(ctx context.Context, id string) (*entity.AppraisalWorkflow, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 创建工作流
func (s *WorkflowService) Create(ctx context.Context, userID string, req *CreateWorkflowRequest) (*entity.AppraisalWorkflow, error) {
	if err := validateSteps(req.Steps); err != nil {
		return nil, err
	}

	now := time.Now()
	workflow := &entity.AppraisalWorkflow{
		ID:          generateID(),
		Name:        req.Name,
		Description: req.Description,
		Status:      entity.WorkflowStatusActive,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, sr := range req.Steps {
		required := true
		if sr.IsRequired != nil {
			required = *sr.IsRequired
		}
		workflow.Steps = append(workflow.Steps, entity.WorkflowStep{
			ID:              generateID(),
			WorkflowID:      workflow.ID,
			Name:            sr.Name,
			Rank:            sr.Rank,
			ResponsibleRole: sr.ResponsibleRole,
			IsRequired:      required,
			DueInDays:       sr.DueInDays,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.repo.Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("创建工作流失败: %w", err)
	}

	return workflow, nil
}

// Update 更新工作流
// 已被考核实例引用的工作流不允许改动步骤结构
func (s *WorkflowService) Update(ctx context.Context, id string, req *UpdateWorkflowRequest) (*entity.AppraisalWorkflow, error) {
	workflow, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}
	if req.Description != nil {
		workflow.Description = *req.Description
	}
	if req.Status != nil {
		if *req.Status != entity.WorkflowStatusActive && *req.Status != entity.WorkflowStatusArchived {
			return nil, badRequestf("非法状态: %s", *req.Status)
		}
		workflow.Status = *req.Status
	}

	if req.Steps != nil {
		count, err := s.appraisalRepo.CountByWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, conflictf("工作流已被%d个考核实例引用，步骤不可修改", count)
		}
		if err := validateSteps(req.Steps); err != nil {
			return nil, err
		}

		now := time.Now()
		workflow.Steps = workflow.Steps[:0]
		for _, sr := range req.Steps {
			stepID := sr.ID
			if stepID == "" {
				stepID = generateID()
			}
			required := true
			if sr.IsRequired != nil {
				required = *sr.IsRequired
			}
			workflow.Steps = append(workflow.Steps, entity.WorkflowStep{
				ID:              stepID,
				WorkflowID:      workflow.ID,
				Name:            sr.Name,
				Rank:            sr.Rank,
				ResponsibleRole: sr.ResponsibleRole,
				IsRequired:      required,
				DueInDays:       sr.DueInDays,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
	}

	workflow.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, workflow); err != nil {
		return nil, fmt.Errorf("更新工作流失败: %w", err)
	}

	return s.repo.FindByID(ctx, id)
}

// Delete 删除工作流，被引用时拒绝
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	count, err := s.appraisalRepo.CountByWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflictf("工作流已被%d个考核实例引用，不可删除", count)
	}
	return s.repo.Delete(ctx, id)
}

// SetDefault 设置默认工作流，全局至多一个默认
func (s *WorkflowService) SetDefault(ctx context.Context, id string) error {
	return s.repo.SetDefault(ctx, id)
}
