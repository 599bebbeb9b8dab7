package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
)

// TemplateService 评审模板服务
type TemplateService struct {
	repo          *repository.TemplateRepository
	appraisalRepo *repository.AppraisalRepository
}

// NewTemplateService 创建模板服务
func NewTemplateService(repo *repository.TemplateRepository, appraisalRepo *repository.AppraisalRepository) *TemplateService {
	return &TemplateService{repo: repo, appraisalRepo: appraisalRepo}
}

// QuestionRequest 模板题目定义
type QuestionRequest struct {
	ID         string   `json:"id"` // 更新时带上已有题目ID，新增题目留空
	Text       string   `json:"text" binding:"required"`
	Kind       string   `json:"kind" binding:"required"`
	Category   string   `json:"category"`
	Weight     float64  `json:"weight"`
	MaxScore   float64  `json:"max_score"`
	IsRequired *bool    `json:"is_required"`
	IsScored   bool     `json:"is_scored"`
	Options    []string `json:"options"`
	SortOrder  int      `json:"sort_order"`
}

// CreateTemplateRequest 创建模板请求
type CreateTemplateRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Questions   []QuestionRequest `json:"questions" binding:"required,min=1"`
}

// UpdateTemplateRequest 更新模板请求
type UpdateTemplateRequest struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Status      *string           `json:"status"`
	Questions   []QuestionRequest `json:"questions"`
}

// buildQuestions 构造并校验题目实体
func buildQuestions(templateID string, reqs []QuestionRequest, now time.Time) ([]entity.TemplateQuestion, error) {
	questions := make([]entity.TemplateQuestion, 0, len(reqs))
	for i, qr := range reqs {
		required := true
		if qr.IsRequired != nil {
			required = *qr.IsRequired
		}
		sortOrder := qr.SortOrder
		if sortOrder == 0 {
			sortOrder = i + 1
		}
		questionID := qr.ID
		if questionID == "" {
			questionID = generateID()
		}
		question := entity.TemplateQuestion{
			ID:         questionID,
			TemplateID: templateID,
			Text:       qr.Text,
			Kind:       qr.Kind,
			Category:   qr.Category,
			Weight:     qr.Weight,
			MaxScore:   qr.MaxScore,
			IsRequired: required,
			IsScored:   qr.IsScored,
			Options:    entity.StringList(qr.Options),
			SortOrder:  sortOrder,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := question.Validate(); err != nil {
			return nil, badRequestf("题目%d: %v", i+1, err)
		}
		questions = append(questions, question)
	}
	return questions, nil
}

// List 查询模板列表
func (s *TemplateService) List(ctx context.Context, page, pageSize int, filters map[string]string) (map[string]interface{}, error) {
	templates, total, err := s.repo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"templates": templates,
		"total":     total,
	}, nil
}

// Get 获取模板详情
func (s *TemplateService) Get(ctx context.Context, id string) (*entity.ReviewTemplate, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 创建模板
func (s *TemplateService) Create(ctx context.Context, userID string, req *CreateTemplateRequest) (*entity.ReviewTemplate, error) {
	now := time.Now()
	template := &entity.ReviewTemplate{
		ID:          generateID(),
		Name:        req.Name,
		Description: req.Description,
		Status:      "active",
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	questions, err := buildQuestions(template.ID, req.Questions, now)
	if err != nil {
		return nil, err
	}
	template.Questions = questions

	if err := s.repo.Create(ctx, template); err != nil {
		return nil, fmt.Errorf("创建模板失败: %w", err)
	}

	return template, nil
}

// Update 更新模板
// 已被考核实例引用的模板不允许改动题目结构
func (s *TemplateService) Update(ctx context.Context, id string, req *UpdateTemplateRequest) (*entity.ReviewTemplate, error) {
	template, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		template.Name = *req.Name
	}
	if req.Description != nil {
		template.Description = *req.Description
	}
	if req.Status != nil {
		template.Status = *req.Status
	}

	if req.Questions != nil {
		count, err := s.appraisalRepo.CountByTemplate(ctx, id)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, conflictf("模板已被%d个考核实例引用，题目不可修改", count)
		}

		questions, err := buildQuestions(template.ID, req.Questions, time.Now())
		if err != nil {
			return nil, err
		}
		template.Questions = questions
	}

	template.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, template); err != nil {
		return nil, fmt.Errorf("更新模板失败: %w", err)
	}

	return s.repo.FindByID(ctx, id)
}

// Delete 删除模板，被引用时拒绝
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	count, err := s.appraisalRepo.CountByTemplate(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflictf("模板已被%d个考核实例引用，不可删除", count)
	}
	return s.repo.Delete(ctx, id)
}
