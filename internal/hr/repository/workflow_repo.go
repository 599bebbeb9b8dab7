package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"gorm.io/gorm"
)

// WorkflowRepository 工作流定义仓库
type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// FindByID 根据ID查找工作流，步骤按rank升序
func (r *WorkflowRepository) FindByID(ctx context.Context, id string) (*entity.AppraisalWorkflow, error) {
	var workflow entity.AppraisalWorkflow
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("rank ASC")
		}).
		Where("id = ?", id).
		First(&workflow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

// FindAll 查询工作流列表
func (r *WorkflowRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.AppraisalWorkflow, int64, error) {
	var items []entity.AppraisalWorkflow
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.AppraisalWorkflow{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword := filters["keyword"]; keyword != "" {
		query = query.Where("name ILIKE ?", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("rank ASC")
		}).
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Create 创建工作流及其步骤
func (r *WorkflowRepository) Create(ctx context.Context, workflow *entity.AppraisalWorkflow) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

// Update 更新工作流：基础字段 + 全量替换步骤
func (r *WorkflowRepository) Update(ctx context.Context, workflow *entity.AppraisalWorkflow) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.AppraisalWorkflow{}).
			Where("id = ?", workflow.ID).
			Updates(map[string]interface{}{
				"name":        workflow.Name,
				"description": workflow.Description,
				"status":      workflow.Status,
				"updated_at":  workflow.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", workflow.ID).
			Delete(&entity.WorkflowStep{}).Error; err != nil {
			return err
		}
		if len(workflow.Steps) > 0 {
			if err := tx.Create(&workflow.Steps).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete 删除工作流及其步骤
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", id).
			Delete(&entity.WorkflowStep{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.AppraisalWorkflow{}).Error
	})
}

// SetDefault 设置默认工作流
// 清除旧默认和设置新默认在同一事务内完成，对调用方原子
func (r *WorkflowRepository) SetDefault(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workflow entity.AppraisalWorkflow
		if err := tx.Where("id = ?", id).First(&workflow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&entity.AppraisalWorkflow{}).
			Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&entity.AppraisalWorkflow{}).
			Where("id = ?", id).
			Update("is_default", true).Error
	})
}
