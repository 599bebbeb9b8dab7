package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"gorm.io/gorm"
)

// AppraisalRepository 考核实例仓库
type AppraisalRepository struct {
	db *gorm.DB
}

func NewAppraisalRepository(db *gorm.DB) *AppraisalRepository {
	return &AppraisalRepository{db: db}
}

// FindByID 根据ID查找考核实例
func (r *AppraisalRepository) FindByID(ctx context.Context, id string) (*entity.Appraisal, error) {
	var appraisal entity.Appraisal
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Where("id = ?", id).
		First(&appraisal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &appraisal, nil
}

// FindAll 查询考核实例列表
func (r *AppraisalRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Appraisal, int64, error) {
	var items []entity.Appraisal
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Appraisal{})

	if period := filters["period"]; period != "" {
		query = query.Where("period = ?", period)
	}
	if employeeID := filters["employee_id"]; employeeID != "" {
		query = query.Where("employee_id = ?", employeeID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Employee").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindActiveByEmployeeAndPeriod 查找同员工同周期的未终结实例
// completed和cancelled不计入，用于发起时的重复检查
func (r *AppraisalRepository) FindActiveByEmployeeAndPeriod(ctx context.Context, employeeID, period string) (*entity.Appraisal, error) {
	var appraisal entity.Appraisal
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND period = ? AND status NOT IN ?",
			employeeID, period,
			[]string{entity.AppraisalStatusCompleted, entity.AppraisalStatusCancelled}).
		First(&appraisal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &appraisal, nil
}

// FindByPeriod 查询某周期下的全部实例（导出用）
func (r *AppraisalRepository) FindByPeriod(ctx context.Context, period string) ([]entity.Appraisal, error) {
	var items []entity.Appraisal
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Where("period = ?", period).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// Create 创建考核实例
func (r *AppraisalRepository) Create(ctx context.Context, appraisal *entity.Appraisal) error {
	return r.db.WithContext(ctx).Create(appraisal).Error
}

// Save 带乐观锁的全量保存
// 版本号不匹配说明读取后实例已被并发修改，返回ErrVersionConflict
func (r *AppraisalRepository) Save(ctx context.Context, appraisal *entity.Appraisal) error {
	prev := appraisal.Version
	appraisal.Version = prev + 1

	res := r.db.WithContext(ctx).
		Model(&entity.Appraisal{}).
		Where("id = ? AND version = ?", appraisal.ID, prev).
		Select("*").
		Omit("created_at").
		Updates(appraisal)
	if res.Error != nil {
		appraisal.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		appraisal.Version = prev
		return ErrVersionConflict
	}
	return nil
}

// CountByWorkflow 统计引用某工作流的实例数
func (r *AppraisalRepository) CountByWorkflow(ctx context.Context, workflowID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Appraisal{}).
		Where("workflow_id = ?", workflowID).
		Count(&count).Error
	return count, err
}

// CountByTemplate 统计引用某模板的实例数
func (r *AppraisalRepository) CountByTemplate(ctx context.Context, templateID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Appraisal{}).
		Where("template_id = ?", templateID).
		Count(&count).Error
	return count, err
}

// DeleteByIDs 批量删除考核实例
func (r *AppraisalRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&entity.Appraisal{})
	return res.RowsAffected, res.Error
}
