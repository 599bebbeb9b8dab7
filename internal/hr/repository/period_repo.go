package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"gorm.io/gorm"
)

// PeriodRepository 考核周期仓库
type PeriodRepository struct {
	db *gorm.DB
}

func NewPeriodRepository(db *gorm.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// FindByID 根据ID查找周期
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*entity.AppraisalPeriod, error) {
	var period entity.AppraisalPeriod
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &period, nil
}

// FindByLabel 根据周期标签查找周期
func (r *PeriodRepository) FindByLabel(ctx context.Context, label string) (*entity.AppraisalPeriod, error) {
	var period entity.AppraisalPeriod
	err := r.db.WithContext(ctx).Where("label = ?", label).First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &period, nil
}

// FindAll 查询周期列表
func (r *PeriodRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.AppraisalPeriod, int64, error) {
	var items []entity.AppraisalPeriod
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.AppraisalPeriod{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Create 创建周期
func (r *PeriodRepository) Create(ctx context.Context, period *entity.AppraisalPeriod) error {
	return r.db.WithContext(ctx).Create(period).Error
}

// Update 更新周期
func (r *PeriodRepository) Update(ctx context.Context, period *entity.AppraisalPeriod) error {
	return r.db.WithContext(ctx).Save(period).Error
}

// Delete 删除周期及其参评分配
func (r *PeriodRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("period_id = ?", id).Delete(&entity.PeriodAssignment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.AppraisalPeriod{}).Error
	})
}

// FindAssignments 查询周期的参评分配
func (r *PeriodRepository) FindAssignments(ctx context.Context, periodID string) ([]entity.PeriodAssignment, error) {
	var items []entity.PeriodAssignment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("period_id = ?", periodID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// FindAssignment 查找某周期内某员工的分配记录
func (r *PeriodRepository) FindAssignment(ctx context.Context, periodID, userID string) (*entity.PeriodAssignment, error) {
	var assignment entity.PeriodAssignment
	err := r.db.WithContext(ctx).
		Where("period_id = ? AND user_id = ?", periodID, userID).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

// CreateAssignment 创建参评分配
func (r *PeriodRepository) CreateAssignment(ctx context.Context, assignment *entity.PeriodAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

// DeleteAssignment 删除参评分配
func (r *PeriodRepository) DeleteAssignment(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.PeriodAssignment{}).Error
}

// MarkAssignmentInitialized 标记分配已发起考核实例
func (r *PeriodRepository) MarkAssignmentInitialized(ctx context.Context, periodID, userID string) error {
	return r.db.WithContext(ctx).
		Model(&entity.PeriodAssignment{}).
		Where("period_id = ? AND user_id = ?", periodID, userID).
		Update("initialized", true).Error
}
