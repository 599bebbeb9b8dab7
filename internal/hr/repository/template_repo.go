package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"gorm.io/gorm"
)

// TemplateRepository 评审模板仓库
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FindByID 根据ID查找模板，题目按sort_order升序
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*entity.ReviewTemplate, error) {
	var template entity.ReviewTemplate
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &template, nil
}

// FindAll 查询模板列表
func (r *TemplateRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ReviewTemplate, int64, error) {
	var items []entity.ReviewTemplate
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ReviewTemplate{})

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
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Create 创建模板及其题目
func (r *TemplateRepository) Create(ctx context.Context, template *entity.ReviewTemplate) error {
	return r.db.WithContext(ctx).Create(template).Error
}

// Update 更新模板：基础字段 + 全量替换题目
func (r *TemplateRepository) Update(ctx context.Context, template *entity.ReviewTemplate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ReviewTemplate{}).
			Where("id = ?", template.ID).
			Updates(map[string]interface{}{
				"name":        template.Name,
				"description": template.Description,
				"status":      template.Status,
				"updated_at":  template.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("template_id = ?", template.ID).
			Delete(&entity.TemplateQuestion{}).Error; err != nil {
			return err
		}
		if len(template.Questions) > 0 {
			if err := tx.Create(&template.Questions).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete 删除模板及其题目
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", id).
			Delete(&entity.TemplateQuestion{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.ReviewTemplate{}).Error
	})
}
