package entity

import (
	"errors"
	"time"
)

// 题目类型
const (
	QuestionKindRating         = "rating"
	QuestionKindText           = "text"
	QuestionKindMultipleChoice = "multiple_choice"
)

// ReviewTemplate 评审模板
type ReviewTemplate struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Name        string    `json:"name" gorm:"size:100;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Status      string    `json:"status" gorm:"size:20;default:active"`
	CreatedBy   string    `json:"created_by" gorm:"size:32"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联
	Questions []TemplateQuestion `json:"questions,omitempty" gorm:"foreignKey:TemplateID"`
}

func (ReviewTemplate) TableName() string {
	return "hr_review_templates"
}

// TemplateQuestion 模板题目
// weight为建议值，不强制各题权重之和为100
type TemplateQuestion struct {
	ID         string     `json:"id" gorm:"primaryKey;size:32"`
	TemplateID string     `json:"template_id" gorm:"size:32;not null;index"`
	Text       string     `json:"text" gorm:"type:text;not null"`
	Kind       string     `json:"kind" gorm:"size:20;not null"` // rating/text/multiple_choice
	Category   string     `json:"category" gorm:"size:50"`
	Weight     float64    `json:"weight" gorm:"type:decimal(5,2);default:0"`
	MaxScore   float64    `json:"max_score" gorm:"type:decimal(5,2);default:0"`
	IsRequired bool       `json:"is_required" gorm:"default:true"`
	IsScored   bool       `json:"is_scored" gorm:"default:false"`
	Options    StringList `json:"options,omitempty" gorm:"type:jsonb"`
	SortOrder  int        `json:"sort_order" gorm:"default:0"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (TemplateQuestion) TableName() string {
	return "hr_template_questions"
}

// Validate 按题目类型校验题目定义
func (q *TemplateQuestion) Validate() error {
	switch q.Kind {
	case QuestionKindRating:
		if q.MaxScore < 1 {
			return errors.New("打分题必须设置max_score")
		}
	case QuestionKindMultipleChoice:
		if len(q.Options) == 0 {
			return errors.New("选择题必须提供选项")
		}
	case QuestionKindText:
		if q.IsScored {
			return errors.New("文本题不能标记为计分题")
		}
	default:
		return errors.New("未知题目类型: " + q.Kind)
	}
	return nil
}
