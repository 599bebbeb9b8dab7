package entity

import "time"

// 工作流状态
const (
	WorkflowStatusActive   = "active"
	WorkflowStatusArchived = "archived"
)

// AppraisalWorkflow 考核工作流定义
// 步骤按rank严格递增排序，rank决定评审顺序
type AppraisalWorkflow struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Name        string    `json:"name" gorm:"size:100;not null"`
	Description string    `json:"description" gorm:"type:text"`
	IsDefault   bool      `json:"is_default" gorm:"default:false"`
	Status      string    `json:"status" gorm:"size:20;default:active"`
	CreatedBy   string    `json:"created_by" gorm:"size:32"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联
	Steps []WorkflowStep `json:"steps,omitempty" gorm:"foreignKey:WorkflowID"`
}

func (AppraisalWorkflow) TableName() string {
	return "hr_appraisal_workflows"
}

// WorkflowStep 工作流步骤
// 步骤一旦被考核实例引用，id和rank不可再变更
type WorkflowStep struct {
	ID              string    `json:"id" gorm:"primaryKey;size:32"`
	WorkflowID      string    `json:"workflow_id" gorm:"size:32;not null;index"`
	Name            string    `json:"name" gorm:"size:100;not null"`
	Rank            int       `json:"rank" gorm:"not null"`
	ResponsibleRole string    `json:"responsible_role" gorm:"size:50;not null"` // employee/supervisor/hr/committee
	IsRequired      bool      `json:"is_required" gorm:"default:true"`
	DueInDays       int       `json:"due_in_days" gorm:"default:0"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (WorkflowStep) TableName() string {
	return "hr_workflow_steps"
}

// StepByID 按步骤ID查找步骤
func (w *AppraisalWorkflow) StepByID(stepID string) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			return &w.Steps[i]
		}
	}
	return nil
}

// StepAt 按索引取步骤，越界返回nil
func (w *AppraisalWorkflow) StepAt(index int) *WorkflowStep {
	if index < 0 || index >= len(w.Steps) {
		return nil
	}
	return &w.Steps[index]
}

// NextStepAfter 返回rank大于给定rank的第一个步骤（步骤已按rank升序）
func (w *AppraisalWorkflow) NextStepAfter(rank int) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].Rank > rank {
			return &w.Steps[i]
		}
	}
	return nil
}
