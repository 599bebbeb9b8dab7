package entity

import "time"

// 考核周期状态
const (
	PeriodStatusOpen   = "open"
	PeriodStatusClosed = "closed"
)

// AppraisalPeriod 考核周期
type AppraisalPeriod struct {
	ID        string     `json:"id" gorm:"primaryKey;size:32"`
	Label     string     `json:"label" gorm:"size:50;uniqueIndex;not null"` // e.g. 2026-Q1, 2026年中
	StartsOn  *time.Time `json:"starts_on"`
	EndsOn    *time.Time `json:"ends_on"`
	Status    string     `json:"status" gorm:"size:20;default:open"`
	CreatedBy string     `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (AppraisalPeriod) TableName() string {
	return "hr_appraisal_periods"
}

// PeriodAssignment 周期参评人员分配
// initialized在考核实例发起时置true
type PeriodAssignment struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	PeriodID    string    `json:"period_id" gorm:"size:32;not null;index"`
	UserID      string    `json:"user_id" gorm:"size:32;not null;index"`
	WorkflowID  string    `json:"workflow_id" gorm:"size:32"`
	TemplateID  string    `json:"template_id" gorm:"size:32"`
	Initialized bool      `json:"initialized" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联
	User   *User            `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Period *AppraisalPeriod `json:"period,omitempty" gorm:"foreignKey:PeriodID"`
}

func (PeriodAssignment) TableName() string {
	return "hr_period_assignments"
}
