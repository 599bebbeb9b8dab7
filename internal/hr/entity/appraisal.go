package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 考核实例状态
const (
	AppraisalStatusSetup                 = "setup"
	AppraisalStatusInProgress            = "in_progress"
	AppraisalStatusPendingEmployeeReview = "pending_employee_review"
	AppraisalStatusCompleted             = "completed"
	AppraisalStatusCancelled             = "cancelled"
)

// 步骤分配状态
const (
	AssignmentStatusPending    = "pending"
	AssignmentStatusInProgress = "in_progress"
	AssignmentStatusCompleted  = "completed"
	AssignmentStatusSkipped    = "skipped"
)

// 评审记录状态
const (
	ReviewStatusInProgress = "in_progress" // 委员会仍在评分中
	ReviewStatusCompleted  = "completed"
)

// 历史动作常量
const (
	HistoryInitiated             = "initiated"
	HistoryReviewSubmitted       = "review_submitted"
	HistoryPendingEmployeeReview = "pending_employee_review"
	HistoryRejected              = "rejected"
	HistoryRejectedByEmployee    = "rejected_by_employee"
	HistoryAcceptedIntermediate  = "accepted_intermediate"
	HistoryAcceptedFinal         = "accepted_final"
	HistoryAdminEdit             = "admin_edit"
)

// ManualAssignmentAuto 手工分配占位符，表示按角色自动解析
const ManualAssignmentAuto = "auto"

// StepAssignment 步骤分配：某一步骤在本实例中的具体负责人
type StepAssignment struct {
	StepID       string `json:"step_id"`
	AssignedUser string `json:"assigned_user,omitempty"` // 空表示待分配
	Status       string `json:"status"`
}

// StepAssignments JSONB步骤分配列表
type StepAssignments []StepAssignment

func (s StepAssignments) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StepAssignments) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan StepAssignments: %v", value)
	}
	return json.Unmarshal(bytes, s)
}

// QuestionResponse 单题作答
// kind区分作答形态：rating带score，text带text，multiple_choice带choice
type QuestionResponse struct {
	QuestionID string   `json:"question_id"`
	Kind       string   `json:"kind"`
	Score      *float64 `json:"score,omitempty"`
	Text       string   `json:"text,omitempty"`
	Choice     string   `json:"choice,omitempty"`
	Comment    string   `json:"comment,omitempty"`
}

// ScoreChange 委员会评分变更记录
type ScoreChange struct {
	QuestionID string    `json:"question_id"`
	OldValue   *float64  `json:"old_value"`
	NewValue   *float64  `json:"new_value"`
	ChangedBy  string    `json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
}

// Commendation 委员会成员评语，按user_id去重，后提交覆盖先提交
type Commendation struct {
	UserID    string    `json:"user_id"`
	Comment   string    `json:"comment"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Review 某一步骤的评审记录，每个step_id至多一条
type Review struct {
	StepID           string             `json:"step_id"`
	ReviewerID       string             `json:"reviewer_id"`
	ReviewerRole     string             `json:"reviewer_role"`
	Responses        []QuestionResponse `json:"responses"`
	OverallScore     *float64           `json:"overall_score,omitempty"`
	Comments         string             `json:"comments,omitempty"`
	SubmittedAt      time.Time          `json:"submitted_at"`
	Status           string             `json:"status"`
	IsCommittee      bool               `json:"is_committee,omitempty"`
	CommitteeMembers []string           `json:"committee_members,omitempty"`
	Commendations    []Commendation     `json:"commendations,omitempty"`
	ChangeLog        []ScoreChange      `json:"change_log,omitempty"`
}

// ResponseFor 按题目ID查找作答
func (r *Review) ResponseFor(questionID string) *QuestionResponse {
	for i := range r.Responses {
		if r.Responses[i].QuestionID == questionID {
			return &r.Responses[i]
		}
	}
	return nil
}

// Reviews JSONB评审记录列表
type Reviews []Review

func (r Reviews) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *Reviews) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan Reviews: %v", value)
	}
	return json.Unmarshal(bytes, r)
}

// QuestionLock 题目协作锁（5分钟TTL的协商锁，见committee服务）
type QuestionLock struct {
	QuestionID string    `json:"question_id"`
	LockedBy   string    `json:"locked_by"`
	LockedAt   time.Time `json:"locked_at"`
}

// QuestionLocks JSONB题目锁列表
type QuestionLocks []QuestionLock

func (l QuestionLocks) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *QuestionLocks) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan QuestionLocks: %v", value)
	}
	return json.Unmarshal(bytes, l)
}

// HistoryEntry 审计历史条目，只追加不修改
type HistoryEntry struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

// History JSONB历史列表
type History []HistoryEntry

func (h History) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func (h *History) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan History: %v", value)
	}
	return json.Unmarshal(bytes, h)
}

// FieldChange 管理员修订的字段级差异
type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

// AdminEdit 一次管理员修订
type AdminEdit struct {
	Editor    string        `json:"editor"`
	Timestamp time.Time     `json:"timestamp"`
	Changes   []FieldChange `json:"changes"`
}

// AdminEditedVersion 管理员修订版本
// 仅在completed实例上创建，原始reviews/overall_score/final_comments保持不变
type AdminEditedVersion struct {
	Reviews       Reviews     `json:"reviews,omitempty"`
	OverallScore  *float64    `json:"overall_score,omitempty"`
	FinalComments string      `json:"final_comments,omitempty"`
	EditedBy      string      `json:"edited_by"`
	EditedAt      time.Time   `json:"edited_at"`
	EditHistory   []AdminEdit `json:"edit_history"`
}

func (v AdminEditedVersion) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *AdminEditedVersion) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan AdminEditedVersion: %v", value)
	}
	return json.Unmarshal(bytes, v)
}

// Appraisal 考核实例 — 核心可变实体
// current_step是对工作流步骤序（按rank排序）的零基索引
type Appraisal struct {
	ID                 string              `json:"id" gorm:"primaryKey;size:32"`
	EmployeeID         string              `json:"employee_id" gorm:"size:32;not null;index"`
	TemplateID         string              `json:"template_id" gorm:"size:32;not null"`
	WorkflowID         string              `json:"workflow_id" gorm:"size:32;not null"`
	Period             string              `json:"period" gorm:"size:50;not null;index"`
	Status             string              `json:"status" gorm:"size:30;not null;default:in_progress"`
	CurrentStep        int                 `json:"current_step" gorm:"default:0"`
	StepAssignments    StepAssignments     `json:"step_assignments" gorm:"type:jsonb"`
	Reviews            Reviews             `json:"reviews" gorm:"type:jsonb"`
	LockedQuestions    QuestionLocks       `json:"locked_questions,omitempty" gorm:"type:jsonb"`
	History            History             `json:"history" gorm:"type:jsonb"`
	RejectionReason    string              `json:"rejection_reason,omitempty" gorm:"type:text"`
	OverallScore       *float64            `json:"overall_score,omitempty" gorm:"type:decimal(5,2)"`
	FinalComments      string              `json:"final_comments,omitempty" gorm:"type:text"`
	AdminEditedVersion *AdminEditedVersion `json:"admin_edited_version,omitempty" gorm:"type:jsonb"`
	IsAdminEdited      bool                `json:"is_admin_edited" gorm:"default:false"`
	Version            int                 `json:"version" gorm:"default:0"` // 乐观并发控制
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`

	// 关联
	Employee *User `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
}

func (Appraisal) TableName() string {
	return "hr_appraisals"
}

// AssignmentFor 按步骤ID查找分配记录
func (a *Appraisal) AssignmentFor(stepID string) *StepAssignment {
	for i := range a.StepAssignments {
		if a.StepAssignments[i].StepID == stepID {
			return &a.StepAssignments[i]
		}
	}
	return nil
}

// AssignmentAt 按索引取分配记录，越界返回nil
func (a *Appraisal) AssignmentAt(index int) *StepAssignment {
	if index < 0 || index >= len(a.StepAssignments) {
		return nil
	}
	return &a.StepAssignments[index]
}

// ReviewFor 按步骤ID查找评审记录
func (a *Appraisal) ReviewFor(stepID string) *Review {
	for i := range a.Reviews {
		if a.Reviews[i].StepID == stepID {
			return &a.Reviews[i]
		}
	}
	return nil
}

// UpsertReview 写入评审记录：同step_id替换，否则追加
func (a *Appraisal) UpsertReview(review Review) {
	for i := range a.Reviews {
		if a.Reviews[i].StepID == review.StepID {
			a.Reviews[i] = review
			return
		}
	}
	a.Reviews = append(a.Reviews, review)
}

// AppendHistory 追加历史条目
func (a *Appraisal) AppendHistory(action, actor, comment string, at time.Time) {
	a.History = append(a.History, HistoryEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: at,
		Comment:   comment,
	})
}

// LockFor 按题目ID查找锁
func (a *Appraisal) LockFor(questionID string) *QuestionLock {
	for i := range a.LockedQuestions {
		if a.LockedQuestions[i].QuestionID == questionID {
			return &a.LockedQuestions[i]
		}
	}
	return nil
}

// RemoveLock 移除题目锁（若存在）
func (a *Appraisal) RemoveLock(questionID string) {
	for i := range a.LockedQuestions {
		if a.LockedQuestions[i].QuestionID == questionID {
			a.LockedQuestions = append(a.LockedQuestions[:i], a.LockedQuestions[i+1:]...)
			return
		}
	}
}
