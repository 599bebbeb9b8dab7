package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 系统角色常量
const (
	RoleEmployee   = "employee"
	RoleSupervisor = "supervisor"
	RoleHR         = "hr"
	RoleCommittee  = "committee"
	RoleHRAdmin    = "hr_admin" // 顶级管理角色
)

// IsElevatedRole 判断角色是否具备管理员修订权限
func IsElevatedRole(role string) bool {
	return role == RoleHR || role == RoleHRAdmin
}

// StringList JSONB字符串数组
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan StringList: %v", value)
	}
	return json.Unmarshal(bytes, l)
}

// User 员工
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;size:32"`
	FeishuUserID string     `json:"feishu_user_id" gorm:"size:64;index"`
	FeishuOpenID string     `json:"feishu_open_id" gorm:"size:64"`
	Username     string     `json:"username" gorm:"size:64"`
	Name         string     `json:"name" gorm:"size:100;not null"`
	Email        string     `json:"email" gorm:"size:200"`
	Mobile       string     `json:"mobile" gorm:"size:20"`
	AvatarURL    string     `json:"avatar_url" gorm:"size:500"`
	SupervisorID string     `json:"supervisor_id,omitempty" gorm:"size:32;index"` // 直属上级，可为空
	DepartmentID string     `json:"department_id,omitempty" gorm:"size:32;index"`
	Roles        StringList `json:"roles" gorm:"type:jsonb"`
	Status       string     `json:"status" gorm:"size:20;default:active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// 关联
	Supervisor *User       `json:"supervisor,omitempty" gorm:"foreignKey:SupervisorID"`
	Department *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
}

func (User) TableName() string {
	return "hr_users"
}

// Department 部门
type Department struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	ParentID  string    `json:"parent_id,omitempty" gorm:"size:32;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Department) TableName() string {
	return "hr_departments"
}
