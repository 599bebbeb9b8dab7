package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// AuditLog 审计日志，只追加
type AuditLog struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	ActorID    string    `json:"actor_id" gorm:"size:32;not null;index"`
	Action     string    `json:"action" gorm:"size:50;not null;index"`
	EntityType string    `json:"entity_type" gorm:"size:50;not null"`
	EntityID   string    `json:"entity_id" gorm:"size:32;index"`
	Details    string    `json:"details" gorm:"type:text"`
	Changes    JSONB     `json:"changes,omitempty" gorm:"type:jsonb"`
	Metadata   JSONB     `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "hr_audit_logs"
}
