package entity

import "time"

// 通知类型
const (
	NotificationKindReviewTurn    = "review_turn"
	NotificationKindPendingAccept = "pending_accept"
	NotificationKindRejected      = "rejected"
	NotificationKindCompleted     = "completed"
	NotificationKindAdminEdit     = "admin_edit"
)

// Notification 站内通知
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	UserID    string    `json:"user_id" gorm:"size:32;not null;index"`
	Title     string    `json:"title" gorm:"size:200;not null"`
	Message   string    `json:"message" gorm:"type:text"`
	Kind      string    `json:"kind" gorm:"size:30"`
	Link      string    `json:"link" gorm:"size:500"`
	IsRead    bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "hr_notifications"
}
