package models

import (
	"time"

	"github.com/localnerve/proposaldb/internal/types"
)

// NotificationReceipt holds one recipient's read and hide marks on a role or
// broadcast notification. User-targeted notifications keep their marks inline.
type NotificationReceipt struct {
	NotificationID string    `gorm:"primaryKey;type:char(36)" json:"notificationId"`
	UserID         string    `gorm:"primaryKey;size:64" json:"userId"`
	IsRead         bool      `gorm:"not null;default:false" json:"isRead"`
	IsHidden       bool      `gorm:"not null;default:false" json:"isHidden"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName overrides the table name for NotificationReceipt
func (NotificationReceipt) TableName() string {
	return "notification_receipts"
}

// InlineMarks reports whether read and hide marks live on the notification row.
// Only a single-recipient notification can carry them there.
func (n *Notification) InlineMarks() bool {
	return n.TargetType == types.TargetUser
}
