package models

import (
	"time"

	"github.com/localnerve/proposaldb/internal/types"
)

// Notification is a targeted record created by the status engine or an administrator.
// After creation only IsRead and IsHidden change, and only for user targets; role and
// broadcast recipients mark their own NotificationReceipt.
type Notification struct {
	ID                string                 `gorm:"primaryKey;type:char(36)" json:"id"`
	TargetType        types.TargetType       `gorm:"size:8;not null;index:idx_notifications_target,priority:1;check:chk_notifications_target,(target_type = 'user' AND target_user_id IS NOT NULL AND target_role IS NULL) OR (target_type = 'role' AND target_role IS NOT NULL AND target_user_id IS NULL) OR (target_type = 'all' AND target_user_id IS NULL AND target_role IS NULL)" json:"targetType"`
	TargetUserID      *string                `gorm:"size:64;index:idx_notifications_target,priority:2" json:"targetUserId"`
	TargetRole        *string                `gorm:"size:64;index:idx_notifications_target,priority:3" json:"targetRole"`
	Title             string                 `gorm:"size:255;not null" json:"title"`
	Message           string                 `gorm:"type:text;not null" json:"message"`
	NotificationType  types.NotificationType `gorm:"size:32;not null" json:"notificationType"`
	Priority          types.Priority         `gorm:"size:8;not null" json:"priority"`
	RelatedProposalID *string                `gorm:"type:char(36);index" json:"relatedProposalId,omitempty"`
	CreatedBy         string                 `gorm:"size:64" json:"createdBy,omitempty"`
	IsRead            bool                   `gorm:"not null;default:false" json:"isRead"`
	IsHidden          bool                   `gorm:"not null;default:false" json:"isHidden"`
	CreatedAt         time.Time              `gorm:"index" json:"createdAt"`
	ExpiresAt         *time.Time             `json:"expiresAt,omitempty"`
}

// TableName overrides the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// ValidateTarget enforces that exactly the target fields implied by TargetType are set.
func (n *Notification) ValidateTarget() error {
	empty := func(s *string) bool { return s == nil || *s == "" }

	var fields []types.FieldError
	switch n.TargetType {
	case types.TargetUser:
		if empty(n.TargetUserID) {
			fields = append(fields, types.FieldError{Field: "targetUserId", Reason: "required when targetType is user"})
		}
		if !empty(n.TargetRole) {
			fields = append(fields, types.FieldError{Field: "targetRole", Reason: "must be empty when targetType is user"})
		}
	case types.TargetRole:
		if empty(n.TargetRole) {
			fields = append(fields, types.FieldError{Field: "targetRole", Reason: "required when targetType is role"})
		}
		if !empty(n.TargetUserID) {
			fields = append(fields, types.FieldError{Field: "targetUserId", Reason: "must be empty when targetType is role"})
		}
	case types.TargetAll:
		if !empty(n.TargetUserID) {
			fields = append(fields, types.FieldError{Field: "targetUserId", Reason: "must be empty when targetType is all"})
		}
		if !empty(n.TargetRole) {
			fields = append(fields, types.FieldError{Field: "targetRole", Reason: "must be empty when targetType is all"})
		}
	default:
		fields = append(fields, types.FieldError{Field: "targetType", Reason: "must be user, role or all"})
	}

	if len(fields) > 0 {
		return &types.ValidationError{Message: "inconsistent notification target", Fields: fields}
	}
	return nil
}

// VisibleTo reports whether the notification is addressed to the given user or roles.
func (n *Notification) VisibleTo(userID string, roles []string) bool {
	switch n.TargetType {
	case types.TargetAll:
		return true
	case types.TargetUser:
		return n.TargetUserID != nil && *n.TargetUserID == userID
	case types.TargetRole:
		if n.TargetRole == nil {
			return false
		}
		for _, r := range roles {
			if r == *n.TargetRole {
				return true
			}
		}
	}
	return false
}
