package models

import (
	"time"

	"github.com/localnerve/proposaldb/internal/types"
)

// StatusHistory records every committed proposal status transition.
type StatusHistory struct {
	HistoryID  uint64       `gorm:"primaryKey;autoIncrement" json:"historyId"`
	ProposalID string       `gorm:"type:char(36);not null;index" json:"proposalId"`
	FromStatus types.Status `gorm:"size:32;not null" json:"fromStatus"`
	ToStatus   types.Status `gorm:"size:32;not null" json:"toStatus"`
	ChangedBy  string       `gorm:"size:64;not null" json:"changedBy"`
	Comments   string       `gorm:"type:text" json:"comments,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// TableName overrides the table name for StatusHistory
func (StatusHistory) TableName() string {
	return "proposal_status_history"
}
