package models

import (
	"strings"
	"time"

	"github.com/localnerve/proposaldb/internal/types"
)

// Proposal is the relational source of truth for a submission.
// Its id is assigned once at creation and never rewritten.
type Proposal struct {
	ID                    string `gorm:"primaryKey;type:char(36)" json:"id"`
	OwnerID               string `gorm:"size:64;not null;index" json:"ownerId"`
	OriginalDescriptiveID string `gorm:"size:255" json:"originalDescriptiveId,omitempty"`

	OrganizationName  string `gorm:"size:255" json:"organizationName"`
	OrganizationTypes JSON   `json:"organizationTypes"`
	ContactName       string `gorm:"size:255" json:"contactName"`
	ContactEmail      string `gorm:"size:255" json:"contactEmail"`
	ContactPhone      string `gorm:"size:64" json:"contactPhone"`

	EventType      types.EventType `gorm:"size:32;index:idx_proposals_status_type,priority:2" json:"eventType"`
	EventName      string          `gorm:"size:255" json:"eventName"`
	EventVenue     string          `gorm:"size:255" json:"eventVenue"`
	EventCategory  string          `gorm:"size:64" json:"eventCategory"`
	EventStartDate *time.Time      `json:"eventStartDate"`
	EventEndDate   *time.Time      `json:"eventEndDate"`
	EventMode      types.EventMode `gorm:"size:16" json:"eventMode"`
	TargetAudience JSON            `json:"targetAudience"`

	ReportDescription string  `gorm:"type:text" json:"reportDescription"`
	AttendanceCount   *uint64 `json:"attendanceCount"`

	// Roles of attachments the coordinator has confirmed in the document store.
	AttachmentRoles   JSON `json:"attachmentRoles"`
	DeclaredFileCount int  `gorm:"not null;default:0" json:"declaredFileCount"`

	CurrentSection           types.Section `gorm:"size:32;not null;check:chk_proposals_current_section,current_section IN ('overview','orgInfo','schoolEvent','communityEvent','reporting')" json:"currentSection"`
	FormCompletionPercentage int           `gorm:"not null;default:0;check:chk_proposals_completion,form_completion_percentage BETWEEN 0 AND 100" json:"formCompletionPercentage"`
	Status                   types.Status  `gorm:"size:32;not null;index:idx_proposals_status_type,priority:1" json:"status"`
	ReviewComments           string        `gorm:"type:text" json:"reviewComments,omitempty"`
	ReviewedBy               string        `gorm:"size:64" json:"reviewedBy,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"index" json:"updatedAt"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}

// TableName overrides the table name for Proposal
func (Proposal) TableName() string {
	return "proposals"
}

// Field names shared by the wizard rules, the section payloads and the API.
const (
	FieldOrganizationName  = "organizationName"
	FieldOrganizationTypes = "organizationTypes"
	FieldContactName       = "contactName"
	FieldContactEmail      = "contactEmail"
	FieldContactPhone      = "contactPhone"
	FieldEventType         = "eventType"
	FieldEventName         = "eventName"
	FieldEventVenue        = "eventVenue"
	FieldEventCategory     = "eventCategory"
	FieldEventStartDate    = "eventStartDate"
	FieldEventEndDate      = "eventEndDate"
	FieldEventMode         = "eventMode"
	FieldTargetAudience    = "targetAudience"
	FieldReportDescription = "reportDescription"
	FieldAttendanceCount   = "attendanceCount"
)

// Present reports whether the named field holds a non-empty value.
func (p *Proposal) Present(field string) bool {
	switch field {
	case FieldOrganizationName:
		return strings.TrimSpace(p.OrganizationName) != ""
	case FieldOrganizationTypes:
		return len(p.OrganizationTypes.Strings()) > 0
	case FieldContactName:
		return strings.TrimSpace(p.ContactName) != ""
	case FieldContactEmail:
		return strings.TrimSpace(p.ContactEmail) != ""
	case FieldContactPhone:
		return strings.TrimSpace(p.ContactPhone) != ""
	case FieldEventType:
		return p.EventType.Valid()
	case FieldEventName:
		return strings.TrimSpace(p.EventName) != ""
	case FieldEventVenue:
		return strings.TrimSpace(p.EventVenue) != ""
	case FieldEventCategory:
		return strings.TrimSpace(p.EventCategory) != ""
	case FieldEventStartDate:
		return p.EventStartDate != nil && !p.EventStartDate.IsZero()
	case FieldEventEndDate:
		return p.EventEndDate != nil && !p.EventEndDate.IsZero()
	case FieldEventMode:
		return p.EventMode.Valid()
	case FieldTargetAudience:
		return len(p.TargetAudience.Strings()) > 0
	case FieldReportDescription:
		return strings.TrimSpace(p.ReportDescription) != ""
	case FieldAttendanceCount:
		return p.AttendanceCount != nil
	}
	return false
}

// Value returns the named field as a plain value for rule conditions.
func (p *Proposal) Value(field string) any {
	switch field {
	case FieldOrganizationName:
		return p.OrganizationName
	case FieldOrganizationTypes:
		return p.OrganizationTypes.Strings()
	case FieldContactName:
		return p.ContactName
	case FieldContactEmail:
		return p.ContactEmail
	case FieldContactPhone:
		return p.ContactPhone
	case FieldEventType:
		return string(p.EventType)
	case FieldEventName:
		return p.EventName
	case FieldEventVenue:
		return p.EventVenue
	case FieldEventCategory:
		return p.EventCategory
	case FieldEventMode:
		return string(p.EventMode)
	case FieldTargetAudience:
		return p.TargetAudience.Strings()
	case FieldReportDescription:
		return p.ReportDescription
	case FieldAttendanceCount:
		if p.AttendanceCount == nil {
			return 0
		}
		return int(*p.AttendanceCount)
	}
	return nil
}

// SelectedEventType reports the stored event type.
func (p *Proposal) SelectedEventType() types.EventType {
	return p.EventType
}

// IsOwner reports whether userID created the proposal.
func (p *Proposal) IsOwner(userID string) bool {
	return userID != "" && p.OwnerID == userID
}
