// enums.go
//
// Draft identity and hybrid persistence service for event proposals
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of proposaldb.
// proposaldb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// proposaldb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with proposaldb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package types

import (
	"fmt"
	"strings"
)

// Section is the persisted wizard position of a proposal.
// The set is closed and mirrored by a CHECK constraint on proposals.current_section.
type Section string

const (
	SectionOverview       Section = "overview"
	SectionOrgInfo        Section = "orgInfo"
	SectionSchoolEvent    Section = "schoolEvent"
	SectionCommunityEvent Section = "communityEvent"
	SectionReporting      Section = "reporting"
)

// Sections lists every member of the closed Section set in wizard order.
var Sections = []Section{
	SectionOverview,
	SectionOrgInfo,
	SectionSchoolEvent,
	SectionCommunityEvent,
	SectionReporting,
}

// Valid reports whether s is a member of the closed set.
func (s Section) Valid() bool {
	for _, member := range Sections {
		if s == member {
			return true
		}
	}
	return false
}

// ParseSection returns the Section named by raw. Non-members are rejected, never coerced.
func ParseSection(raw string) (Section, error) {
	s := Section(raw)
	if !s.Valid() {
		return "", &ValidationError{
			Message: fmt.Sprintf("unknown section %q", raw),
			Fields:  []FieldError{{Field: "currentSection", Reason: "not a member of " + sectionList()}},
		}
	}
	return s, nil
}

// SectionCheckSQL is the CHECK constraint body guarding proposals.current_section.
func SectionCheckSQL() string {
	quoted := make([]string, len(Sections))
	for i, s := range Sections {
		quoted[i] = "'" + string(s) + "'"
	}
	return "current_section IN (" + strings.Join(quoted, ",") + ")"
}

func sectionList() string {
	names := make([]string, len(Sections))
	for i, s := range Sections {
		names[i] = string(s)
	}
	return strings.Join(names, "|")
}

// Status is the lifecycle status of a proposal.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusRevisionRequested Status = "revision_requested"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusRevisionRequested:
		return true
	}
	return false
}

// Editable reports whether the owner may still change proposal content.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusPending
}

// EventType selects which event section a proposal goes through.
type EventType string

const (
	EventTypeSchool    EventType = "school-based"
	EventTypeCommunity EventType = "community-based"
)

// Valid reports whether e is a supported event type.
func (e EventType) Valid() bool {
	return e == EventTypeSchool || e == EventTypeCommunity
}

// Section returns the event section for the event type, or "" when unsupported.
func (e EventType) Section() Section {
	switch e {
	case EventTypeSchool:
		return SectionSchoolEvent
	case EventTypeCommunity:
		return SectionCommunityEvent
	}
	return ""
}

// ParseEventType accepts the canonical names plus the short forms used by the client.
func ParseEventType(raw string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "school-based", "school", "school_based", "schoolevent":
		return EventTypeSchool, true
	case "community-based", "community", "community_based", "communityevent":
		return EventTypeCommunity, true
	}
	return "", false
}

// EventMode is how an event is held.
type EventMode string

const (
	EventModeOffline EventMode = "offline"
	EventModeOnline  EventMode = "online"
	EventModeHybrid  EventMode = "hybrid"
)

// Valid reports whether m is a known event mode.
func (m EventMode) Valid() bool {
	return m == EventModeOffline || m == EventModeOnline || m == EventModeHybrid
}

// OrganizationType classifies the submitting organization.
type OrganizationType string

const (
	OrganizationSchoolBased         OrganizationType = "school-based"
	OrganizationCommunityBased      OrganizationType = "community-based"
	OrganizationCoordinatingCouncil OrganizationType = "coordinating-council"
	OrganizationOther               OrganizationType = "other"
)

// Valid reports whether o is a known organization type.
func (o OrganizationType) Valid() bool {
	switch o {
	case OrganizationSchoolBased, OrganizationCommunityBased, OrganizationCoordinatingCouncil, OrganizationOther:
		return true
	}
	return false
}

// TargetType selects which of a notification's target fields is meaningful.
type TargetType string

const (
	TargetUser TargetType = "user"
	TargetRole TargetType = "role"
	TargetAll  TargetType = "all"
)

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// NotificationType names the event a notification reports.
type NotificationType string

const (
	NotificationProposalSubmitted NotificationType = "proposal_submitted"
	NotificationProposalApproved  NotificationType = "proposal_approved"
	NotificationProposalRejected  NotificationType = "proposal_rejected"
	NotificationRevisionRequested NotificationType = "revision_requested"
	NotificationProposalReopened  NotificationType = "proposal_reopened"
	NotificationAnnouncement      NotificationType = "announcement"
)

// Valid reports whether n is a known notification type.
func (n NotificationType) Valid() bool {
	switch n {
	case NotificationProposalSubmitted, NotificationProposalApproved, NotificationProposalRejected,
		NotificationRevisionRequested, NotificationProposalReopened, NotificationAnnouncement:
		return true
	}
	return false
}

// DataSource is the provenance tag on a merged proposal read.
type DataSource string

const (
	DataSourceHybrid         DataSource = "hybrid"
	DataSourceRelationalOnly DataSource = "relational-only"
)
