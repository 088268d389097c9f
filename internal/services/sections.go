package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/wizard"
)

// OverviewInput carries the event type selection.
type OverviewInput struct {
	EventType string `json:"eventType"`
}

// OrgInfoInput is the organization section payload.
type OrgInfoInput struct {
	OrganizationName  string                 `json:"organizationName"`
	OrganizationTypes types.FlexList[string] `json:"organizationTypes"`
	ContactName       string                 `json:"contactName"`
	ContactEmail      string                 `json:"contactEmail"`
	ContactPhone      string                 `json:"contactPhone"`
}

// EventInput is the payload of both event sections.
type EventInput struct {
	EventName      string                 `json:"eventName"`
	EventVenue     string                 `json:"eventVenue"`
	EventCategory  string                 `json:"eventCategory"`
	EventStartDate string                 `json:"eventStartDate"`
	EventEndDate   string                 `json:"eventEndDate"`
	EventMode      string                 `json:"eventMode"`
	TargetAudience types.FlexList[string] `json:"targetAudience"`
	// ContactPhone is only written when non-empty; orgInfo owns the field.
	ContactPhone string `json:"contactPhone"`
}

// ReportingInput is the post-event reporting payload.
type ReportingInput struct {
	ReportDescription string      `json:"reportDescription"`
	AttendanceCount   types.Count `json:"attendanceCount"`
}

// SectionInput is a section save. Exactly one payload is set, matching Section.
type SectionInput struct {
	ProposalID string
	Section    types.Section
	// Draft stores the fields without running the forward guard.
	Draft bool
	// Submit hands the proposal to review after a reporting save.
	Submit bool

	Overview  *OverviewInput
	OrgInfo   *OrgInfoInput
	Event     *EventInput
	Reporting *ReportingInput
}

// SectionResult reports where a proposal stands after a save.
type SectionResult struct {
	ID                   string        `json:"id"`
	CompletionPercentage int           `json:"completionPercentage"`
	CurrentSection       types.Section `json:"currentSection"`
	Status               types.Status  `json:"status"`
	NotificationError    string        `json:"notificationError,omitempty"`
}

type sectionEnvelope struct {
	ProposalID string `json:"proposalId"`
	Draft      bool   `json:"draft"`
	Submit     bool   `json:"submit"`
}

// DecodeSectionInput builds the typed payload for section from a JSON field bag.
// The bag also carries proposalId, draft and submit.
func DecodeSectionInput(section string, raw []byte) (*SectionInput, error) {
	s, err := types.ParseSection(section)
	if err != nil {
		return nil, err
	}

	var env sectionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &types.ValidationError{Message: "malformed section payload: " + err.Error()}
	}
	in := &SectionInput{ProposalID: strings.TrimSpace(env.ProposalID), Section: s, Draft: env.Draft, Submit: env.Submit}

	var target any
	switch s {
	case types.SectionOverview:
		in.Overview = &OverviewInput{}
		target = in.Overview
	case types.SectionOrgInfo:
		in.OrgInfo = &OrgInfoInput{}
		target = in.OrgInfo
	case types.SectionSchoolEvent, types.SectionCommunityEvent:
		in.Event = &EventInput{}
		target = in.Event
	case types.SectionReporting:
		in.Reporting = &ReportingInput{}
		target = in.Reporting
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, &types.ValidationError{Message: fmt.Sprintf("malformed %s payload: %v", s, err)}
	}
	return in, nil
}

// validate checks the payload matches its section and that every supplied value
// is well formed. Empty values pass; presence is the wizard guard's concern.
func (in *SectionInput) validate() error {
	if in == nil {
		return &types.ValidationError{Message: "missing section payload"}
	}
	if _, err := types.ParseSection(string(in.Section)); err != nil {
		return err
	}
	if in.ProposalID == "" {
		return &types.ValidationError{Message: "missing proposal id", Fields: []types.FieldError{{Field: "proposalId", Reason: "required"}}}
	}
	if in.Submit && in.Section != types.SectionReporting {
		return &types.ValidationError{Message: "submit is only accepted with the reporting section", Fields: []types.FieldError{{Field: "submit", Reason: "reporting only"}}}
	}
	if in.Submit && in.Draft {
		return &types.ValidationError{Message: "a draft save cannot submit", Fields: []types.FieldError{{Field: "submit", Reason: "conflicts with draft"}}}
	}

	var fields []types.FieldError
	bad := func(field, reason string) { fields = append(fields, types.FieldError{Field: field, Reason: reason}) }

	switch in.Section {
	case types.SectionOverview:
		if in.Overview == nil {
			bad("eventType", "overview payload required")
		}
	case types.SectionOrgInfo:
		if in.OrgInfo == nil {
			bad("organizationName", "orgInfo payload required")
			break
		}
		if e := strings.TrimSpace(in.OrgInfo.ContactEmail); e != "" {
			if _, err := mail.ParseAddress(e); err != nil {
				bad(models.FieldContactEmail, "not a valid email address")
			}
		}
		for _, t := range in.OrgInfo.OrganizationTypes {
			if !types.OrganizationType(strings.TrimSpace(t)).Valid() {
				bad(models.FieldOrganizationTypes, fmt.Sprintf("unknown organization type %q", t))
			}
		}
	case types.SectionSchoolEvent, types.SectionCommunityEvent:
		if in.Event == nil {
			bad(models.FieldEventName, "event payload required")
			break
		}
		if m := strings.TrimSpace(in.Event.EventMode); m != "" && !types.EventMode(m).Valid() {
			bad(models.FieldEventMode, "must be offline, online or hybrid")
		}
		start, startErr := parseEventDate(in.Event.EventStartDate)
		if startErr != nil {
			bad(models.FieldEventStartDate, startErr.Error())
		}
		end, endErr := parseEventDate(in.Event.EventEndDate)
		if endErr != nil {
			bad(models.FieldEventEndDate, endErr.Error())
		}
		if start != nil && end != nil && end.Before(*start) {
			bad(models.FieldEventEndDate, "must not be before eventStartDate")
		}
	case types.SectionReporting:
		if in.Reporting == nil {
			bad(models.FieldReportDescription, "reporting payload required")
		}
	}

	if len(fields) > 0 {
		return &types.ValidationError{Message: fmt.Sprintf("invalid %s payload", in.Section), Fields: fields}
	}
	return nil
}

// apply writes the section's fields onto p. A section replaces its own fields.
func (in *SectionInput) apply(p *models.Proposal) {
	switch {
	case in.OrgInfo != nil:
		p.OrganizationName = strings.TrimSpace(in.OrgInfo.OrganizationName)
		p.OrganizationTypes = models.NewStringSet(trimAll(in.OrgInfo.OrganizationTypes))
		p.ContactName = strings.TrimSpace(in.OrgInfo.ContactName)
		p.ContactEmail = strings.TrimSpace(in.OrgInfo.ContactEmail)
		p.ContactPhone = strings.TrimSpace(in.OrgInfo.ContactPhone)
	case in.Event != nil:
		p.EventName = strings.TrimSpace(in.Event.EventName)
		p.EventVenue = strings.TrimSpace(in.Event.EventVenue)
		p.EventCategory = strings.TrimSpace(in.Event.EventCategory)
		p.EventStartDate, _ = parseEventDate(in.Event.EventStartDate)
		p.EventEndDate, _ = parseEventDate(in.Event.EventEndDate)
		p.EventMode = types.EventMode(strings.TrimSpace(in.Event.EventMode))
		p.TargetAudience = models.NewStringSet(trimAll(in.Event.TargetAudience))
		if phone := strings.TrimSpace(in.Event.ContactPhone); phone != "" {
			p.ContactPhone = phone
		}
	case in.Reporting != nil:
		p.ReportDescription = sanitizeText(in.Reporting.ReportDescription)
		p.AttendanceCount = in.Reporting.AttendanceCount.Ptr()
	}
}

// SaveSection writes one section of a proposal under the row lock. A non-draft
// save runs the forward guard against the merged data first; when the guard
// fails nothing is written and the stored section is unchanged.
func (c *Coordinator) SaveSection(ctx context.Context, actor *types.Actor, in *SectionInput) (*SectionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	if in.Overview != nil {
		draft, err := c.SetEventType(ctx, actor, in.ProposalID, in.Overview.EventType)
		if draft == nil {
			return nil, err
		}
		return &SectionResult{
			ID:                   draft.DraftID,
			CompletionPercentage: draft.CompletionPercentage,
			CurrentSection:       draft.CurrentSection,
			Status:               draft.Status,
		}, err
	}

	var result SectionResult
	err := c.withLockedProposal(ctx, in.ProposalID, func(tx *gorm.DB, p *models.Proposal) error {
		if err := c.authorizeWrite(actor, p); err != nil {
			return err
		}

		step := wizard.StepFor(in.Section)
		current := wizard.StepFor(p.CurrentSection)
		if err := c.machine.CanEnter(current, step, p.EventType); err != nil {
			return err
		}

		merged := *p
		in.apply(&merged)

		next := current
		if !in.Draft {
			if step == wizard.StepReporting {
				missing, err := c.machine.Rules().Missing(step, &merged)
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					return types.MissingFields(string(step), missing...)
				}
			} else {
				to, err := c.machine.Next(step, &merged)
				if err != nil {
					return err
				}
				next = c.machine.Furthest(merged.EventType, current, to)
			}
		}

		section, err := types.ParseSection(string(next.Section()))
		if err != nil {
			return err
		}
		merged.CurrentSection = section

		pct, err := c.machine.Completion(&merged)
		if err != nil {
			return err
		}
		merged.FormCompletionPercentage = wizard.Monotonic(p.FormCompletionPercentage, pct)

		if err := tx.Save(&merged).Error; err != nil {
			return err
		}

		result = SectionResult{
			ID:                   merged.ID,
			CompletionPercentage: merged.FormCompletionPercentage,
			CurrentSection:       merged.CurrentSection,
			Status:               merged.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug("section saved",
		zap.String("proposalId", result.ID),
		zap.String("section", string(in.Section)),
		zap.Bool("draft", in.Draft),
		zap.String("currentSection", string(result.CurrentSection)),
		zap.Int("completion", result.CompletionPercentage))

	if in.Submit {
		tr, err := c.status.Submit(ctx, actor, result.ID, SubmitOptions{})
		if err != nil {
			return &result, err
		}
		result.Status = tr.To
		result.CurrentSection = tr.CurrentSection
		result.NotificationError = tr.NotificationError
	}

	return &result, nil
}

// parseEventDate accepts a calendar date or an RFC 3339 timestamp. Empty is nil.
func parseEventDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("not a date: %q", raw)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func requireActor(actor *types.Actor) error {
	if actor == nil || actor.ID == "" {
		return &types.ForbiddenError{Reason: "an acting user is required"}
	}
	return nil
}
