// status.go
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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/localnerve/proposaldb/internal/database"
	"github.com/localnerve/proposaldb/internal/metrics"
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/wizard"
)

const notifySavepoint = "notify"

// StatusEngine owns the proposal status field. Every committed transition
// writes a history row and then fans out notifications; a notification
// failure is reported on the result and never undoes the status change.
type StatusEngine struct {
	db      *gorm.DB
	machine *wizard.Machine
	roles   Roles
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewStatusEngine builds a StatusEngine over the relational store.
func NewStatusEngine(db *gorm.DB, machine *wizard.Machine, roles Roles, m *metrics.Metrics, log *zap.Logger) *StatusEngine {
	if machine == nil {
		machine = wizard.NewMachine(nil)
	}
	if roles == (Roles{}) {
		roles = DefaultRoles
	}
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusEngine{
		db:      db,
		machine: machine,
		roles:   roles,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SubmitOptions tune the reviewer notification of a submission.
type SubmitOptions struct {
	// Priority of the reviewer notification: normal when empty, high or
	// urgent to escalate.
	Priority types.Priority `json:"priority"`
}

// Transition is the outcome of a committed status change.
type Transition struct {
	ProposalID        string                `json:"proposalId"`
	From              types.Status          `json:"from"`
	To                types.Status          `json:"to"`
	CurrentSection    types.Section         `json:"currentSection"`
	Notifications     []models.Notification `json:"notifications"`
	NotificationError string                `json:"notificationError,omitempty"`
}

// ParseDecision maps a review decision to its target status.
func ParseDecision(raw string) (types.Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return types.StatusApproved, nil
	case "reject", "rejected":
		return types.StatusRejected, nil
	case "revise", "revision", "revision_requested", "request_revision":
		return types.StatusRevisionRequested, nil
	}
	return "", &types.ValidationError{
		Message: fmt.Sprintf("unknown review decision %q", raw),
		Fields:  []types.FieldError{{Field: "decision", Reason: "must be approved, rejected or revision_requested"}},
	}
}

// transition describes one legal edge of the status graph.
type transition struct {
	from      types.Status
	to        types.Status
	authorize func(actor *types.Actor, p *models.Proposal) error
	guard     func(p *models.Proposal) error
	apply     func(actor *types.Actor, p *models.Proposal, now time.Time)
	notify    func(p *models.Proposal) []models.Notification
	comments  string
}

// Submit moves a complete draft to pending and notifies the reviewer role.
func (e *StatusEngine) Submit(ctx context.Context, actor *types.Actor, id string, opts SubmitOptions) (*Transition, error) {
	priority := opts.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}
	switch priority {
	case types.PriorityNormal, types.PriorityHigh, types.PriorityUrgent:
	default:
		return nil, &types.ValidationError{
			Message: fmt.Sprintf("submission priority %q not allowed", priority),
			Fields:  []types.FieldError{{Field: "priority", Reason: "must be normal, high or urgent"}},
		}
	}

	return e.run(ctx, actor, id, transition{
		from: types.StatusDraft,
		to:   types.StatusPending,
		authorize: func(actor *types.Actor, p *models.Proposal) error {
			if p.IsOwner(actor.ID) || e.roles.IsAdmin(actor) {
				return nil
			}
			return &types.ForbiddenError{Reason: "only the owner may submit this proposal"}
		},
		guard: func(p *models.Proposal) error {
			return e.machine.ValidateComplete(p)
		},
		apply: func(_ *types.Actor, p *models.Proposal, now time.Time) {
			p.CurrentSection = types.SectionReporting
			p.SubmittedAt = &now
			if pct, err := e.machine.Completion(p); err == nil {
				p.FormCompletionPercentage = wizard.Monotonic(p.FormCompletionPercentage, pct)
			}
		},
		notify: func(p *models.Proposal) []models.Notification {
			n := newNotification(types.NotificationProposalSubmitted, priority, p,
				fmt.Sprintf("%s was submitted for review.", displayName(p)))
			role := e.roles.Reviewer
			n.TargetType = types.TargetRole
			n.TargetRole = &role
			return []models.Notification{n}
		},
	})
}

// Review records a reviewer decision on a pending proposal and notifies the owner.
func (e *StatusEngine) Review(ctx context.Context, actor *types.Actor, id string, decision types.Status, comments string) (*Transition, error) {
	var kind types.NotificationType
	switch decision {
	case types.StatusApproved:
		kind = types.NotificationProposalApproved
	case types.StatusRejected:
		kind = types.NotificationProposalRejected
	case types.StatusRevisionRequested:
		kind = types.NotificationRevisionRequested
	default:
		return nil, &types.StateTransitionError{
			From:  string(types.StatusPending),
			To:    string(decision),
			Guard: "a review decides approved, rejected or revision_requested",
		}
	}
	comments = sanitizeText(comments)

	return e.run(ctx, actor, id, transition{
		from:     types.StatusPending,
		to:       decision,
		comments: comments,
		authorize: func(actor *types.Actor, _ *models.Proposal) error {
			if e.roles.CanReview(actor) {
				return nil
			}
			return &types.ForbiddenError{Reason: "review requires a reviewer or admin role"}
		},
		apply: func(actor *types.Actor, p *models.Proposal, now time.Time) {
			p.ReviewedAt = &now
			p.ReviewedBy = actor.ID
			p.ReviewComments = comments
		},
		notify: func(p *models.Proposal) []models.Notification {
			msg := fmt.Sprintf("%s: %s.", displayName(p), strings.ToLower(humanize(string(decision))))
			if comments != "" {
				msg += " " + comments
			}
			return []models.Notification{ownerNotification(kind, types.PriorityNormal, p, msg)}
		},
	})
}

// Reopen returns a proposal with requested revisions to draft.
func (e *StatusEngine) Reopen(ctx context.Context, actor *types.Actor, id string) (*Transition, error) {
	return e.run(ctx, actor, id, transition{
		from: types.StatusRevisionRequested,
		to:   types.StatusDraft,
		authorize: func(actor *types.Actor, p *models.Proposal) error {
			if p.IsOwner(actor.ID) || e.roles.CanReview(actor) {
				return nil
			}
			return &types.ForbiddenError{Reason: "only the owner or a reviewer may reopen this proposal"}
		},
		notify: func(p *models.Proposal) []models.Notification {
			return []models.Notification{ownerNotification(types.NotificationProposalReopened, types.PriorityLow, p,
				fmt.Sprintf("%s is open for editing again.", displayName(p)))}
		},
	})
}

// History lists the committed transitions of a proposal, oldest first.
func (e *StatusEngine) History(ctx context.Context, id string) ([]models.StatusHistory, error) {
	if err := checkProposalID(id, e.metrics); err != nil {
		return nil, err
	}
	var rows []models.StatusHistory
	err := e.db.WithContext(ctx).
		Session(&gorm.Session{Logger: e.db.Logger.LogMode(logger.Silent)}).
		Where("proposal_id = ?", id).
		Order("history_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, database.Classify("list status history", err)
	}
	return rows, nil
}

func (e *StatusEngine) run(ctx context.Context, actor *types.Actor, id string, t transition) (*Transition, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := checkProposalID(id, e.metrics); err != nil {
		return nil, err
	}

	var result Transition
	err := lockedProposal(ctx, e.db, id, func(tx *gorm.DB, p *models.Proposal) error {
		if p.Status != t.from {
			return &types.StateTransitionError{
				From:  string(p.Status),
				To:    string(t.to),
				Guard: fmt.Sprintf("only %s proposals can move to %s", t.from, t.to),
			}
		}
		if err := t.authorize(actor, p); err != nil {
			return err
		}
		if t.guard != nil {
			if err := t.guard(p); err != nil {
				return err
			}
		}

		now := e.now()
		p.Status = t.to
		if t.apply != nil {
			t.apply(actor, p, now)
		}
		if _, err := types.ParseSection(string(p.CurrentSection)); err != nil {
			return err
		}
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		history := models.StatusHistory{
			ProposalID: p.ID,
			FromStatus: t.from,
			ToStatus:   t.to,
			ChangedBy:  actor.ID,
			Comments:   t.comments,
			CreatedAt:  now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		result = Transition{
			ProposalID:     p.ID,
			From:           t.from,
			To:             t.to,
			CurrentSection: p.CurrentSection,
			Notifications:  []models.Notification{},
		}
		if t.notify != nil {
			notes, err := e.insertNotifications(tx, actor, t.notify(p), now)
			if err != nil {
				result.NotificationError = err.Error()
			} else {
				result.Notifications = notes
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.StatusTransitions.WithLabelValues(string(result.From), string(result.To)).Inc()
	e.log.Info("proposal status changed",
		zap.String("proposalId", result.ProposalID),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
		zap.String("actor", actor.ID),
		zap.Int("notifications", len(result.Notifications)))

	return &result, nil
}

// insertNotifications writes the fan-out under a savepoint so a failure rolls
// back only the notifications.
func (e *StatusEngine) insertNotifications(tx *gorm.DB, actor *types.Actor, notes []models.Notification, now time.Time) ([]models.Notification, error) {
	if len(notes) == 0 {
		return []models.Notification{}, nil
	}
	kind := string(notes[0].NotificationType)

	fail := func(err error) error {
		e.metrics.NotificationFailures.WithLabelValues(kind).Inc()
		e.log.Error("notification fan-out failed; status change kept",
			zap.String("type", kind),
			zap.Error(err))
		return fmt.Errorf("notification not created: %w", err)
	}

	if err := tx.SavePoint(notifySavepoint).Error; err != nil {
		return nil, fail(err)
	}
	for i := range notes {
		notes[i].CreatedBy = actor.ID
		notes[i].CreatedAt = now
		err := notes[i].ValidateTarget()
		if err == nil {
			err = tx.Create(&notes[i]).Error
		}
		if err != nil {
			if rbErr := tx.RollbackTo(notifySavepoint).Error; rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return nil, fail(err)
		}
	}
	return notes, nil
}

func newNotification(kind types.NotificationType, priority types.Priority, p *models.Proposal, message string) models.Notification {
	related := p.ID
	return models.Notification{
		ID:                types.NewCanonicalID(),
		Title:             humanize(string(kind)),
		Message:           message,
		NotificationType:  kind,
		Priority:          priority,
		RelatedProposalID: &related,
	}
}

func ownerNotification(kind types.NotificationType, priority types.Priority, p *models.Proposal, message string) models.Notification {
	n := newNotification(kind, priority, p, message)
	owner := p.OwnerID
	n.TargetType = types.TargetUser
	n.TargetUserID = &owner
	return n
}

func displayName(p *models.Proposal) string {
	switch {
	case strings.TrimSpace(p.EventName) != "":
		return fmt.Sprintf("Proposal %q", p.EventName)
	case strings.TrimSpace(p.OrganizationName) != "":
		return fmt.Sprintf("Proposal from %s", p.OrganizationName)
	}
	return "Proposal " + p.ID
}
