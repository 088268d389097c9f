// coordinator.go
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
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/localnerve/proposaldb/internal/database"
	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/metrics"
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/wizard"
)

// Roles names the privileged roles.
type Roles struct {
	Reviewer string
	Admin    string
}

// DefaultRoles are used when a service is built without explicit roles.
var DefaultRoles = Roles{Reviewer: "reviewer", Admin: "admin"}

// IsAdmin reports whether the actor administers every proposal.
func (r Roles) IsAdmin(actor *types.Actor) bool {
	return actor.HasRole(r.Admin)
}

// CanReview reports whether the actor may review submitted proposals.
func (r Roles) CanReview(actor *types.Actor) bool {
	return actor.HasRole(r.Reviewer) || actor.HasRole(r.Admin)
}

// Coordinator is the only component that reads and writes both the relational
// proposal row and the document-side attachment stores.
type Coordinator struct {
	db          *gorm.DB
	attachments documents.AttachmentStore
	blobs       documents.BlobStore
	machine     *wizard.Machine
	status      *StatusEngine
	roles       Roles
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// CoordinatorOptions are the injected handles of a Coordinator.
type CoordinatorOptions struct {
	DB          *gorm.DB
	Attachments documents.AttachmentStore
	Blobs       documents.BlobStore
	Machine     *wizard.Machine
	Status      *StatusEngine
	Roles       Roles
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// NewCoordinator builds a Coordinator from explicit store handles.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	c := &Coordinator{
		db:          opts.DB,
		attachments: opts.Attachments,
		blobs:       opts.Blobs,
		machine:     opts.Machine,
		status:      opts.Status,
		roles:       opts.Roles,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if c.machine == nil {
		c.machine = wizard.NewMachine(nil)
	}
	if c.roles == (Roles{}) {
		c.roles = DefaultRoles
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Machine returns the section state machine the coordinator guards writes with.
func (c *Coordinator) Machine() *wizard.Machine {
	return c.machine
}

// Draft is the result of creating a draft or choosing its event type.
// Warnings name inputs that were applied fail-closed rather than as sent.
type Draft struct {
	DraftID              string             `json:"draftId"`
	EventType            types.EventType    `json:"eventType,omitempty"`
	CurrentSection       types.Section      `json:"currentSection"`
	Status               types.Status       `json:"status"`
	CompletionPercentage int                `json:"completionPercentage"`
	Warnings             []types.FieldError `json:"warnings,omitempty"`
}

func draftOf(p *models.Proposal) *Draft {
	return &Draft{
		DraftID:              p.ID,
		EventType:            p.EventType,
		CurrentSection:       p.CurrentSection,
		Status:               p.Status,
		CompletionPercentage: p.FormCompletionPercentage,
	}
}

// CreateDraft assigns a canonical id to a new draft. A recognized event type
// places the draft on orgInfo; anything else leaves it on overview.
func (c *Coordinator) CreateDraft(ctx context.Context, actor *types.Actor, eventType, originalDescriptiveID string) (*Draft, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	p := models.Proposal{
		ID:                    types.NewCanonicalID(),
		OwnerID:               actor.ID,
		OriginalDescriptiveID: strings.TrimSpace(originalDescriptiveID),
		CurrentSection:        types.SectionOverview,
		Status:                types.StatusDraft,
	}
	if et, step, ok := c.machine.SelectEventType(eventType); ok {
		p.EventType = et
		p.CurrentSection = step.Section()
	}
	if pct, err := c.machine.Completion(&p); err == nil {
		p.FormCompletionPercentage = pct
	}

	if err := c.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, database.Classify("create draft", err)
	}

	c.log.Info("draft created",
		zap.String("proposalId", p.ID),
		zap.String("ownerId", p.OwnerID),
		zap.String("descriptiveId", p.OriginalDescriptiveID),
		zap.String("eventType", string(p.EventType)))

	return draftOf(&p), nil
}

// SetEventType records the event type choice of a draft. Unknown selections fail
// closed: the stored event type is cleared, the draft moves to orgInfo and the
// returned Draft carries a warning naming eventType.
func (c *Coordinator) SetEventType(ctx context.Context, actor *types.Actor, id, eventType string) (*Draft, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var (
		draft    *Draft
		rejected bool
	)
	err := c.withLockedProposal(ctx, id, func(tx *gorm.DB, p *models.Proposal) error {
		if !p.IsOwner(actor.ID) && !c.roles.IsAdmin(actor) {
			return &types.ForbiddenError{Reason: "only the owner may change the event type"}
		}
		if p.Status != types.StatusDraft {
			return &types.StateTransitionError{From: string(p.Status), To: string(p.Status), Guard: "event type can only change while draft"}
		}

		et, step, ok := c.machine.SelectEventType(eventType)
		rejected = !ok
		p.EventType = et
		onEventSection := p.CurrentSection == types.SectionSchoolEvent || p.CurrentSection == types.SectionCommunityEvent
		switch {
		case !ok, p.CurrentSection == types.SectionOverview:
			p.CurrentSection = step.Section()
		case onEventSection && p.CurrentSection != et.Section():
			// the old branch is no longer on the path
			p.CurrentSection = types.SectionOrgInfo
		}
		if pct, err := c.machine.Completion(p); err == nil {
			p.FormCompletionPercentage = wizard.Monotonic(p.FormCompletionPercentage, pct)
		}
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		draft = draftOf(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejected {
		draft.Warnings = []types.FieldError{{
			Field:  models.FieldEventType,
			Reason: fmt.Sprintf("unsupported event type %q cleared; must be school-based or community-based", eventType),
		}}
		c.log.Info("event type failed closed",
			zap.String("proposalId", draft.DraftID),
			zap.String("requested", eventType))
	}
	return draft, nil
}

// MergedProposal is a proposal joined with its attachment metadata.
type MergedProposal struct {
	Proposal    *models.Proposal           `json:"proposal"`
	Attachments []documents.FileAttachment `json:"attachments"`
	DataSource  types.DataSource           `json:"dataSource"`
}

// GetProposal returns the merged relational and document view of one proposal.
func (c *Coordinator) GetProposal(ctx context.Context, actor *types.Actor, id string) (*MergedProposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.authorizeRead(actor, p); err != nil {
		return nil, err
	}

	atts, err := c.attachments.ListByProposal(ctx, p.ID)
	if err != nil {
		return nil, types.Persistence("list attachments", err)
	}
	return merge(p, atts), nil
}

// DeleteProposal removes a proposal with its attachments. Owners may delete
// drafts; administrators may delete anything. Document-side records go first
// so a failure never leaves metadata without a row.
func (c *Coordinator) DeleteProposal(ctx context.Context, actor *types.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	p, err := c.load(ctx, id)
	if err != nil {
		return err
	}
	if !c.roles.IsAdmin(actor) {
		if !p.IsOwner(actor.ID) {
			return &types.ForbiddenError{Reason: "only the owner may delete this proposal"}
		}
		if p.Status != types.StatusDraft {
			return &types.StateTransitionError{From: string(p.Status), To: "deleted", Guard: "only drafts can be deleted by their owner"}
		}
	}

	removed, err := c.attachments.DeleteByProposal(ctx, p.ID)
	if err != nil {
		return types.Persistence("delete attachments", err)
	}
	c.deleteBlobs(ctx, removed)

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("proposal_id = ?", p.ID).Delete(&models.StatusHistory{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Proposal{}, "id = ?", p.ID).Error
	})
	if err != nil {
		return database.Classify("delete proposal", err)
	}

	c.log.Info("proposal deleted",
		zap.String("proposalId", p.ID),
		zap.String("actor", actor.ID),
		zap.Int("attachments", len(removed)))
	return nil
}

// load reads a proposal outside any transaction.
func (c *Coordinator) load(ctx context.Context, id string) (*models.Proposal, error) {
	if err := c.checkID(id); err != nil {
		return nil, err
	}
	var p models.Proposal
	err := c.db.WithContext(ctx).
		Session(&gorm.Session{Logger: c.db.Logger.LogMode(logger.Silent)}).
		Where("id = ?", id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &types.NotFoundError{Kind: "proposal", ID: id}
	}
	if err != nil {
		return nil, database.Classify("load proposal", err)
	}
	return &p, nil
}

// withLockedProposal runs fn in a transaction holding the proposal row lock.
// Any error from fn rolls the whole write back.
func (c *Coordinator) withLockedProposal(ctx context.Context, id string, fn func(tx *gorm.DB, p *models.Proposal) error) error {
	if err := c.checkID(id); err != nil {
		return err
	}
	return lockedProposal(ctx, c.db, id, fn)
}

func lockedProposal(ctx context.Context, db *gorm.DB, id string, fn func(tx *gorm.DB, p *models.Proposal) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Proposal
		err := tx.Session(&gorm.Session{Logger: tx.Logger.LogMode(logger.Silent)}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.NotFoundError{Kind: "proposal", ID: id}
		}
		if err != nil {
			return err
		}
		return fn(tx, &p)
	})
	return database.Classify("write proposal", err)
}

// checkID rejects placeholders before they reach a store.
func (c *Coordinator) checkID(id string) error {
	return checkProposalID(id, c.metrics)
}

func checkProposalID(id string, m *metrics.Metrics) error {
	if types.IsCanonicalID(id) {
		return nil
	}
	if types.IsFallbackID(id) {
		m.IdentityFallbacks.Inc()
		return &types.IdentityResolutionError{
			Reference: id,
			Err:       errors.New("placeholder id must be resolved to a canonical id first"),
		}
	}
	return &types.ValidationError{
		Message: fmt.Sprintf("malformed proposal id %q", id),
		Fields:  []types.FieldError{{Field: "id", Reason: "must be a canonical id"}},
	}
}

func (c *Coordinator) authorizeRead(actor *types.Actor, p *models.Proposal) error {
	if p.IsOwner(actor.ID) || c.roles.IsAdmin(actor) {
		return nil
	}
	if p.Status != types.StatusDraft && c.roles.CanReview(actor) {
		return nil
	}
	return &types.ForbiddenError{Reason: "proposal belongs to another user"}
}

// authorizeWrite enforces ownership: owners edit while draft or pending,
// reviewers share write access once the proposal is pending.
func (c *Coordinator) authorizeWrite(actor *types.Actor, p *models.Proposal) error {
	if !p.Status.Editable() {
		return &types.StateTransitionError{
			From:  string(p.Status),
			To:    string(p.Status),
			Guard: fmt.Sprintf("proposal is %s and no longer editable", p.Status),
		}
	}
	if p.IsOwner(actor.ID) || c.roles.IsAdmin(actor) {
		return nil
	}
	if p.Status == types.StatusPending && c.roles.CanReview(actor) {
		return nil
	}
	return &types.ForbiddenError{Reason: "proposal belongs to another user"}
}

func (c *Coordinator) deleteBlobs(ctx context.Context, atts []documents.FileAttachment) {
	for _, att := range atts {
		if att.StorageLocator == "" {
			continue
		}
		if err := c.blobs.Delete(ctx, att.StorageLocator); err != nil && !errors.Is(err, documents.ErrBlobNotFound) {
			c.log.Warn("blob delete failed",
				zap.String("proposalId", att.ProposalID),
				zap.String("role", att.Role),
				zap.String("locator", att.StorageLocator),
				zap.Error(err))
		}
	}
}

func merge(p *models.Proposal, atts []documents.FileAttachment) *MergedProposal {
	source := types.DataSourceRelationalOnly
	if len(atts) > 0 {
		source = types.DataSourceHybrid
	}
	if atts == nil {
		atts = []documents.FileAttachment{}
	}
	return &MergedProposal{Proposal: p, Attachments: atts, DataSource: source}
}
