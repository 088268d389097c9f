// consistency.go
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
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/localnerve/proposaldb/internal/database"
	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
)

// Consistency issue codes.
const (
	IssueOrphanedMetadata     = "orphaned_metadata"
	IssueFileCountMismatch    = "file_count_mismatch"
	IssueMissingAttachment    = "missing_attachment"
	IssueUndeclaredAttachment = "undeclared_attachment"
)

// Reconcile strategies.
const (
	StrategyAdoptDocuments = "adopt-documents"
	StrategyPurgeOrphans   = "purge-orphans"
)

// StorePresence says which store holds anything for an id.
type StorePresence struct {
	Relational bool `json:"relational"`
	Documents  bool `json:"documents"`
}

// ConsistencyReport compares both stores for one proposal id.
type ConsistencyReport struct {
	ProposalID        string                     `json:"proposalId"`
	Presence          StorePresence              `json:"presence"`
	DataSource        types.DataSource           `json:"dataSource"`
	Proposal          *models.Proposal           `json:"proposal,omitempty"`
	Attachments       []documents.FileAttachment `json:"attachments"`
	DeclaredRoles     []string                   `json:"declaredRoles"`
	StoredRoles       []string                   `json:"storedRoles"`
	DeclaredFileCount int                        `json:"declaredFileCount"`
	StoredFileCount   int                        `json:"storedFileCount"`
	Consistent        bool                       `json:"consistent"`
	Issues            []types.ConsistencyIssue   `json:"issues"`
}

// Err returns the report's issues as a ConsistencyError, or nil when consistent.
func (r *ConsistencyReport) Err() error {
	if r.Consistent {
		return nil
	}
	return &types.ConsistencyError{ProposalID: r.ProposalID, Issues: r.Issues}
}

// Debug compares the relational row and the document-side records for id.
// It never repairs anything.
func (c *Coordinator) Debug(ctx context.Context, actor *types.Actor, id string) (*ConsistencyReport, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !c.roles.CanReview(actor) {
		return nil, &types.ForbiddenError{Reason: "debug view requires a reviewer or admin role"}
	}
	report, err := c.inspect(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, issue := range report.Issues {
		c.metrics.ConsistencyIssues.WithLabelValues(issue.Code).Inc()
	}
	if !report.Consistent {
		c.log.Warn("consistency issues detected",
			zap.String("proposalId", id),
			zap.Error(report.Err()))
	}
	return report, nil
}

func (c *Coordinator) inspect(ctx context.Context, id string) (*ConsistencyReport, error) {
	p, err := c.load(ctx, id)
	var nf *types.NotFoundError
	if err != nil && !errors.As(err, &nf) {
		return nil, err
	}

	atts, err := c.attachments.ListByProposal(ctx, id)
	if err != nil {
		return nil, types.Persistence("list attachments", err)
	}
	if p == nil && len(atts) == 0 {
		return nil, &types.NotFoundError{Kind: "proposal", ID: id}
	}
	if atts == nil {
		atts = []documents.FileAttachment{}
	}

	report := &ConsistencyReport{
		ProposalID:      id,
		Presence:        StorePresence{Relational: p != nil, Documents: len(atts) > 0},
		Proposal:        p,
		Attachments:     atts,
		StoredRoles:     documents.Roles(atts),
		StoredFileCount: len(atts),
		DeclaredRoles:   []string{},
	}
	report.DataSource = types.DataSourceRelationalOnly
	if len(atts) > 0 {
		report.DataSource = types.DataSourceHybrid
	}

	if p == nil {
		report.Issues = append(report.Issues, types.ConsistencyIssue{
			Code:   IssueOrphanedMetadata,
			Detail: fmt.Sprintf("%d attachment record(s) reference a proposal row that does not exist", len(atts)),
		})
	} else {
		if declared := p.AttachmentRoles.Strings(); declared != nil {
			report.DeclaredRoles = declared
		}
		report.DeclaredFileCount = p.DeclaredFileCount
		report.Issues = append(report.Issues, compareRoles(report.DeclaredRoles, report.StoredRoles)...)
		if p.DeclaredFileCount != len(atts) {
			report.Issues = append(report.Issues, types.ConsistencyIssue{
				Code:   IssueFileCountMismatch,
				Detail: fmt.Sprintf("row declares %d file(s), document store holds %d", p.DeclaredFileCount, len(atts)),
			})
		}
	}
	report.Consistent = len(report.Issues) == 0
	if report.Issues == nil {
		report.Issues = []types.ConsistencyIssue{}
	}
	return report, nil
}

func compareRoles(declared, stored []string) []types.ConsistencyIssue {
	inStore := make(map[string]bool, len(stored))
	for _, r := range stored {
		inStore[r] = true
	}
	inRow := make(map[string]bool, len(declared))
	for _, r := range declared {
		inRow[r] = true
	}

	var issues []types.ConsistencyIssue
	for _, r := range declared {
		if !inStore[r] {
			issues = append(issues, types.ConsistencyIssue{Code: IssueMissingAttachment, Role: r, Detail: "declared on the row but absent from the document store"})
		}
	}
	for _, r := range stored {
		if !inRow[r] {
			issues = append(issues, types.ConsistencyIssue{Code: IssueUndeclaredAttachment, Role: r, Detail: "present in the document store but not declared on the row"})
		}
	}
	return issues
}

// Reconcile applies an explicit repair strategy to one id and returns the
// report after the repair. Administrators only.
func (c *Coordinator) Reconcile(ctx context.Context, actor *types.Actor, id, strategy string) (*ConsistencyReport, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !c.roles.IsAdmin(actor) {
		return nil, &types.ForbiddenError{Reason: "reconciliation requires the admin role"}
	}
	if err := c.reconcile(ctx, id, strategy); err != nil {
		return nil, err
	}
	c.log.Info("proposal reconciled",
		zap.String("proposalId", id),
		zap.String("strategy", strategy),
		zap.String("actor", actor.ID))

	report, err := c.inspect(ctx, id)
	var nf *types.NotFoundError
	if errors.As(err, &nf) && strategy == StrategyPurgeOrphans {
		return &ConsistencyReport{
			ProposalID:    id,
			DataSource:    types.DataSourceRelationalOnly,
			Attachments:   []documents.FileAttachment{},
			DeclaredRoles: []string{},
			StoredRoles:   []string{},
			Consistent:    true,
			Issues:        []types.ConsistencyIssue{},
		}, nil
	}
	return report, err
}

func (c *Coordinator) reconcile(ctx context.Context, id, strategy string) error {
	switch strategy {
	case StrategyAdoptDocuments:
		atts, err := c.attachments.ListByProposal(ctx, id)
		if err != nil {
			return types.Persistence("list attachments", err)
		}
		return c.withLockedProposal(ctx, id, func(tx *gorm.DB, p *models.Proposal) error {
			p.AttachmentRoles = models.NewStringSet(documents.Roles(atts))
			p.DeclaredFileCount = len(p.AttachmentRoles.Strings())
			return tx.Model(p).
				Select("attachment_roles", "declared_file_count", "updated_at").
				Updates(p).Error
		})

	case StrategyPurgeOrphans:
		_, err := c.load(ctx, id)
		if err == nil {
			return &types.ValidationError{
				Message: "proposal row exists; purge-orphans only removes metadata without a row",
				Fields:  []types.FieldError{{Field: "strategy", Reason: "use adopt-documents"}},
			}
		}
		var nf *types.NotFoundError
		if !errors.As(err, &nf) {
			return err
		}
		removed, err := c.attachments.DeleteByProposal(ctx, id)
		if err != nil {
			return types.Persistence("delete attachments", err)
		}
		c.deleteBlobs(ctx, removed)
		return nil
	}

	return &types.ValidationError{
		Message: fmt.Sprintf("unknown reconcile strategy %q", strategy),
		Fields:  []types.FieldError{{Field: "strategy", Reason: StrategyAdoptDocuments + " or " + StrategyPurgeOrphans}},
	}
}

// FindOrphans lists proposal ids that have attachment records but no row.
func (c *Coordinator) FindOrphans(ctx context.Context) ([]string, error) {
	ids, err := c.attachments.ProposalIDs(ctx)
	if err != nil {
		return nil, types.Persistence("list attachment owners", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var existing []string
	err = c.db.WithContext(ctx).
		Session(&gorm.Session{Logger: c.db.Logger.LogMode(logger.Silent)}).
		Model(&models.Proposal{}).
		Where("id IN ?", ids).
		Pluck("id", &existing).Error
	if err != nil {
		return nil, database.Classify("list proposal ids", err)
	}

	found := make(map[string]bool, len(existing))
	for _, id := range existing {
		found[id] = true
	}
	var orphans []string
	for _, id := range ids {
		if !found[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}
