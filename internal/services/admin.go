package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/hints"

	"github.com/localnerve/proposaldb/internal/database"
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
)

// Page selects a window of a listing. Pages count from 1.
type Page struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.Size
}

// AdminFilter narrows the administrator listing. Empty fields match everything.
type AdminFilter struct {
	Status    string
	EventType string
	Owner     string
	Search    string
}

// AdminPage is one page of merged proposals, most recently updated first.
type AdminPage struct {
	Items []MergedProposal `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// AdminView lists proposals joined with their attachment metadata. The
// metadata for the whole page comes from one batched lookup; a row without
// metadata is tagged relational-only rather than treated as an error.
func (c *Coordinator) AdminView(ctx context.Context, actor *types.Actor, filter AdminFilter, page Page) (*AdminPage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !c.roles.CanReview(actor) {
		return nil, &types.ForbiddenError{Reason: "admin view requires a reviewer or admin role"}
	}
	page = page.normalize()

	q, err := c.adminQuery(ctx, filter, c.roles.IsAdmin(actor))
	if err != nil {
		return nil, err
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, database.Classify("count proposals", err)
	}
	var rows []models.Proposal
	err = q.Order("updated_at DESC").Order("id ASC").
		Offset(page.offset()).Limit(page.Size).
		Find(&rows).Error
	if err != nil {
		return nil, database.Classify("list proposals", err)
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	byProposal, err := c.attachments.ListByProposals(ctx, ids)
	if err != nil {
		return nil, types.Persistence("list attachments", err)
	}

	items := make([]MergedProposal, 0, len(rows))
	for i := range rows {
		items = append(items, *merge(&rows[i], byProposal[rows[i].ID]))
	}
	return &AdminPage{Items: items, Total: total, Page: page.Page, Size: page.Size}, nil
}

// adminQuery builds the filtered listing. Drafts stay private to their
// owners, so only administrators see them.
func (c *Coordinator) adminQuery(ctx context.Context, filter AdminFilter, withDrafts bool) (*gorm.DB, error) {
	q := c.db.WithContext(ctx).
		Session(&gorm.Session{Logger: c.db.Logger.LogMode(logger.Silent)}).
		Model(&models.Proposal{})
	if !withDrafts {
		q = q.Where("status <> ?", types.StatusDraft)
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		if !types.Status(status).Valid() {
			return nil, &types.ValidationError{
				Message: fmt.Sprintf("unknown status %q", status),
				Fields:  []types.FieldError{{Field: "status", Reason: "not a proposal status"}},
			}
		}
		q = q.Where("status = ?", status)
	}
	if raw := strings.TrimSpace(filter.EventType); raw != "" {
		et, ok := types.ParseEventType(raw)
		if !ok {
			return nil, &types.ValidationError{
				Message: fmt.Sprintf("unknown event type %q", raw),
				Fields:  []types.FieldError{{Field: models.FieldEventType, Reason: "must be school-based or community-based"}},
			}
		}
		q = q.Where("event_type = ?", et)
	}
	if filter.Status != "" && c.db.Dialector.Name() == "mysql" {
		q = q.Clauses(hints.UseIndex("idx_proposals_status_type"))
	}
	if owner := strings.TrimSpace(filter.Owner); owner != "" {
		q = q.Where("owner_id = ?", owner)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + escapeLike(search) + "%"
		q = q.Where(c.db.Where("LOWER(event_name) LIKE ? ESCAPE '!'", like).
			Or("LOWER(organization_name) LIKE ? ESCAPE '!'", like).
			Or("LOWER(original_descriptive_id) LIKE ? ESCAPE '!'", like).
			Or("id = ?", search))
	}
	return q.Session(&gorm.Session{}), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`).Replace(s)
}
