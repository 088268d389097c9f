// notifications.go
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
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
)

// Directory lists notifications to their recipients and records read/hide marks.
type Directory struct {
	db    *gorm.DB
	roles Roles
	log   *zap.Logger
	now   func() time.Time
}

// NewDirectory builds a notification Directory.
func NewDirectory(db *gorm.DB, roles Roles, log *zap.Logger) *Directory {
	if roles == (Roles{}) {
		roles = DefaultRoles
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{db: db, roles: roles, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// NotificationFilter narrows a listing.
type NotificationFilter struct {
	UnreadOnly bool
	Page       Page
}

// NotificationPage is one page of a listing, newest first.
type NotificationPage struct {
	Items []models.Notification `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Size  int                   `json:"size"`
}

// NotificationInput is an administrator-authored notification.
type NotificationInput struct {
	TargetType        types.TargetType       `json:"targetType"`
	TargetUserID      string                 `json:"targetUserId"`
	TargetRole        string                 `json:"targetRole"`
	Title             string                 `json:"title"`
	Message           string                 `json:"message"`
	NotificationType  types.NotificationType `json:"notificationType"`
	Priority          types.Priority         `json:"priority"`
	RelatedProposalID string                 `json:"relatedProposalId"`
	ExpiresAt         *time.Time             `json:"expiresAt"`
}

// List returns the visible notifications addressed to the actor, its roles or everyone.
// Read and hide marks are the actor's own.
func (d *Directory) List(ctx context.Context, actor *types.Actor, filter NotificationFilter) (*NotificationPage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	page := filter.Page.normalize()

	q := d.db.WithContext(ctx).
		Session(&gorm.Session{Logger: d.db.Logger.LogMode(logger.Silent)}).
		Model(&models.Notification{}).
		Where("notifications.is_hidden = ?", false).
		Where(notHiddenByReceipt, actor.ID, true).
		Where("notifications.expires_at IS NULL OR notifications.expires_at > ?", d.now()).
		Where(d.addressedTo(actor))
	if filter.UnreadOnly {
		q = q.Where("notifications.is_read = ?", false).
			Where(notReadByReceipt, actor.ID, true)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, database.Classify("count notifications", err)
	}
	items := []models.Notification{}
	err := q.Order("notifications.created_at DESC").Order("notifications.id DESC").
		Offset(page.offset()).Limit(page.Size).
		Find(&items).Error
	if err != nil {
		return nil, database.Classify("list notifications", err)
	}
	if err := d.applyReceipts(ctx, actor.ID, items); err != nil {
		return nil, err
	}
	return &NotificationPage{Items: items, Total: total, Page: page.Page, Size: page.Size}, nil
}

// Receipt predicates exclude rows the user has marked through a receipt.
const (
	notHiddenByReceipt = "NOT EXISTS (SELECT 1 FROM notification_receipts r WHERE r.notification_id = notifications.id AND r.user_id = ? AND r.is_hidden = ?)"
	notReadByReceipt   = "NOT EXISTS (SELECT 1 FROM notification_receipts r WHERE r.notification_id = notifications.id AND r.user_id = ? AND r.is_read = ?)"
)

// applyReceipts overlays the user's own marks on role and broadcast rows.
func (d *Directory) applyReceipts(ctx context.Context, userID string, items []models.Notification) error {
	ids := make([]string, 0, len(items))
	for i := range items {
		if !items[i].InlineMarks() {
			ids = append(ids, items[i].ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var receipts []models.NotificationReceipt
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND notification_id IN ?", userID, ids).
		Find(&receipts).Error
	if err != nil {
		return database.Classify("list notification receipts", err)
	}
	byID := make(map[string]models.NotificationReceipt, len(receipts))
	for _, r := range receipts {
		byID[r.NotificationID] = r
	}
	for i := range items {
		if r, ok := byID[items[i].ID]; ok {
			items[i].IsRead = r.IsRead
			items[i].IsHidden = r.IsHidden
		}
	}
	return nil
}

func (d *Directory) addressedTo(actor *types.Actor) *gorm.DB {
	cond := d.db.Where("target_type = ?", types.TargetAll).
		Or("target_type = ? AND target_user_id = ?", types.TargetUser, actor.ID)
	if len(actor.Roles) > 0 {
		cond = cond.Or("target_type = ? AND target_role IN ?", types.TargetRole, actor.Roles)
	}
	return cond
}

// Create stores an announcement-style notification. Reviewers and admins only.
func (d *Directory) Create(ctx context.Context, actor *types.Actor, in NotificationInput) (*models.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !d.roles.CanReview(actor) {
		return nil, &types.ForbiddenError{Reason: "creating notifications requires a reviewer or admin role"}
	}

	n := models.Notification{
		ID:               types.NewCanonicalID(),
		TargetType:       types.TargetType(strings.TrimSpace(string(in.TargetType))),
		TargetUserID:     optional(in.TargetUserID),
		TargetRole:       optional(in.TargetRole),
		Title:            sanitizeText(in.Title),
		Message:          sanitizeText(in.Message),
		NotificationType: in.NotificationType,
		Priority:         in.Priority,
		CreatedBy:        actor.ID,
		CreatedAt:        d.now(),
		ExpiresAt:        in.ExpiresAt,
	}
	if n.NotificationType == "" {
		n.NotificationType = types.NotificationAnnouncement
	}
	if n.Priority == "" {
		n.Priority = types.PriorityNormal
	}

	if err := n.ValidateTarget(); err != nil {
		return nil, err
	}
	var fields []types.FieldError
	if n.Title == "" {
		fields = append(fields, types.FieldError{Field: "title", Reason: "required"})
	}
	if n.Message == "" {
		fields = append(fields, types.FieldError{Field: "message", Reason: "required"})
	}
	if !n.NotificationType.Valid() {
		fields = append(fields, types.FieldError{Field: "notificationType", Reason: "unknown notification type"})
	}
	if !n.Priority.Valid() {
		fields = append(fields, types.FieldError{Field: "priority", Reason: "must be low, normal, high or urgent"})
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(n.CreatedAt) {
		fields = append(fields, types.FieldError{Field: "expiresAt", Reason: "must be in the future"})
	}
	if id := strings.TrimSpace(in.RelatedProposalID); id != "" {
		if !types.IsCanonicalID(id) {
			fields = append(fields, types.FieldError{Field: "relatedProposalId", Reason: "must be a canonical id"})
		}
		n.RelatedProposalID = &id
	}
	if len(fields) > 0 {
		return nil, &types.ValidationError{Message: "invalid notification", Fields: fields}
	}

	if err := d.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, database.Classify("create notification", err)
	}
	d.log.Info("notification created",
		zap.String("notificationId", n.ID),
		zap.String("targetType", string(n.TargetType)),
		zap.String("actor", actor.ID))
	return &n, nil
}

// MarkRead flags a notification as read for the actor. Recipients only.
func (d *Directory) MarkRead(ctx context.Context, actor *types.Actor, id string) (*models.Notification, error) {
	return d.mark(ctx, actor, id, "is_read")
}

// Hide removes a notification from the actor's listing. Recipients only.
func (d *Directory) Hide(ctx context.Context, actor *types.Actor, id string) (*models.Notification, error) {
	return d.mark(ctx, actor, id, "is_hidden")
}

func (d *Directory) mark(ctx context.Context, actor *types.Actor, id, column string) (*models.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !types.IsCanonicalID(id) {
		return nil, &types.ValidationError{
			Message: fmt.Sprintf("malformed notification id %q", id),
			Fields:  []types.FieldError{{Field: "id", Reason: "must be a canonical id"}},
		}
	}

	var n models.Notification
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Session(&gorm.Session{Logger: tx.Logger.LogMode(logger.Silent)}).
			Where("id = ?", id).First(&n).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.NotFoundError{Kind: "notification", ID: id}
		}
		if err != nil {
			return err
		}
		if !n.VisibleTo(actor.ID, actor.Roles) {
			return &types.ForbiddenError{Reason: "notification is addressed to someone else"}
		}
		if n.InlineMarks() {
			if err := tx.Model(&n).Update(column, true).Error; err != nil {
				return err
			}
			if column == "is_read" {
				n.IsRead = true
			} else {
				n.IsHidden = true
			}
			return nil
		}
		return d.markReceipt(tx, &n, actor.ID, column)
	})
	if err != nil {
		return nil, database.Classify("update notification", err)
	}
	return &n, nil
}

// markReceipt upserts the actor's receipt and reflects it on n.
func (d *Directory) markReceipt(tx *gorm.DB, n *models.Notification, userID, column string) error {
	receipt := models.NotificationReceipt{
		NotificationID: n.ID,
		UserID:         userID,
		IsRead:         column == "is_read",
		IsHidden:       column == "is_hidden",
		UpdatedAt:      d.now(),
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "notification_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{column: true, "updated_at": receipt.UpdatedAt}),
	}).Create(&receipt).Error
	if err != nil {
		return err
	}

	if err := tx.Where("notification_id = ? AND user_id = ?", n.ID, userID).First(&receipt).Error; err != nil {
		return err
	}
	n.IsRead = receipt.IsRead
	n.IsHidden = receipt.IsHidden
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
