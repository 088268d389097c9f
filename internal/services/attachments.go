package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/wizard"
)

// FileMeta describes an upload as received.
type FileMeta struct {
	OriginalName string
	MimeType     string
}

// AttachFile stores an upload for (id, role). The proposal row must exist and be
// editable before any bytes are accepted. A second upload for the same role
// replaces the first. If the metadata write fails the new blob is removed; if
// the final row update fails the stores disagree until Reconcile.
func (c *Coordinator) AttachFile(ctx context.Context, actor *types.Actor, id, role string, r io.Reader, meta FileMeta) (*documents.FileAttachment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	role = strings.TrimSpace(role)

	// 1. the row exists, is writable by the actor and accepts the role
	p, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.authorizeWrite(actor, p); err != nil {
		return nil, err
	}
	if err := c.checkRole(p, role); err != nil {
		return nil, err
	}

	// 2. bytes
	name := p.ID + "/" + role
	locator, size, err := c.blobs.Put(ctx, name, r)
	if err != nil {
		return nil, types.Persistence("store file", err)
	}

	att := documents.FileAttachment{
		ProposalID:     p.ID,
		Role:           role,
		OriginalName:   filepath.Base(strings.TrimSpace(meta.OriginalName)),
		SizeBytes:      size,
		MimeType:       mimeTypeOf(meta),
		StorageLocator: locator,
		UploadedAt:     c.now(),
	}

	// 3. metadata, replacing any earlier record for the role
	previous, err := c.attachments.Upsert(ctx, att)
	if err != nil {
		if delErr := c.blobs.Delete(ctx, locator); delErr != nil {
			c.log.Warn("orphaned blob after metadata failure",
				zap.String("proposalId", p.ID),
				zap.String("role", role),
				zap.String("locator", locator),
				zap.Error(delErr))
		}
		return nil, types.Persistence("store attachment metadata", err)
	}
	if previous != nil && previous.StorageLocator != "" && previous.StorageLocator != locator {
		c.deleteBlobs(ctx, []documents.FileAttachment{*previous})
	}

	// 4. declared roles on the row
	err = c.withLockedProposal(ctx, p.ID, func(tx *gorm.DB, locked *models.Proposal) error {
		roles := append(locked.AttachmentRoles.Strings(), role)
		locked.AttachmentRoles = models.NewStringSet(roles)
		locked.DeclaredFileCount = len(locked.AttachmentRoles.Strings())
		return tx.Model(locked).
			Select("attachment_roles", "declared_file_count", "updated_at").
			Updates(locked).Error
	})
	if err != nil {
		c.log.Error("attachment stored but proposal row not updated",
			zap.String("proposalId", p.ID),
			zap.String("role", role),
			zap.Error(err))
		return &att, err
	}

	c.log.Info("attachment stored",
		zap.String("proposalId", p.ID),
		zap.String("role", role),
		zap.Int64("size", size),
		zap.Bool("replaced", previous != nil))
	return &att, nil
}

// OpenAttachment streams the stored bytes of one attachment.
func (c *Coordinator) OpenAttachment(ctx context.Context, actor *types.Actor, id, role string) (*documents.FileAttachment, io.ReadCloser, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	p, err := c.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := c.authorizeRead(actor, p); err != nil {
		return nil, nil, err
	}

	atts, err := c.attachments.ListByProposal(ctx, p.ID)
	if err != nil {
		return nil, nil, types.Persistence("list attachments", err)
	}
	for i := range atts {
		if atts[i].Role != role {
			continue
		}
		rc, err := c.blobs.Open(ctx, atts[i].StorageLocator)
		if err != nil {
			return nil, nil, types.Persistence("open file", err)
		}
		return &atts[i], rc, nil
	}
	return nil, nil, &types.NotFoundError{Kind: "attachment", ID: p.ID + "/" + role}
}

// checkRole accepts roles offered by a step the proposal has already reached.
func (c *Coordinator) checkRole(p *models.Proposal, role string) error {
	if role == "" {
		return &types.ValidationError{Message: "missing file role", Fields: []types.FieldError{{Field: "role", Reason: "required"}}}
	}
	path := c.machine.Path(p.EventType)
	step, ok := c.machine.Rules().StepForRole(role, path)
	if !ok {
		return &types.ValidationError{
			Message: fmt.Sprintf("unknown file role %q", role),
			Fields:  []types.FieldError{{Field: "role", Reason: "accepted roles: " + strings.Join(c.machine.FileRoles(p.EventType), ", ")}},
		}
	}
	return c.machine.CanEnter(wizard.StepFor(p.CurrentSection), step, p.EventType)
}

func mimeTypeOf(meta FileMeta) string {
	if mt := strings.TrimSpace(meta.MimeType); mt != "" {
		return mt
	}
	if mt := mime.TypeByExtension(filepath.Ext(meta.OriginalName)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
