// attachment.go
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

// Package documents holds the document-side stores: attachment metadata and file bytes.
// Neither store shares a transaction with the relational database.
package documents

import (
	"context"
	"io"
	"time"
)

// FileAttachment is the metadata record for one uploaded file.
// At most one record exists per (ProposalID, Role).
type FileAttachment struct {
	ProposalID     string    `bson:"ownerProposalId" json:"ownerProposalId"`
	Role           string    `bson:"role" json:"role"`
	OriginalName   string    `bson:"originalName" json:"originalName"`
	SizeBytes      int64     `bson:"sizeBytes" json:"sizeBytes"`
	MimeType       string    `bson:"mimeType" json:"mimeType"`
	StorageLocator string    `bson:"storageLocator" json:"storageLocator"`
	UploadedAt     time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

// AttachmentStore keeps attachment metadata keyed by (proposal id, role).
type AttachmentStore interface {
	// Upsert replaces the record for the attachment's role and returns the record it replaced, if any.
	Upsert(ctx context.Context, att FileAttachment) (*FileAttachment, error)
	ListByProposal(ctx context.Context, proposalID string) ([]FileAttachment, error)
	// ListByProposals fetches the attachments of many proposals in one round trip.
	ListByProposals(ctx context.Context, proposalIDs []string) (map[string][]FileAttachment, error)
	// DeleteByProposal removes every record of a proposal and returns what was removed.
	DeleteByProposal(ctx context.Context, proposalID string) ([]FileAttachment, error)
	// ProposalIDs lists every proposal id that has at least one record.
	ProposalIDs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// BlobStore keeps the file bytes an attachment's StorageLocator points at.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (locator string, size int64, err error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}

// Roles returns the roles of atts in order.
func Roles(atts []FileAttachment) []string {
	roles := make([]string, len(atts))
	for i, a := range atts {
		roles[i] = a.Role
	}
	return roles
}
