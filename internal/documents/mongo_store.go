// mongo_store.go
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

package documents

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// AttachmentsCollection is the collection holding FileAttachment records.
const AttachmentsCollection = "attachments"

// MongoStore is the MongoDB AttachmentStore.
type MongoStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore returns a store over db and ensures the (ownerProposalId, role) unique index.
func NewMongoStore(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*MongoStore, error) {
	coll := db.Collection(AttachmentsCollection)

	name, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ownerProposalId", Value: 1}, {Key: "role", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_proposal_role"),
	})
	if err != nil {
		return nil, fmt.Errorf("ensure attachments index: %w", err)
	}
	logger.Debug("attachments index ready", zap.String("index", name))

	return &MongoStore{coll: coll, logger: logger}, nil
}

func (s *MongoStore) Upsert(ctx context.Context, att FileAttachment) (*FileAttachment, error) {
	filter := bson.D{{Key: "ownerProposalId", Value: att.ProposalID}, {Key: "role", Value: att.Role}}
	opts := options.FindOneAndReplace().SetUpsert(true).SetReturnDocument(options.Before)

	var previous FileAttachment
	err := s.coll.FindOneAndReplace(ctx, filter, att, opts).Decode(&previous)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("upsert attachment %s/%s: %w", att.ProposalID, att.Role, err)
	}
	return &previous, nil
}

func (s *MongoStore) ListByProposal(ctx context.Context, proposalID string) ([]FileAttachment, error) {
	return s.find(ctx, bson.D{{Key: "ownerProposalId", Value: proposalID}})
}

func (s *MongoStore) ListByProposals(ctx context.Context, proposalIDs []string) (map[string][]FileAttachment, error) {
	out := make(map[string][]FileAttachment, len(proposalIDs))
	if len(proposalIDs) == 0 {
		return out, nil
	}
	atts, err := s.find(ctx, bson.D{{Key: "ownerProposalId", Value: bson.D{{Key: "$in", Value: proposalIDs}}}})
	if err != nil {
		return nil, err
	}
	for _, att := range atts {
		out[att.ProposalID] = append(out[att.ProposalID], att)
	}
	return out, nil
}

func (s *MongoStore) DeleteByProposal(ctx context.Context, proposalID string) ([]FileAttachment, error) {
	filter := bson.D{{Key: "ownerProposalId", Value: proposalID}}
	atts, err := s.find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return nil, nil
	}
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("delete attachments of %s: %w", proposalID, err)
	}
	s.logger.Debug("attachments deleted", zap.String("proposalId", proposalID), zap.Int64("count", res.DeletedCount))
	return atts, nil
}

func (s *MongoStore) ProposalIDs(ctx context.Context) ([]string, error) {
	values, err := s.coll.Distinct(ctx, "ownerProposalId", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("distinct proposal ids: %w", err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

func (s *MongoStore) find(ctx context.Context, filter bson.D) ([]FileAttachment, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "ownerProposalId", Value: 1}, {Key: "role", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find attachments: %w", err)
	}
	var atts []FileAttachment
	if err := cursor.All(ctx, &atts); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return atts, nil
}
