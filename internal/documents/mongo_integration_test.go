package documents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/localnerve/proposaldb/internal/database"
	"github.com/localnerve/proposaldb/internal/testenv"
)

func TestMongoStores_Integration(t *testing.T) {
	testenv.RequireDocker(t)
	tc := testenv.StartContainers(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cfg := tc.Config()
	cfg.MongoDatabase = "documents_test"

	client, db, err := database.ConnectMongo(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer database.DisconnectMongo(client)

	t.Run("attachments", func(t *testing.T) {
		store, err := NewMongoStore(ctx, db, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, store.Ping(ctx))
		exerciseAttachmentStore(t, store)

		// the unique index survives a second open
		_, err = NewMongoStore(ctx, db, zap.NewNop())
		require.NoError(t, err)
	})

	t.Run("gridfs", func(t *testing.T) {
		blobs, err := NewGridFSBlobStore(db, "attachments_test")
		require.NoError(t, err)
		exerciseBlobStore(t, blobs)
	})
}
