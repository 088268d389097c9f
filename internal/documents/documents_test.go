package documents

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseAttachmentStore runs the behavior every AttachmentStore must share.
func exerciseAttachmentStore(t *testing.T, store AttachmentStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := FileAttachment{ProposalID: "p-1", Role: "gpoa", OriginalName: "gpoa-v1.pdf", SizeBytes: 10, MimeType: "application/pdf", StorageLocator: "loc-1", UploadedAt: now}
	prev, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, prev)

	second := first
	second.OriginalName = "gpoa-v2.pdf"
	second.StorageLocator = "loc-2"
	prev, err = store.Upsert(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "loc-1", prev.StorageLocator)

	_, err = store.Upsert(ctx, FileAttachment{ProposalID: "p-1", Role: "accomplishmentReport", StorageLocator: "loc-3", UploadedAt: now})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, FileAttachment{ProposalID: "p-2", Role: "gpoa", StorageLocator: "loc-4", UploadedAt: now})
	require.NoError(t, err)

	atts, err := store.ListByProposal(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, atts, 2, "upsert replaces per role")
	assert.Equal(t, []string{"accomplishmentReport", "gpoa"}, Roles(atts))
	assert.Equal(t, "gpoa-v2.pdf", atts[1].OriginalName)

	batch, err := store.ListByProposals(ctx, []string{"p-1", "p-2", "p-3"})
	require.NoError(t, err)
	assert.Len(t, batch["p-1"], 2)
	assert.Len(t, batch["p-2"], 1)
	assert.Empty(t, batch["p-3"])

	ids, err := store.ProposalIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p-1", "p-2"}, ids)

	removed, err := store.DeleteByProposal(ctx, "p-1")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	atts, err = store.ListByProposal(ctx, "p-1")
	require.NoError(t, err)
	assert.Empty(t, atts)

	removed, err = store.DeleteByProposal(ctx, "p-1")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func exerciseBlobStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	locator, size, err := store.Put(ctx, "p-1/gpoa", strings.NewReader("hello proposal"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello proposal")), size)
	assert.NotEmpty(t, locator)

	rc, err := store.Open(ctx, locator)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello proposal", string(body))

	require.NoError(t, store.Delete(ctx, locator))
	_, err = store.Open(ctx, locator)
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, store.Delete(ctx, locator), ErrBlobNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseAttachmentStore(t, NewMemoryStore())
}

func TestMemoryBlobStore(t *testing.T) {
	exerciseBlobStore(t, NewMemoryBlobStore())
}

func TestFileBlobStore(t *testing.T) {
	store, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	exerciseBlobStore(t, store)
}

func TestFileBlobStore_ContentAddressed(t *testing.T) {
	store, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	a, _, err := store.Put(ctx, "p-1/gpoa", strings.NewReader("same bytes"))
	require.NoError(t, err)
	b, _, err := store.Put(ctx, "p-1/gpoa", strings.NewReader("same bytes"))
	require.NoError(t, err)
	c, _, err := store.Put(ctx, "p-1/gpoa", strings.NewReader("other bytes"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "file:p-1/gpoa/"))
}

func TestFileBlobStore_RejectsEscapes(t *testing.T) {
	store, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	locator, _, err := store.Put(ctx, "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(locator, "file:etc/passwd/"))

	_, err = store.Open(ctx, "file:../outside")
	assert.Error(t, err)
	_, err = store.Open(ctx, "gridfs:abc")
	assert.Error(t, err)
}

func TestFileBlobStore_CanceledContext(t *testing.T) {
	store, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = store.Put(ctx, "p-1/gpoa", strings.NewReader("bytes"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGridFSLocator(t *testing.T) {
	_, err := gridfsID("file:abc")
	assert.Error(t, err)
	_, err = gridfsID("gridfs:not-hex")
	assert.Error(t, err)
	id, err := gridfsID("gridfs:65f1c0ffee0000000000abcd")
	require.NoError(t, err)
	assert.Equal(t, "65f1c0ffee0000000000abcd", id.Hex())
}
