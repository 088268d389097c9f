package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const gridfsLocatorPrefix = "gridfs:"

// GridFSBlobStore keeps blobs in a GridFS bucket of the document database.
type GridFSBlobStore struct {
	bucket *gridfs.Bucket
}

// NewGridFSBlobStore opens the named bucket, "attachments" when empty.
func NewGridFSBlobStore(db *mongo.Database, bucketName string) (*GridFSBlobStore, error) {
	if bucketName == "" {
		bucketName = "attachments"
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket %s: %w", bucketName, err)
	}
	return &GridFSBlobStore{bucket: bucket}, nil
}

func (s *GridFSBlobStore) Put(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	counter := &countingReader{r: contextReader{ctx: ctx, r: r}}
	id, err := s.bucket.UploadFromStream(name, counter)
	if err != nil {
		return "", 0, fmt.Errorf("gridfs upload %s: %w", name, err)
	}
	return gridfsLocatorPrefix + id.Hex(), counter.n, nil
}

func (s *GridFSBlobStore) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	id, err := gridfsID(locator)
	if err != nil {
		return nil, err
	}
	stream, err := s.bucket.OpenDownloadStream(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, fmt.Errorf("blob %s: %w", locator, ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("gridfs open %s: %w", locator, err)
	}
	return stream, nil
}

func (s *GridFSBlobStore) Delete(ctx context.Context, locator string) error {
	id, err := gridfsID(locator)
	if err != nil {
		return err
	}
	err = s.bucket.DeleteContext(ctx, id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("blob %s: %w", locator, ErrBlobNotFound)
	}
	return err
}

func gridfsID(locator string) (primitive.ObjectID, error) {
	hex, ok := strings.CutPrefix(locator, gridfsLocatorPrefix)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("not a gridfs locator: %q", locator)
	}
	return primitive.ObjectIDFromHex(hex)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
